package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/KaramelBytes/analyst/internal/metrics"
	"github.com/KaramelBytes/analyst/internal/plot"
	"github.com/KaramelBytes/analyst/internal/utils"
	"github.com/KaramelBytes/analyst/internal/warehouse"
)

// ErrNoRenderTime is returned when the request deadline leaves too little
// time to draw a plot. It matches context.DeadlineExceeded.
var ErrNoRenderTime = fmt.Errorf("task: too little time left to render: %w", context.DeadlineExceeded)

// Pages fetches web pages.
type Pages interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Courts answers the judgments dataset queries.
type Courts interface {
	TopCourt(ctx context.Context, from, to int) (warehouse.CourtCount, error)
	DelayByYear(ctx context.Context, court string) ([]warehouse.YearDelay, error)
	Close() error
}

// Completer is a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Options are the tunables of a Dispatcher.
type Options struct {
	// Fallback answers failed questions with their default values.
	Fallback bool
	// MinRenderBudget is the least time a deadline must leave for a render.
	MinRenderBudget time.Duration
	// Plot is the base render config; MaxBytes and Format are set per task.
	Plot plot.RenderConfig
	// DefaultCeiling is used when a task names no data URI limit.
	DefaultCeiling int
	// FilmsURL is scraped when a films task carries no link.
	FilmsURL string
}

// Deps are the collaborators of a Dispatcher. Nil fields disable the
// routines that need them; those questions then fail or fall back.
type Deps struct {
	Pages      Pages
	OpenCourts func(ctx context.Context) (Courts, error)
	LLM        Completer
	Metrics    *metrics.Service
	Logger     *slog.Logger
}

// Dispatcher routes descriptors to their routine.
type Dispatcher struct {
	pool     *plot.Pool
	opts     Options
	deps     Deps
	fallback atomic.Bool
}

// New returns a Dispatcher rendering through pool.
func New(pool *plot.Pool, opts Options, deps Deps) *Dispatcher {
	if pool == nil {
		pool = plot.NewPool(0)
	}
	if opts.DefaultCeiling <= 0 {
		opts.DefaultCeiling = DefaultPlotCeiling
	}
	if opts.Plot.Width == 0 {
		labels := opts.Plot.Labels
		opts.Plot = plot.DefaultConfig()
		opts.Plot.Labels = labels
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d := &Dispatcher{pool: pool, opts: opts, deps: deps}
	d.fallback.Store(opts.Fallback)
	return d
}

// SetFallback switches the fallback policy; safe to call while serving.
func (d *Dispatcher) SetFallback(on bool) { d.fallback.Store(on) }

// Fallback reports the current fallback policy.
func (d *Dispatcher) Fallback() bool { return d.fallback.Load() }

// Run answers t. The result is a JSON-encodable array or object.
func (d *Dispatcher) Run(ctx context.Context, t Descriptor) (any, error) {
	var (
		out any
		err error
	)
	switch t.Kind {
	case KindFilms:
		out, err = d.films(ctx, t)
	case KindCourts:
		out, err = d.courts(ctx, t)
	default:
		out, err = d.generic(ctx, t)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if m := d.deps.Metrics; m != nil {
		m.Tasks.Inc(t.Kind.String(), outcome)
	}
	if err != nil {
		return nil, fmt.Errorf("%s task: %w", t.Kind, err)
	}
	return out, nil
}

// answer runs compute and applies the fallback policy to its error.
// Context errors are never replaced.
func (d *Dispatcher) answer(ctx context.Context, kind Kind, idx int, question string, def any, compute func() (any, error)) (any, error) {
	v, err := compute()
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, err
	}
	if !d.Fallback() {
		return nil, fmt.Errorf("question %d: %w", idx+1, err)
	}
	d.deps.Logger.Warn("task: question failed, using default answer",
		"kind", kind.String(), "question", utils.Abbrev(question), "err", err)
	if m := d.deps.Metrics; m != nil {
		m.Fallbacks.Inc(kind.String(), strconv.Itoa(idx+1))
	}
	if f, ok := def.(func() (any, error)); ok {
		return f()
	}
	return def, nil
}

// renderURI draws samples and returns the data URI, honouring the task's
// ceiling and format.
func (d *Dispatcher) renderURI(ctx context.Context, t Descriptor, samples []plot.Sample, labels plot.Labels) (any, error) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < d.opts.MinRenderBudget {
		return nil, ErrNoRenderTime
	}
	ceiling := t.PlotCeiling
	if ceiling <= 0 {
		ceiling = d.opts.DefaultCeiling
	}
	cfg := d.opts.Plot
	cfg.Format = t.Format
	cfg.Labels = labels
	// the ladder may switch to JPEG, whose prefix is the longer one
	cfg.MaxBytes = plot.RawBudget(ceiling, plot.FormatJPEG.MediaType())
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("plot ceiling %d leaves no room for image data", ceiling)
	}
	art, err := d.pool.Render(ctx, samples, cfg)
	if err != nil {
		return nil, err
	}
	if m := d.deps.Metrics; m != nil {
		m.Renders.Inc(strconv.Itoa(art.Rung), art.MediaType)
		m.RenderKB.Add(float64(len(art.Data))/1024, art.MediaType)
	}
	d.deps.Logger.Debug("task: plot rendered",
		"rung", art.Rung, "settings", art.Settings.String(), "bytes", len(art.Data), "digest", art.Digest())
	return art.DataURI(), nil
}

// sampleDelays is drawn when no real data is available.
var sampleDelays = []plot.Sample{{X: 2019, Y: 50}, {X: 2020, Y: 55}, {X: 2021, Y: 60}, {X: 2022, Y: 65}}

// defaultPlot renders the sample delay series under the default ceiling.
func (d *Dispatcher) defaultPlot(ctx context.Context, t Descriptor) func() (any, error) {
	t.PlotCeiling = 0
	return func() (any, error) {
		return d.renderURI(ctx, t, sampleDelays, plot.Labels{Title: "Sample Delay Plot", X: "Year", Y: "Delay (Days)"})
	}
}
