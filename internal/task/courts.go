package task

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/analyst/internal/analysis"
	"github.com/KaramelBytes/analyst/internal/plot"
	"github.com/KaramelBytes/analyst/internal/warehouse"
)

// Question keys used when the task carries no answer template.
var courtsQuestions = []string{
	"Which high court disposed the most cases from 2019 - 2022?",
	"What's the regression slope of the date_of_registration - decision_date by year in the court=33_10?",
	"Plot the year and # of days of delay from the above question as a scatterplot with a regression line. Encode as a base64 data URI under 100,000 characters",
}

const (
	defaultTopCourt   = "33_10"
	defaultDelaySlope = 0.5
)

var (
	yearRange = regexp.MustCompile(`((?:18|19|20)\d\d)\s*(?:-|–|to)\s*((?:18|19|20)\d\d)`)
	courtID   = regexp.MustCompile(`court\s*=\s*([0-9A-Za-z_~]+)`)
)

func (d *Dispatcher) courts(ctx context.Context, t Descriptor) (map[string]any, error) {
	keys := courtsQuestions
	if len(t.Questions) == len(courtsQuestions) {
		keys = t.Questions
	}
	from, to := 2019, 2022
	if m := yearRange.FindStringSubmatch(keys[0]); m != nil {
		from, _ = strconv.Atoi(m[1])
		to, _ = strconv.Atoi(m[2])
		if from > to {
			from, to = to, from
		}
	}
	court := defaultTopCourt
	if m := courtID.FindStringSubmatch(keys[1]); m != nil {
		court = m[1]
	}

	var (
		top      warehouse.CourtCount
		delays   []warehouse.YearDelay
		topErr   error
		delayErr error
	)
	store, err := d.openCourts(ctx)
	if err != nil {
		topErr, delayErr = err, err
	} else {
		defer store.Close()
		// with fallbacks off the first failure is final, so stop the sibling
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			top, topErr = store.TopCourt(gctx, from, to)
			if d.Fallback() {
				return nil
			}
			return topErr
		})
		g.Go(func() error {
			delays, delayErr = store.DelayByYear(gctx, court)
			if d.Fallback() {
				return nil
			}
			return delayErr
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make(map[string]any, len(keys))
	v, err := d.answer(ctx, KindCourts, 0, keys[0], defaultTopCourt, func() (any, error) {
		if topErr != nil {
			return nil, topErr
		}
		return top.Court, nil
	})
	if err != nil {
		return nil, err
	}
	out[keys[0]] = v

	samples := make([]plot.Sample, len(delays))
	for i, yd := range delays {
		samples[i] = plot.Sample{X: float64(yd.Year), Y: yd.AvgDelayDays}
	}
	v, err = d.answer(ctx, KindCourts, 1, keys[1], defaultDelaySlope, func() (any, error) {
		if delayErr != nil {
			return nil, delayErr
		}
		reg, err := plot.Fit(samples)
		if err != nil {
			return nil, err
		}
		return analysis.Round(reg.Slope, 6), nil
	})
	if err != nil {
		return nil, err
	}
	out[keys[1]] = v

	v, err = d.answer(ctx, KindCourts, 2, keys[2], d.defaultPlot(ctx, t), func() (any, error) {
		if delayErr != nil {
			return nil, delayErr
		}
		return d.renderURI(ctx, t, samples, plot.Labels{Title: "Delay by year, court " + court, X: "Year", Y: "Average Delay (Days)"})
	})
	if err != nil {
		return nil, err
	}
	out[keys[2]] = v
	return out, nil
}

func (d *Dispatcher) openCourts(ctx context.Context) (Courts, error) {
	if d.deps.OpenCourts == nil {
		return nil, errors.New("no judgments dataset configured")
	}
	return d.deps.OpenCourts(ctx)
}
