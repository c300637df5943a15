package cmd

import (
	"context"
	"fmt"
	"log/slog"

	cfgpkg "github.com/KaramelBytes/analyst/internal/config"
	"github.com/KaramelBytes/analyst/internal/llm"
	"github.com/KaramelBytes/analyst/internal/metrics"
	"github.com/KaramelBytes/analyst/internal/plot"
	"github.com/KaramelBytes/analyst/internal/scrape"
	"github.com/KaramelBytes/analyst/internal/task"
	"github.com/KaramelBytes/analyst/internal/warehouse"
)

// renderConfig is the base plot config from c. MaxBytes is set per render.
func renderConfig(c *cfgpkg.Global) (plot.RenderConfig, error) {
	format, err := plot.ParseFormat(c.Plot.Format)
	if err != nil {
		return plot.RenderConfig{}, fmt.Errorf("plot.format: %w", err)
	}
	rc := plot.DefaultConfig()
	rc.Format = format
	rc.Width = c.Plot.Width
	rc.Height = c.Plot.Height
	rc.DPI = c.Plot.DPI
	return rc, nil
}

// newDispatcher wires the task dispatcher and its collaborators from c.
func newDispatcher(c *cfgpkg.Global, m *metrics.Service, logger *slog.Logger) (*task.Dispatcher, error) {
	rc, err := renderConfig(c)
	if err != nil {
		return nil, err
	}
	fetcher := scrape.NewFetcher(c.HTTP.Timeout(), c.HTTP.RetryMaxAttempts, c.HTTP.BaseDelay(), c.HTTP.MaxDelay()).
		WithUserAgent(c.Scrape.UserAgent)

	deps := task.Deps{
		Pages: fetcher,
		OpenCourts: func(ctx context.Context) (task.Courts, error) {
			st, err := warehouse.Open(ctx, warehouse.Options{
				Source:  c.Warehouse.Source,
				Hive:    c.Warehouse.Hive,
				Threads: c.Warehouse.Threads,
			})
			if err != nil {
				return nil, err
			}
			return st, nil
		},
		Metrics: m,
		Logger:  logger,
	}
	if c.LLM.APIKey != "" {
		deps.LLM = llm.New(llm.Options{
			APIKey:      c.LLM.APIKey,
			BaseURL:     c.LLM.BaseURL,
			Model:       c.LLM.Model,
			HTTPTimeout: c.HTTP.Timeout(),
			RetryMax:    c.HTTP.RetryMaxAttempts,
			BaseDelay:   c.HTTP.BaseDelay(),
			MaxDelay:    c.HTTP.MaxDelay(),
		})
	} else {
		logger.Debug("llm: no api key, generic tasks use placeholder answers")
	}

	return task.New(plot.NewPool(c.Server.RenderWorkers), task.Options{
		Fallback:        c.Analysis.FallbackAnswers,
		MinRenderBudget: c.Plot.MinRenderBudget(),
		Plot:            rc,
		DefaultCeiling:  c.Plot.MaxChars,
		FilmsURL:        c.Analysis.FilmsURL,
	}, deps), nil
}
