package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgpkg "github.com/KaramelBytes/analyst/internal/config"
	"github.com/KaramelBytes/analyst/internal/metrics"
	"github.com/KaramelBytes/analyst/internal/server"
	"github.com/KaramelBytes/analyst/internal/task"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("host") {
			c.Server.Host = serveHost
		}
		if f.Changed("port") {
			c.Server.Port = servePort
		}

		logger := slog.Default()
		m := metrics.NewService()
		d, err := newDispatcher(c, m, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if used, err := cfgpkg.FileUsed(cfgFile); err == nil && used != "" {
			go func() {
				if err := cfgpkg.Watch(ctx, used, func(nc *cfgpkg.Global) { reload(nc, d) }); err != nil {
					logger.Warn("config: hot reload disabled", "err", err)
				}
			}()
		}

		h := server.New(d, m, server.Options{
			MaxBodyBytes:   c.Server.MaxBodyBytes,
			RequestTimeout: c.Server.RequestTimeout(),
			Compress:       c.Server.Compress,
		}, logger)

		var writeTimeout time.Duration
		if rt := c.Server.RequestTimeout(); rt > 0 {
			writeTimeout = rt + 10*time.Second
		}
		logger.Info("server: starting",
			"addr", c.Server.Addr(),
			"render_workers", c.Server.RenderWorkers,
			"fallback", d.Fallback(),
			"llm", c.LLM.APIKey != "",
		)
		if err := server.ListenAndServe(ctx, c.Server.Addr(), h, writeTimeout); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		logger.Info("server: stopped")
		return nil
	},
}

// reload applies the hot-reloadable settings of nc. Flags still win.
func reload(nc *cfgpkg.Global, d *task.Dispatcher) {
	applyFlagOverrides(nc)
	logVar.Set(parseLevel(nc.Log.Level))
	d.SetFallback(nc.Analysis.FallbackAnswers)
	slog.Info("config: applied", "log_level", logVar.Level().String(), "fallback", nc.Analysis.FallbackAnswers)
}

var _ server.Runner = (*task.Dispatcher)(nil)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config and $PORT)")
}
