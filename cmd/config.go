package cmd

import (
	"fmt"
	"strconv"

	cfgpkg "github.com/KaramelBytes/analyst/internal/config"
	"github.com/KaramelBytes/analyst/internal/plot"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set analyst configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "server.addr: %s\n", c.Server.Addr())
		fmt.Fprintf(out, "server.request_timeout_sec: %d\n", c.Server.RequestTimeoutSec)
		fmt.Fprintf(out, "server.render_workers: %d\n", c.Server.RenderWorkers)
		fmt.Fprintf(out, "plot.max_chars: %d\n", c.Plot.MaxChars)
		fmt.Fprintf(out, "plot.size: %dx%d@%ddpi\n", c.Plot.Width, c.Plot.Height, c.Plot.DPI)
		fmt.Fprintf(out, "plot.format: %s\n", c.Plot.Format)
		fmt.Fprintf(out, "analysis.fallback_answers: %t\n", c.Analysis.FallbackAnswers)
		fmt.Fprintf(out, "llm.api_key: %s\n", mask(c.LLM.APIKey))
		fmt.Fprintf(out, "llm.model: %s\n", c.LLM.Model)
		if c.Warehouse.Source != "" {
			fmt.Fprintf(out, "warehouse.source: %s\n", c.Warehouse.Source)
		}
		fmt.Fprintf(out, "log.level: %s\n", c.Log.Level)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := setKey(c, key, val); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setKey(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "server.host":
		c.Server.Host = val
	case "server.port":
		c.Server.Port, err = atoi()
	case "server.request_timeout_sec":
		c.Server.RequestTimeoutSec, err = atoi()
	case "server.render_workers":
		c.Server.RenderWorkers, err = atoi()
	case "plot.max_chars":
		c.Plot.MaxChars, err = atoi()
	case "plot.width":
		c.Plot.Width, err = atoi()
	case "plot.height":
		c.Plot.Height, err = atoi()
	case "plot.dpi":
		c.Plot.DPI, err = atoi()
	case "plot.format":
		f, perr := plot.ParseFormat(val)
		if perr != nil {
			return perr
		}
		c.Plot.Format = f.String()
	case "analysis.fallback_answers":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for %s: %w", key, perr)
		}
		c.Analysis.FallbackAnswers = b
	case "analysis.films_url":
		c.Analysis.FilmsURL = val
	case "llm.api_key":
		c.LLM.APIKey = val
	case "llm.base_url":
		c.LLM.BaseURL = val
	case "llm.model":
		c.LLM.Model = val
	case "scrape.user_agent":
		c.Scrape.UserAgent = val
	case "warehouse.source":
		c.Warehouse.Source = val
	case "log.level":
		c.Log.Level = val
	case "log.format":
		c.Log.Format = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
