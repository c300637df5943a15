package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/KaramelBytes/analyst/internal/metrics"
	"github.com/KaramelBytes/analyst/internal/task"
	"github.com/KaramelBytes/analyst/internal/utils"
	"github.com/spf13/cobra"
)

var (
	runOutPath    string
	runNoFallback bool
)

var runCmd = &cobra.Command{
	Use:   "run <task-file|->",
	Short: "Answer a task file once and print the JSON result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		var text []byte
		if args[0] == "-" {
			text, err = io.ReadAll(cmd.InOrStdin())
		} else {
			text, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read task: %w", err)
		}

		d, err := newDispatcher(c, metrics.NewService(), slog.Default())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("no-fallback") {
			d.SetFallback(!runNoFallback)
		}

		ctx := cmd.Context()
		if rt := c.Server.RequestTimeout(); rt > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, rt)
			defer cancel()
		}
		desc := task.Classify(string(text))
		slog.Debug("run: classified", "kind", desc.Kind.String(), "questions", len(desc.Questions), "ceiling", desc.PlotCeiling)

		out, err := d.Run(ctx, desc)
		if err != nil {
			return err
		}
		b, err := utils.PrettyJSON(out)
		if err != nil {
			return err
		}
		if runOutPath != "" {
			if err := utils.SafeWriteFile(runOutPath, append(b, '\n')); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s answer to %s\n", desc.Kind, runOutPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runOutPath, "out", "o", "", "write the JSON answer to a file")
	runCmd.Flags().BoolVar(&runNoFallback, "no-fallback", false, "fail instead of answering failed questions with defaults")
}
