package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/analyst/internal/analysis"
	"github.com/KaramelBytes/analyst/internal/plot"
	"github.com/KaramelBytes/analyst/internal/utils"
	"github.com/spf13/cobra"
)

var (
	renderXCol     string
	renderYCol     string
	renderMaxChars int
	renderFormat   string
	renderTitle    string
	renderOutPath  string
)

var renderCmd = &cobra.Command{
	Use:   "render <points.csv>",
	Short: "Render a scatterplot with regression line from a CSV",
	Long: `Render reads two numeric columns from a CSV, fits a least-squares line and
prints the plot as a data URI no longer than --max-chars. With --out the raw
image is written to a file instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		rc, err := renderConfig(c)
		if err != nil {
			return err
		}
		if renderFormat != "" {
			f, err := plot.ParseFormat(renderFormat)
			if err != nil {
				return err
			}
			rc.Format = f
		}
		maxChars := c.Plot.MaxChars
		if renderMaxChars > 0 {
			maxChars = renderMaxChars
		}
		// the ladder may end on JPEG, whose prefix is the longer one
		rc.MaxBytes = plot.RawBudget(maxChars, plot.FormatJPEG.MediaType())

		path := args[0]
		fh, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer fh.Close()
		tbl, err := analysis.ReadCSV(filepath.Base(path), fh, analysis.CSVOptions{})
		if err != nil {
			return err
		}
		xi, yi, err := pickColumns(tbl, renderXCol, renderYCol)
		if err != nil {
			return err
		}
		xs, ys := analysis.CompletePairs(tbl.Floats(xi, analysis.Float), tbl.Floats(yi, analysis.Float))

		rc.Labels = plot.Labels{Title: renderTitle, X: tbl.Header[xi], Y: tbl.Header[yi]}
		art, err := plot.NewPool(1).Render(cmd.Context(), plot.Zip(xs, ys), rc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if renderOutPath != "" {
			if err := utils.SafeWriteFile(renderOutPath, art.Data); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Wrote %s (%s, %d bytes)\n", renderOutPath, art.MediaType, len(art.Data))
		} else {
			fmt.Fprintln(out, art.DataURI())
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ %s; rung %d (%s); digest %s\n", art.Regression, art.Rung, art.Settings, art.Digest())
		return nil
	},
}

// pickColumns resolves the x and y columns; unnamed axes take the first two
// columns.
func pickColumns(tbl *analysis.Table, x, y string) (int, int, error) {
	if len(tbl.Header) < 2 {
		return 0, 0, fmt.Errorf("%s: need at least two columns, got %d", tbl.Name, len(tbl.Header))
	}
	xi, yi := 0, 1
	if x != "" {
		i, ok := tbl.ColumnIndex(x)
		if !ok {
			return 0, 0, fmt.Errorf("%s: no column %q", tbl.Name, x)
		}
		xi = i
	}
	if y != "" {
		i, ok := tbl.ColumnIndex(y)
		if !ok {
			return 0, 0, fmt.Errorf("%s: no column %q", tbl.Name, y)
		}
		yi = i
	}
	return xi, yi, nil
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVar(&renderXCol, "x", "", "x column name (default: first column)")
	renderCmd.Flags().StringVar(&renderYCol, "y", "", "y column name (default: second column)")
	renderCmd.Flags().IntVar(&renderMaxChars, "max-chars", 0, "data URI length limit (default: plot.max_chars)")
	renderCmd.Flags().StringVar(&renderFormat, "format", "", "image format: png|jpeg (default: plot.format)")
	renderCmd.Flags().StringVar(&renderTitle, "title", "", "figure title")
	renderCmd.Flags().StringVarP(&renderOutPath, "out", "o", "", "write the image to a file instead of printing a data URI")
}
