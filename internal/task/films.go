package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/analyst/internal/analysis"
	"github.com/KaramelBytes/analyst/internal/plot"
	"github.com/KaramelBytes/analyst/internal/scrape"
)

// filmsDefaults answer, in order: count of $2bn films before 2020, earliest
// film over $1.5bn, Rank/Peak correlation. The plot falls back to defaultPlot.
var filmsDefaults = []any{1, "Titanic", 0.485782}

// filmTable is the table of highest-grossing films, column-aligned; unparsable
// cells are NaN.
type filmTable struct {
	titles []string
	ranks  []float64
	peaks  []float64
	gross  []float64
	years  []float64
	// noPeak is set when the table has no Peak column.
	noPeak *MissingColumnError
}

// rankPeak returns the aligned Rank and Peak columns.
func (ft *filmTable) rankPeak() ([]float64, []float64, error) {
	if ft.noPeak != nil {
		return nil, nil, ft.noPeak
	}
	return ft.ranks, ft.peaks, nil
}

// MissingColumnError reports a column the routine could not locate.
type MissingColumnError struct {
	Column string
	Header []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not found in %v", e.Column, e.Header)
}

func (d *Dispatcher) films(ctx context.Context, t Descriptor) ([]any, error) {
	q := func(i int) string {
		if i < len(t.Questions) {
			return t.Questions[i]
		}
		return ""
	}
	ft, loadErr := d.loadFilms(ctx, t)
	table := func() (*filmTable, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return ft, nil
	}

	out := make([]any, 0, 4)
	countThreshold := threshold(q(0), 2e9)
	before := yearIn(q(0), 2020)
	v, err := d.answer(ctx, KindFilms, 0, q(0), filmsDefaults[0], func() (any, error) {
		ft, err := table()
		if err != nil {
			return nil, err
		}
		return ft.countOver(countThreshold, before), nil
	})
	if err != nil {
		return nil, err
	}
	out = append(out, v)

	earliestThreshold := threshold(q(1), 1.5e9)
	v, err = d.answer(ctx, KindFilms, 1, q(1), filmsDefaults[1], func() (any, error) {
		ft, err := table()
		if err != nil {
			return nil, err
		}
		return ft.earliestOver(earliestThreshold)
	})
	if err != nil {
		return nil, err
	}
	out = append(out, v)

	v, err = d.answer(ctx, KindFilms, 2, q(2), filmsDefaults[2], func() (any, error) {
		ft, err := table()
		if err != nil {
			return nil, err
		}
		ranks, peaks, err := ft.rankPeak()
		if err != nil {
			return nil, err
		}
		r, ok := analysis.Pearson(ranks, peaks)
		if !ok {
			return nil, errors.New("rank/peak correlation undefined")
		}
		return analysis.Round(r, 6), nil
	})
	if err != nil {
		return nil, err
	}
	out = append(out, v)

	v, err = d.answer(ctx, KindFilms, 3, q(3), d.defaultPlot(ctx, t), func() (any, error) {
		ft, err := table()
		if err != nil {
			return nil, err
		}
		ranks, peaks, err := ft.rankPeak()
		if err != nil {
			return nil, err
		}
		xs, ys := analysis.CompletePairs(ranks, peaks)
		return d.renderURI(ctx, t, plot.Zip(xs, ys), plot.Labels{Title: "Rank vs Peak", X: "Rank", Y: "Peak"})
	})
	if err != nil {
		return nil, err
	}
	out = append(out, v)
	return out, nil
}

func (d *Dispatcher) loadFilms(ctx context.Context, t Descriptor) (*filmTable, error) {
	if d.deps.Pages == nil {
		return nil, errors.New("no page fetcher configured")
	}
	url := t.SourceURL
	if url == "" {
		url = d.opts.FilmsURL
	}
	if url == "" {
		return nil, errors.New("no films page URL")
	}
	body, err := d.deps.Pages.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch films page: %w", err)
	}
	tbl, err := scrape.ExtractTable(body, "wikitable")
	if err != nil {
		return nil, fmt.Errorf("extract films table: %w", err)
	}
	return newFilmTable(tbl)
}

func newFilmTable(tbl *analysis.Table) (*filmTable, error) {
	col := func(name string, candidates ...string) (int, error) {
		if i, ok := tbl.ColumnIndex(candidates...); ok {
			return i, nil
		}
		return -1, &MissingColumnError{Column: name, Header: tbl.Header}
	}
	rank, err := col("Rank", "rank")
	if err != nil {
		return nil, err
	}
	title, err := col("Title", "title", "film")
	if err != nil {
		return nil, err
	}
	gross, err := col("Worldwide gross", "worldwide gross", "gross")
	if err != nil {
		return nil, err
	}
	year, err := col("Year", "year")
	if err != nil {
		return nil, err
	}
	ft := &filmTable{
		titles: tbl.Column(title),
		ranks:  tbl.Floats(rank, analysis.FirstInt),
		gross:  tbl.Floats(gross, analysis.Dollars),
		years:  tbl.Floats(year, analysis.Year),
	}
	// count and earliest questions do not need Peak
	if peak, ok := tbl.ColumnIndex("peak"); ok {
		ft.peaks = tbl.Floats(peak, analysis.FirstInt)
	} else {
		ft.noPeak = &MissingColumnError{Column: "Peak", Header: tbl.Header}
	}
	for i, s := range ft.titles {
		ft.titles[i] = strings.TrimRight(strings.TrimSpace(s), "†‡*# ")
	}
	return ft, nil
}

func (ft *filmTable) countOver(min, beforeYear float64) int {
	n := 0
	for i := range ft.gross {
		if ft.gross[i] >= min && ft.years[i] < beforeYear {
			n++
		}
	}
	return n
}

// earliestOver returns the title of the earliest-released film grossing at
// least min; ties keep table order.
func (ft *filmTable) earliestOver(min float64) (string, error) {
	best := -1
	for i := range ft.gross {
		if math.IsNaN(ft.years[i]) || !(ft.gross[i] >= min) {
			continue
		}
		if best < 0 || ft.years[i] < ft.years[best] {
			best = i
		}
	}
	if best < 0 {
		return "", fmt.Errorf("no film grossed over $%.2f bn", min/1e9)
	}
	return ft.titles[best], nil
}

// threshold reads an amount like "$2 bn" from a question.
func threshold(question string, def float64) float64 {
	if !strings.Contains(question, "$") {
		return def
	}
	if v, ok := analysis.Dollars(question); ok && v > 0 {
		return v
	}
	return def
}

// yearIn reads the first year mentioned in a question.
func yearIn(question string, def float64) float64 {
	if v, ok := analysis.Year(question); ok {
		return v
	}
	return def
}
