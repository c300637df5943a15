package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KaramelBytes/analyst/internal/analysis"
	"github.com/KaramelBytes/analyst/internal/metrics"
	"github.com/KaramelBytes/analyst/internal/plot"
	"github.com/KaramelBytes/analyst/internal/warehouse"
)

const filmsTask = `
Scrape the list of highest grossing films from Wikipedia. It is at the URL:
https://en.wikipedia.org/wiki/List_of_highest-grossing_films

Answer the following questions and respond with a JSON array of strings containing the answer.

1. How many $2 bn movies were released before 2020?
2. Which is the earliest film that grossed over $1.5 bn?
3. What's the correlation between the Rank and Peak?
4. Draw a scatterplot of Rank and Peak along with a dotted red regression line through it.
   Return as a base-64 encoded data URI, ` + "`" + `"data:image/png;base64,iVBORw0KG..."` + "`" + ` under 100,000 bytes.
`

const courtsTask = `
The Indian high court judgement dataset contains judgements from the Indian High Courts.

- 25 high courts
- ~16M judgments

Answer the following questions and respond with a JSON object containing the answer.

{
  "Which high court disposed the most cases from 2018 - 2021?": "...",
  "What's the regression slope of the date_of_registration - decision_date by year in the court=7_26?": "...",
  "Plot the year and # of days of delay from the above question as a scatterplot with a regression line. Encode as a base64 data URI under 100,000 characters": "data:image/webp:base64,..."
}
`

const filmsPage = `<html><body><table class="wikitable sortable">
<tr><th>Rank</th><th>Peak</th><th>Title</th><th>Worldwide gross</th><th>Year</th></tr>
<tr><td>1</td><td>1</td><th>Avatar</th><td>$2,923,706,026</td><td>2009</td></tr>
<tr><td>2</td><td>1</td><th>Avengers: Endgame</th><td>$2,797,501,328</td><td>2019</td></tr>
<tr><td>3</td><td>3</td><th>Avatar: The Way of Water</th><td>$2,320,250,281</td><td>2022</td></tr>
<tr><td>4</td><td>1</td><th>Titanic</th><td>$2,264,743,305</td><td>1997</td></tr>
<tr><td>5</td><td>3</td><th>Star Wars: The Force Awakens</th><td>$2,071,310,218</td><td>2015</td></tr>
<tr><td>6</td><td>4</td><th>Jurassic World</th><td>$1,671,537,444</td><td>2015</td></tr>
</table></body></html>`

type fakePages struct {
	body []byte
	err  error
	urls []string
}

func (f *fakePages) Fetch(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.body, f.err
}

type fakeCourts struct {
	mu       sync.Mutex
	top      warehouse.CourtCount
	delays   []warehouse.YearDelay
	err      error
	from, to int
	court    string
	closed   bool
}

func (f *fakeCourts) TopCourt(_ context.Context, from, to int) (warehouse.CourtCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.from, f.to = from, to
	return f.top, f.err
}

func (f *fakeCourts) DelayByYear(_ context.Context, court string) ([]warehouse.YearDelay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.court = court
	return f.delays, f.err
}

func (f *fakeCourts) Close() error { f.closed = true; return nil }

type fakeLLM struct {
	reply string
	err   error
}

func (f fakeLLM) Complete(context.Context, string, string) (string, error) { return f.reply, f.err }

func newDispatcher(fallback bool, deps Deps) *Dispatcher {
	cfg := plot.DefaultConfig()
	cfg.Width, cfg.Height = 480, 360
	return New(plot.NewPool(2), Options{Fallback: fallback, Plot: cfg, FilmsURL: "http://example.invalid/films"}, deps)
}

func TestClassifyFilms(t *testing.T) {
	d := Classify(filmsTask)
	if d.Kind != KindFilms {
		t.Fatalf("kind: got %v", d.Kind)
	}
	if len(d.Questions) != 4 {
		t.Fatalf("questions: got %d %q", len(d.Questions), d.Questions)
	}
	if !strings.HasSuffix(d.Questions[3], "under 100,000 bytes.") {
		t.Errorf("continuation not joined: %q", d.Questions[3])
	}
	if d.PlotCeiling != 100000 || d.Format != plot.FormatPNG {
		t.Errorf("ceiling/format: %d %v", d.PlotCeiling, d.Format)
	}
	if d.SourceURL != "https://en.wikipedia.org/wiki/List_of_highest-grossing_films" {
		t.Errorf("source url: %q", d.SourceURL)
	}
}

func TestClassifyCourtsAndGeneric(t *testing.T) {
	d := Classify(courtsTask)
	if d.Kind != KindCourts {
		t.Fatalf("kind: got %v", d.Kind)
	}
	if len(d.Questions) != 3 || !strings.HasPrefix(d.Questions[0], "Which high court") {
		t.Fatalf("template keys: %q", d.Questions)
	}
	if d.Format != plot.FormatJPEG {
		t.Errorf("webp request should map to the lossy format")
	}
	g := Classify("What is the mean of 1, 2 and 3?")
	if g.Kind != KindGeneric || g.PlotCeiling != 0 || len(g.Questions) != 0 {
		t.Fatalf("generic: %+v", g)
	}
}

func TestCeiling(t *testing.T) {
	cases := map[string]int{
		"under 100,000 bytes":             100000,
		"Keep it under 50000 characters.": 50000,
		"under 80kB":                      80000,
		"no limit here":                   0,
		"answer under 5 minutes":          0,
		"films that grossed under 2 bn":   0,
	}
	for in, want := range cases {
		if got := Ceiling(in); got != want {
			t.Errorf("Ceiling(%q): got %d, want %d", in, got, want)
		}
	}
}

func TestFilmsRoutine(t *testing.T) {
	pages := &fakePages{body: []byte(filmsPage)}
	m := metrics.NewService()
	d := newDispatcher(false, Deps{Pages: pages, Metrics: m})
	out, err := d.Run(context.Background(), Classify(filmsTask))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	arr, ok := out.([]any)
	if !ok || len(arr) != 4 {
		t.Fatalf("unexpected result: %#v", out)
	}
	if arr[0] != 4 {
		t.Errorf("count: got %v, want 4", arr[0])
	}
	if arr[1] != "Titanic" {
		t.Errorf("earliest: got %v", arr[1])
	}
	r, _ := analysis.Pearson([]float64{1, 2, 3, 4, 5, 6}, []float64{1, 1, 3, 1, 3, 4})
	if got := arr[2].(float64); math.Abs(got-analysis.Round(r, 6)) > 1e-12 {
		t.Errorf("correlation: got %v, want %v", got, analysis.Round(r, 6))
	}
	uri := arr[3].(string)
	if !strings.HasPrefix(uri, "data:image/png;base64,") || len(uri) > 100000 {
		t.Errorf("plot uri: prefix %q len %d", uri[:30], len(uri))
	}
	if len(pages.urls) != 1 || !strings.Contains(pages.urls[0], "wikipedia.org") {
		t.Errorf("fetched: %v", pages.urls)
	}
	if got := m.Tasks.Value("films", "ok"); got != 1 {
		t.Errorf("tasks metric: %v", got)
	}
	if got := m.Renders.Value("0", "image/png"); got != 1 {
		t.Errorf("render metric: %v", got)
	}
}

func TestFilmsFallbackPolicy(t *testing.T) {
	pages := &fakePages{err: errors.New("connection refused")}
	m := metrics.NewService()
	d := newDispatcher(true, Deps{Pages: pages, Metrics: m})
	out, err := d.Run(context.Background(), Classify(filmsTask))
	if err != nil {
		t.Fatalf("Run with fallback: %v", err)
	}
	arr := out.([]any)
	if arr[0] != 1 || arr[1] != "Titanic" || arr[2] != 0.485782 {
		t.Fatalf("default answers: %#v", arr[:3])
	}
	if !strings.HasPrefix(arr[3].(string), "data:image/png;base64,") {
		t.Fatalf("default plot missing")
	}
	if got := m.Fallbacks.Value("films", "1"); got != 1 {
		t.Errorf("fallback metric: %v", got)
	}

	d.SetFallback(false)
	if _, err := d.Run(context.Background(), Classify(filmsTask)); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if got := m.Tasks.Value("films", "error"); got != 1 {
		t.Errorf("error outcome metric: %v", got)
	}
}

func TestUnitlessUnderIsNotACeiling(t *testing.T) {
	d := Classify("Summarise the data. Keep the answer under 5 minutes of reading.")
	if d.PlotCeiling != 0 {
		t.Fatalf("ceiling: got %d, want 0", d.PlotCeiling)
	}
	out, err := newDispatcher(true, Deps{}).Run(context.Background(), d)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if uri := out.([]any)[3].(string); !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("expected plot, got %.40q", uri)
	}
}

func TestFallbackPlotUsesDefaultCeiling(t *testing.T) {
	text := strings.Replace(filmsTask, "under 100,000 bytes", "under 5 bytes", 1)
	desc := Classify(text)
	if desc.PlotCeiling != 5 {
		t.Fatalf("ceiling: got %d", desc.PlotCeiling)
	}
	m := metrics.NewService()
	d := newDispatcher(true, Deps{Pages: &fakePages{body: []byte(filmsPage)}, Metrics: m})
	out, err := d.Run(context.Background(), desc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if uri := out.([]any)[3].(string); !strings.HasPrefix(uri, "data:image/") {
		t.Fatalf("expected default plot, got %.40q", uri)
	}
	if got := m.Fallbacks.Value("films", "4"); got != 1 {
		t.Errorf("plot fallback metric: %v", got)
	}
}

func TestFilmsWithoutPeakColumn(t *testing.T) {
	page := strings.NewReplacer("<th>Peak</th>", "", "<td>1</td><th>", "<th>", "<td>3</td><th>", "<th>", "<td>4</td><th>", "<th>").Replace(filmsPage)
	d := newDispatcher(false, Deps{Pages: &fakePages{body: []byte(page)}})
	_, err := d.Run(context.Background(), Classify(filmsTask))
	var mc *MissingColumnError
	if !errors.As(err, &mc) || mc.Column != "Peak" {
		t.Fatalf("expected missing Peak column, got %v", err)
	}

	d = newDispatcher(true, Deps{Pages: &fakePages{body: []byte(page)}})
	out, err := d.Run(context.Background(), Classify(filmsTask))
	if err != nil {
		t.Fatalf("Run with fallback: %v", err)
	}
	arr := out.([]any)
	if arr[0] != 4 || arr[1] != "Titanic" {
		t.Errorf("count/earliest should not need Peak: %#v", arr[:2])
	}
	if arr[2] != filmsDefaults[2] {
		t.Errorf("correlation: got %v, want default", arr[2])
	}
}

func TestFilmsMissingColumn(t *testing.T) {
	page := `<table class="wikitable"><tr><th>Name</th><th>Amount</th></tr><tr><td>a</td><td>1</td></tr></table>`
	d := newDispatcher(false, Deps{Pages: &fakePages{body: []byte(page)}})
	_, err := d.Run(context.Background(), Classify(filmsTask))
	var mc *MissingColumnError
	if !errors.As(err, &mc) || mc.Column != "Rank" {
		t.Fatalf("expected MissingColumnError, got %v", err)
	}
}

func TestCourtsRoutine(t *testing.T) {
	fc := &fakeCourts{
		top: warehouse.CourtCount{Court: "7_26", Cases: 1200},
		delays: []warehouse.YearDelay{
			{Year: 2018, AvgDelayDays: 100}, {Year: 2019, AvgDelayDays: 105},
			{Year: 2020, AvgDelayDays: 110}, {Year: 2021, AvgDelayDays: 115},
		},
	}
	d := newDispatcher(false, Deps{OpenCourts: func(context.Context) (Courts, error) { return fc, nil }})
	desc := Classify(courtsTask)
	out, err := d.Run(context.Background(), desc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	obj := out.(map[string]any)
	if obj[desc.Questions[0]] != "7_26" {
		t.Errorf("top court: %v", obj[desc.Questions[0]])
	}
	if got := obj[desc.Questions[1]].(float64); math.Abs(got-5) > 1e-9 {
		t.Errorf("slope: got %v, want 5", got)
	}
	if uri := obj[desc.Questions[2]].(string); !strings.HasPrefix(uri, "data:image/jpeg;base64,") {
		t.Errorf("plot should be jpeg: %.40s", uri)
	}
	if fc.from != 2018 || fc.to != 2021 || fc.court != "7_26" {
		t.Errorf("query args: %d-%d %q", fc.from, fc.to, fc.court)
	}
	if !fc.closed {
		t.Errorf("store not closed")
	}
}

func TestCourtsDefaultsWhenDatasetUnavailable(t *testing.T) {
	d := newDispatcher(true, Deps{OpenCourts: func(context.Context) (Courts, error) {
		return nil, errors.New("no network")
	}})
	out, err := d.Run(context.Background(), Classify("Indian high court judgments please"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	obj := out.(map[string]any)
	if obj[courtsQuestions[0]] != "33_10" || obj[courtsQuestions[1]] != 0.5 {
		t.Fatalf("defaults: %#v", obj)
	}
	if _, ok := obj[courtsQuestions[2]].(string); !ok {
		t.Fatalf("default plot missing")
	}
}

func TestCourtsNoFallbackReturnsQueryError(t *testing.T) {
	fc := &fakeCourts{err: warehouse.ErrNoRows}
	d := newDispatcher(false, Deps{OpenCourts: func(context.Context) (Courts, error) { return fc, nil }})
	_, err := d.Run(context.Background(), Classify(courtsTask))
	if !errors.Is(err, warehouse.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestGenericWithoutModel(t *testing.T) {
	d := newDispatcher(true, Deps{})
	out, err := d.Run(context.Background(), Classify("summarise something"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	arr := out.([]any)
	if len(arr) != 4 || arr[0] != "Analysis completed" || arr[2] != 0.5 {
		t.Fatalf("placeholder: %#v", arr[:3])
	}
}

func TestGenericUsesModel(t *testing.T) {
	d := newDispatcher(false, Deps{LLM: fakeLLM{reply: "```json\n[42, \"answer\"]\n```"}})
	out, err := d.Run(context.Background(), Classify("what is the answer?"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	arr := out.([]any)
	if len(arr) != 2 || arr[0] != float64(42) || arr[1] != "answer" {
		t.Fatalf("model answer: %#v", arr)
	}

	d = newDispatcher(true, Deps{LLM: fakeLLM{err: fmt.Errorf("provider down")}})
	out, err = d.Run(context.Background(), Classify("what is the answer?"))
	if err != nil {
		t.Fatalf("Run with fallback: %v", err)
	}
	if arr := out.([]any); arr[1] != "Generic result" {
		t.Fatalf("expected placeholder, got %#v", arr)
	}
}

func TestRenderSkippedNearDeadline(t *testing.T) {
	cfg := plot.DefaultConfig()
	d := New(plot.NewPool(1), Options{Fallback: true, Plot: cfg, MinRenderBudget: time.Hour}, Deps{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err := d.Run(ctx, Classify("anything"))
	if !errors.Is(err, ErrNoRenderTime) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected render deadline error, got %v", err)
	}
}
