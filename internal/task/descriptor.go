// Package task turns a free-text analysis request into one of a few fixed
// analysis routines and assembles the JSON answer.
package task

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/KaramelBytes/analyst/internal/plot"
)

// Kind selects the routine that answers a task.
type Kind int

const (
	KindGeneric Kind = iota
	KindFilms
	KindCourts
)

func (k Kind) String() string {
	switch k {
	case KindFilms:
		return "films"
	case KindCourts:
		return "courts"
	default:
		return "generic"
	}
}

// DefaultPlotCeiling is the data URI length used when a task names none.
const DefaultPlotCeiling = 100000

// Descriptor is a classified task.
type Descriptor struct {
	Kind Kind
	Text string
	// Questions are the numbered questions, or the keys of a JSON answer
	// template when the task asks for an object.
	Questions []string
	// PlotCeiling is the maximum data URI length; 0 means not stated.
	PlotCeiling int
	// Format is the image encoding the task asks for.
	Format plot.Format
	// SourceURL is the first Wikipedia link in the text, if any.
	SourceURL string
}

var (
	numbered    = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.*)$`)
	templateKey = regexp.MustCompile(`(?m)^\s*"([^"]{8,})"\s*:`)
	ceilingRe   = regexp.MustCompile(`(?i)\bunder\s+([\d,.]+)\s*(k)?\s*(b|bytes|characters|chars)\b`)
	mediaRe     = regexp.MustCompile(`(?i)data:image/([a-z+]+)`)
	wikiURL     = regexp.MustCompile(`https?://[a-z]+\.wikipedia\.org/wiki/[^\s)"'<>]+`)
)

// Classify inspects text and returns its descriptor. It never fails; text
// that matches no known routine is KindGeneric.
func Classify(text string) Descriptor {
	lower := strings.ToLower(text)
	d := Descriptor{Text: text, Kind: KindGeneric}
	switch {
	case strings.Contains(lower, "wikipedia") && strings.Contains(lower, "highest grossing"):
		d.Kind = KindFilms
	case strings.Contains(lower, "high court"):
		d.Kind = KindCourts
	}
	d.Questions = Questions(text)
	d.PlotCeiling = Ceiling(text)
	d.Format = requestedFormat(text)
	d.SourceURL = wikiURL.FindString(text)
	return d
}

// Questions returns numbered questions in order; indented continuation lines
// are joined onto their question. Without numbered lines it falls back to
// the keys of a JSON object template.
func Questions(text string) []string {
	var out []string
	current := -1
	for _, line := range strings.Split(text, "\n") {
		if m := numbered.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimSpace(m[2]))
			current = len(out) - 1
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			current = -1
			continue
		}
		if current >= 0 && line != trimmed {
			out[current] += " " + trimmed
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, m := range templateKey.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// Ceiling parses "under N bytes" / "under N characters" (or "under NkB").
// A number without a size unit is not a ceiling. It returns 0 when the text
// names no limit.
func Ceiling(text string) int {
	m := ceilingRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || n <= 0 {
		return 0
	}
	if m[2] != "" {
		n *= 1000
	}
	return int(n)
}

func requestedFormat(text string) plot.Format {
	m := mediaRe.FindStringSubmatch(text)
	if m == nil {
		return plot.FormatPNG
	}
	switch strings.ToLower(m[1]) {
	case "jpeg", "jpg", "webp":
		return plot.FormatJPEG
	}
	return plot.FormatPNG
}
