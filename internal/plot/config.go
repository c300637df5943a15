package plot

import (
	"errors"
	"fmt"
	"strings"
)

// Format is the raster encoding used for an artifact.
type Format int

const (
	// FormatPNG is the lossless compressed raster format.
	FormatPNG Format = iota
	// FormatJPEG is the lossy compressed raster format.
	FormatJPEG
)

// MediaType returns the MIME type declared in the data URI.
func (f Format) MediaType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Lossy reports whether the format discards information.
func (f Format) Lossy() bool { return f == FormatJPEG }

func (f Format) String() string {
	if f == FormatJPEG {
		return "jpeg"
	}
	return "png"
}

// ParseFormat accepts "png"/"lossless" and "jpeg"/"jpg"/"lossy".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "lossless", "":
		return FormatPNG, nil
	case "jpeg", "jpg", "lossy":
		return FormatJPEG, nil
	default:
		return FormatPNG, fmt.Errorf("unsupported image format: %s (use png|jpeg)", s)
	}
}

// Defaults for RenderConfig and the degradation ladder.
const (
	DefaultMaxBytes    = 75000
	DefaultWidth       = 800
	DefaultHeight      = 600
	DefaultDPI         = 100
	DefaultJPEGQuality = 75
	FloorJPEGQuality   = 50
	MinWidth           = 300
	MinHeight          = 200
)

// Rung is one attempted rendering configuration of the degradation ladder.
type Rung struct {
	Width   int
	Height  int
	DPI     int
	Format  Format
	Quality int // JPEG only
}

func (r Rung) String() string {
	if r.Format.Lossy() {
		return fmt.Sprintf("%dx%d@%ddpi %s q%d", r.Width, r.Height, r.DPI, r.Format, r.Quality)
	}
	return fmt.Sprintf("%dx%d@%ddpi %s", r.Width, r.Height, r.DPI, r.Format)
}

// Labels names the figure and its axes.
type Labels struct {
	Title string
	X     string
	Y     string
}

// RenderConfig describes one render request. The renderer never modifies it.
type RenderConfig struct {
	// MaxBytes bounds the raw (pre-base64) encoded image size.
	MaxBytes int
	Format   Format
	Width    int
	Height   int
	DPI      int
	Labels   Labels
	// Ladder overrides the default degradation ladder when non-empty.
	Ladder []Rung
}

// DefaultConfig returns an 800x600 PNG config bounded by DefaultMaxBytes.
func DefaultConfig() RenderConfig {
	return RenderConfig{
		MaxBytes: DefaultMaxBytes,
		Format:   FormatPNG,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		DPI:      DefaultDPI,
	}
}

func (c RenderConfig) validate() error {
	var errs []error
	if c.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("max bytes must be positive, got %d", c.MaxBytes))
	}
	// a custom ladder carries its own dimensions
	if len(c.Ladder) == 0 {
		if c.Width <= 0 || c.Height <= 0 {
			errs = append(errs, fmt.Errorf("dimensions must be positive, got %dx%d", c.Width, c.Height))
		}
		if c.DPI <= 0 {
			errs = append(errs, fmt.Errorf("dpi must be positive, got %d", c.DPI))
		}
	}
	for i, r := range c.Ladder {
		if r.Width <= 0 || r.Height <= 0 || r.DPI <= 0 {
			errs = append(errs, fmt.Errorf("ladder rung %d is invalid: %s", i, r))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("plot: invalid render config: %w", errors.Join(errs...))
	}
	return nil
}

func (c RenderConfig) rungs() []Rung {
	if len(c.Ladder) > 0 {
		return c.Ladder
	}
	return DefaultLadder(c)
}

// DefaultLadder derives the standard degradation ladder from c:
//
//	0: as configured
//	1: dpi halved
//	2: width and height halved (not below MinWidth x MinHeight)
//	3: JPEG at DefaultJPEGQuality if the format was lossless
//	4: MinWidth x MinHeight JPEG at FloorJPEGQuality
//
// A rung identical to its predecessor is omitted.
func DefaultLadder(c RenderConfig) []Rung {
	r0 := Rung{Width: c.Width, Height: c.Height, DPI: c.DPI, Format: c.Format, Quality: DefaultJPEGQuality}

	r1 := r0
	r1.DPI = maxInt(r0.DPI/2, 1)

	r2 := r1
	r2.Width = maxInt(r1.Width/2, minInt(MinWidth, r1.Width))
	r2.Height = maxInt(r1.Height/2, minInt(MinHeight, r1.Height))

	r3 := r2
	r3.Format = FormatJPEG

	r4 := Rung{
		Width:   minInt(MinWidth, r3.Width),
		Height:  minInt(MinHeight, r3.Height),
		DPI:     r3.DPI,
		Format:  FormatJPEG,
		Quality: FloorJPEGQuality,
	}

	out := make([]Rung, 0, 5)
	for _, r := range []Rung{r0, r1, r2, r3, r4} {
		if len(out) > 0 && out[len(out)-1] == r {
			continue
		}
		out = append(out, r)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
