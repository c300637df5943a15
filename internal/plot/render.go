// Package plot renders a scatterplot with its least-squares regression line
// into an image data URI whose encoded size stays under a byte budget.
package plot

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Artifact is an encoded figure. The renderer keeps no reference to it.
type Artifact struct {
	Data      []byte
	MediaType string
	// Rung is the ladder index that satisfied the budget; Settings is that rung.
	Rung       int
	Settings   Rung
	Regression Regression
}

// DataURI returns "data:<media-type>;base64,<payload>".
func (a *Artifact) DataURI() string {
	return dataURIPrefix(a.MediaType) + base64.StdEncoding.EncodeToString(a.Data)
}

// Digest is a short content hash of the encoded bytes.
func (a *Artifact) Digest() string {
	return strconv.FormatUint(xxhash.Sum64(a.Data), 16)
}

func dataURIPrefix(mediaType string) string {
	return "data:" + mediaType + ";base64,"
}

// RawBudget converts a ceiling on the length of the whole data URI into the
// largest raw image size whose data URI still fits.
func RawBudget(encodedChars int, mediaType string) int {
	payload := encodedChars - len(dataURIPrefix(mediaType))
	if payload <= 0 {
		return 0
	}
	return payload / 4 * 3
}

// Render fits samples, draws the figure and walks the degradation ladder
// until an encoding fits cfg.MaxBytes.
//
// It fails with *InsufficientDataError for fewer than two samples,
// *DegenerateInputError when x has no variance and *SizeBudgetExceededError
// when the final rung is still too large.
func Render(samples []Sample, cfg RenderConfig) (*Artifact, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	reg, err := Fit(samples)
	if err != nil {
		return nil, err
	}

	rungs := cfg.rungs()
	last := 0
	for i, r := range rungs {
		img, err := drawFigure(samples, reg, cfg.Labels, r)
		if err != nil {
			return nil, fmt.Errorf("plot: rung %d (%s): %w", i, r, err)
		}
		data, err := encode(img, r)
		if err != nil {
			return nil, fmt.Errorf("plot: rung %d (%s): %w", i, r, err)
		}
		last = len(data)
		if last <= cfg.MaxBytes {
			return &Artifact{
				Data:       data,
				MediaType:  r.Format.MediaType(),
				Rung:       i,
				Settings:   r,
				Regression: reg,
			}, nil
		}
	}
	return nil, &SizeBudgetExceededError{MaxBytes: cfg.MaxBytes, LastSize: last, Rungs: len(rungs)}
}
