package plot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// pointStyle draws markers only, no connecting stroke.
func pointStyle(col drawing.Color, dpi int) chart.Style {
	w := 4.0
	if dpi < DefaultDPI/2 {
		w = 3
	}
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    w,
		DotColor:    col,
	}
}

// lineStyle is a dashed stroke, kept visually distinct from the markers.
func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor:     col,
		StrokeWidth:     2,
		StrokeDashArray: []float64{6, 4},
	}
}

// drawFigure renders the scatter and its regression line for a single rung.
// The chart and image buffers are local to the call.
func drawFigure(samples []Sample, reg Regression, labels Labels, r Rung) (image.Image, error) {
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	minX, maxX := samples[0].X, samples[0].X
	minY, maxY := samples[0].Y, samples[0].Y
	for i, s := range samples {
		xs[i], ys[i] = s.X, s.Y
		if s.X < minX {
			minX = s.X
		}
		if s.X > maxX {
			maxX = s.X
		}
		if s.Y < minY {
			minY = s.Y
		}
		if s.Y > maxY {
			maxY = s.Y
		}
	}

	yAxis := chart.YAxis{Name: axisName(labels.Y, "y")}
	if minY == maxY {
		// go-chart refuses a zero-height range
		pad := 1.0
		if minY != 0 {
			pad = abs(minY) * 0.1
		}
		yAxis.Range = &chart.ContinuousRange{Min: minY - pad, Max: maxY + pad}
	}

	ch := chart.Chart{
		Title:      labels.Title,
		Width:      r.Width,
		Height:     r.Height,
		DPI:        float64(r.DPI),
		Background: chart.Style{Padding: chart.Box{Top: 28, Left: 16, Right: 16, Bottom: 12}},
		XAxis:      chart.XAxis{Name: axisName(labels.X, "x")},
		YAxis:      yAxis,
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Samples",
				XValues: xs,
				YValues: ys,
				Style:   pointStyle(chart.ColorBlue, r.DPI),
			},
			chart.ContinuousSeries{
				Name:    "Regression line",
				XValues: []float64{minX, maxX},
				YValues: []float64{reg.At(minX), reg.At(maxX)},
				Style:   lineStyle(chart.ColorRed),
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	return stampCaption(img, reg.String()), nil
}

// stampCaption writes text into the top-left corner using the 7x13 bitmap font.
func stampCaption(img image.Image, text string) image.Image {
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)

	face := basicfont.Face7x13
	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.RGBA{R: 200, G: 30, B: 30, A: 255}),
		Face: face,
	}
	tw := dr.MeasureString(text).Ceil()
	if tw+8 > b.Dx() {
		return rgba
	}
	x := b.Min.X + 6
	y := b.Min.Y + 4 + face.Metrics().Ascent.Ceil()
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(text)
	return rgba
}

// encode serializes img in the rung's format.
func encode(img image.Image, r Rung) ([]byte, error) {
	var buf bytes.Buffer
	switch r.Format {
	case FormatJPEG:
		q := r.Quality
		if q <= 0 || q > 100 {
			q = DefaultJPEGQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func axisName(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
