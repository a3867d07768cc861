// Package chart renders feature-importance bar charts as PNG images.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultPalette colours bars from most to least important
var DefaultPalette = []string{"#800080", "#d63384", "#3399ff", "#cc66ff", "#9933cc"}

// BarChart draws horizontal bars, first value on top
type BarChart struct {
	Width    vg.Length
	Height   vg.Length
	BarWidth vg.Length
	XLabel   string
	palette  []color.Color
}

// NewBarChart creates a 6x4 inch chart with the given hex palette
func NewBarChart(xLabel string, palette []string) (*BarChart, error) {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	colors := make([]color.Color, 0, len(palette))
	for _, hex := range palette {
		c, err := ParseHexColor(hex)
		if err != nil {
			return nil, err
		}
		colors = append(colors, c)
	}
	return &BarChart{
		Width:    6 * vg.Inch,
		Height:   4 * vg.Inch,
		BarWidth: vg.Points(20),
		XLabel:   xLabel,
		palette:  colors,
	}, nil
}

// Render returns the PNG encoding of the chart
func (b *BarChart) Render(title string, names []string, values []float64) ([]byte, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("got %d names for %d values", len(names), len(values))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = b.XLabel

	n := len(values)
	if n == 0 {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
	}

	ticks := make([]string, n)
	for i, v := range values {
		bar, err := plotter.NewBarChart(plotter.Values{v}, b.BarWidth)
		if err != nil {
			return nil, fmt.Errorf("bar %s: %w", names[i], err)
		}
		bar.Horizontal = true
		// Bars are laid out bottom-up; flip so the first value is on top
		bar.XMin = float64(n - 1 - i)
		bar.Color = b.palette[i%len(b.palette)]
		bar.LineStyle.Width = 0
		p.Add(bar)
		ticks[n-1-i] = names[i]
	}
	if n > 0 {
		p.NominalY(ticks...)
		p.X.Min = 0
	}

	w, err := p.WriterTo(b.Width, b.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("creating png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("rendering chart: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHexColor parses "#rrggbb"
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
