// Package chart draws analysis charts as PNG or SVG images.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/normanking/veriflow/internal/analysis"
	"github.com/samber/lo"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNothingToRender is returned for a "none" chart or one without data.
var ErrNothingToRender = errors.New("chart has nothing to render")

// Format is an output image format
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" or "svg", case-insensitively. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", PNG:
		return PNG, nil
	case SVG:
		return SVG, nil
	}
	return "", fmt.Errorf("unsupported chart format %q", s)
}

// ContentType returns the MIME type for f
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() gochart.RendererProvider {
	if f == SVG {
		return gochart.SVG
	}
	return gochart.PNG
}

// Default canvas size
const (
	DefaultWidth  = 640
	DefaultHeight = 400
)

// Palette cycles across pie slices; the first entry fills bars.
var Palette = []string{"#6200ee", "#03dac6", "#f50057", "#ffab00", "#76ff03"}

var (
	surfaceColor = drawing.ColorFromHex("1e1e1e")
	mutedColor   = drawing.ColorFromHex("a0a0a0")
	gridColor    = drawing.ColorFromHex("424242")
)

// Options size and title the image. Zero values use the defaults.
type Options struct {
	Width  int
	Height int
	Title  string
}

func (o Options) size() (int, int) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

// Render draws c to w in the given format.
func Render(w io.Writer, c analysis.Chart, format Format, opts Options) error {
	if !c.Renderable() {
		return ErrNothingToRender
	}
	switch c.Type {
	case analysis.ChartBar:
		return renderBar(w, c.Data, format, opts)
	case analysis.ChartPie:
		return renderPie(w, c.Data, format, opts)
	}
	return ErrNothingToRender
}

func renderBar(w io.Writer, data []analysis.DataPoint, format Format, opts Options) error {
	width, height := opts.size()
	fill := drawing.ColorFromHex(Palette[0])

	bars := lo.Map(data, func(d analysis.DataPoint, _ int) gochart.Value {
		return gochart.Value{
			Label: d.Name,
			Value: d.Value,
			Style: gochart.Style{FillColor: fill, StrokeColor: fill, StrokeWidth: 1},
		}
	})

	bc := gochart.BarChart{
		Title:      opts.Title,
		TitleStyle: gochart.Style{FontColor: mutedColor},
		Width:      width,
		Height:     height,
		Background: gochart.Style{FillColor: surfaceColor, Padding: gochart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10}},
		Canvas:     gochart.Style{FillColor: surfaceColor},
		XAxis:      gochart.Style{FontColor: mutedColor, StrokeColor: mutedColor},
		YAxis: gochart.YAxis{
			Style:          gochart.Style{FontColor: mutedColor, StrokeColor: mutedColor},
			Range:          barRange(data),
			GridMajorStyle: gochart.Style{StrokeColor: gridColor, StrokeWidth: 1, StrokeDashArray: []float64{3, 3}},
		},
		UseBaseValue: true,
		BaseValue:    0,
		Bars:         bars,
	}
	if err := bc.Render(format.provider(), w); err != nil {
		return fmt.Errorf("render bar chart: %w", err)
	}
	return nil
}

// barRange always spans zero so a single bar, or equal bars, still have height.
func barRange(data []analysis.DataPoint) *gochart.ContinuousRange {
	lowest := lo.MinBy(data, func(a, b analysis.DataPoint) bool { return a.Value < b.Value }).Value
	highest := lo.MaxBy(data, func(a, b analysis.DataPoint) bool { return a.Value > b.Value }).Value
	low, high := math.Min(0, lowest), math.Max(0, highest)
	if high == low {
		high = low + 1
	}
	pad := (high - low) * 0.1
	if high > 0 {
		high += pad
	}
	if low < 0 {
		low -= pad
	}
	return &gochart.ContinuousRange{Min: low, Max: high}
}

func renderPie(w io.Writer, data []analysis.DataPoint, format Format, opts Options) error {
	slices := lo.Filter(data, func(d analysis.DataPoint, _ int) bool { return d.Value > 0 })
	total := lo.SumBy(slices, func(d analysis.DataPoint) float64 { return d.Value })
	if len(slices) == 0 || total <= 0 {
		return ErrNothingToRender
	}

	width, height := opts.size()
	values := lo.Map(slices, func(d analysis.DataPoint, i int) gochart.Value {
		color := drawing.ColorFromHex(Palette[i%len(Palette)])
		return gochart.Value{
			Label: fmt.Sprintf("%s %.0f%%", d.Name, d.Value/total*100),
			Value: d.Value,
			Style: gochart.Style{FillColor: color, StrokeColor: surfaceColor, StrokeWidth: 2, FontColor: drawing.ColorWhite},
		}
	})

	pc := gochart.PieChart{
		Title:      opts.Title,
		TitleStyle: gochart.Style{FontColor: mutedColor},
		Width:      width,
		Height:     height,
		Background: gochart.Style{FillColor: surfaceColor},
		Canvas:     gochart.Style{FillColor: surfaceColor},
		Values:     values,
	}
	if err := pc.Render(format.provider(), w); err != nil {
		return fmt.Errorf("render pie chart: %w", err)
	}
	return nil
}
