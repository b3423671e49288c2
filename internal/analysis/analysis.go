// Package analysis sends a question plus the product dataset to a hosted model and
// returns a structured summary and chart.
package analysis

import (
	"context"
	"time"

	"github.com/normanking/veriflow/internal/dataset"
)

// ChartType is the visualization the model picked
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartPie  ChartType = "pie"
	ChartNone ChartType = "none"
)

// Valid reports whether t is a known chart type
func (t ChartType) Valid() bool {
	switch t {
	case ChartBar, ChartPie, ChartNone:
		return true
	}
	return false
}

// DataPoint is one labelled value in a chart
type DataPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Chart is the model's chart recommendation
type Chart struct {
	Type ChartType   `json:"type"`
	Data []DataPoint `json:"data"`
}

// Renderable reports whether the chart has something to draw.
func (c *Chart) Renderable() bool {
	return c != nil && c.Type != ChartNone && c.Type.Valid() && len(c.Data) > 0
}

// Result is one analysis answer
type Result struct {
	Summary string `json:"summary"`
	Chart   Chart  `json:"chart"`
}

// normalize coerces model output into the documented shape.
func (r *Result) normalize() {
	if !r.Chart.Type.Valid() {
		r.Chart.Type = ChartNone
	}
	if r.Chart.Data == nil {
		r.Chart.Data = []DataPoint{}
	}
}

// Analyzer answers a question about a dataset.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, data *dataset.Dataset) (*Result, error)
	Name() string
}

// Observer receives one callback per analysis call.
type Observer interface {
	ObserveAnalysis(provider string, err error, elapsed time.Duration)
}

// Instrumented wraps an Analyzer and reports every call to obs.
func Instrumented(a Analyzer, obs Observer) Analyzer {
	if obs == nil {
		return a
	}
	return &instrumented{Analyzer: a, obs: obs}
}

type instrumented struct {
	Analyzer
	obs Observer
}

func (i *instrumented) Analyze(ctx context.Context, prompt string, data *dataset.Dataset) (*Result, error) {
	start := time.Now()
	res, err := i.Analyzer.Analyze(ctx, prompt, data)
	i.obs.ObserveAnalysis(i.Analyzer.Name(), err, time.Since(start))
	return res, err
}
