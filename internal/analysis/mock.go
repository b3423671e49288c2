package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/normanking/veriflow/internal/dataset"
	"github.com/samber/lo"
)

// AnalyzeFunc computes a canned answer
type AnalyzeFunc func(ctx context.Context, prompt string, data *dataset.Dataset) (*Result, error)

// Mock is a scriptable Analyzer for tests. Without Func it answers with an empty
// summary and no chart.
type Mock struct {
	Func AnalyzeFunc

	mu    sync.Mutex
	calls []string
}

// NewMock creates a mock that always returns result
func NewMock(result *Result) *Mock {
	return &Mock{Func: func(context.Context, string, *dataset.Dataset) (*Result, error) {
		r := *result
		r.Chart.Data = append([]DataPoint(nil), result.Chart.Data...)
		return &r, nil
	}}
}

// Name returns the provider identifier
func (m *Mock) Name() string { return "mock" }

// Analyze records the prompt and delegates to Func.
func (m *Mock) Analyze(ctx context.Context, prompt string, data *dataset.Dataset) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	fn := m.Func
	m.mu.Unlock()

	if fn == nil {
		return &Result{Chart: Chart{Type: ChartNone, Data: []DataPoint{}}}, nil
	}
	return fn(ctx, prompt, data)
}

// Calls returns the prompts received so far
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Offline is a demo stand-in selected by the offline-demo provider. It is not the
// analysis path: it recognizes two canned question shapes and ignores everything
// else in the prompt. Real answers come from Gemini.
type Offline struct{}

// Name returns the provider identifier
func (Offline) Name() string { return "offline-demo" }

// Analyze answers category questions with a stock pie chart and everything else
// with the three most expensive products.
func (Offline) Analyze(_ context.Context, prompt string, data *dataset.Dataset) (*Result, error) {
	products, err := data.Products()
	if err != nil || len(products) == 0 {
		return &Result{
			Summary: "The loaded data does not look like a product list, so there is nothing to chart offline.",
			Chart:   Chart{Type: ChartNone, Data: []DataPoint{}},
		}, nil
	}

	if strings.Contains(strings.ToLower(prompt), "categor") {
		byCategory := lo.GroupBy(products, func(p dataset.Product) string { return p.Category })
		names := lo.Keys(byCategory)
		sort.Strings(names)
		points := lo.Map(names, func(name string, _ int) DataPoint {
			return DataPoint{Name: name, Value: float64(lo.SumBy(byCategory[name], func(p dataset.Product) int { return p.Stock }))}
		})
		top := lo.MaxBy(points, func(a, b DataPoint) bool { return a.Value > b.Value })
		return &Result{
			Summary: fmt.Sprintf("%s has the most stock with %.0f units.", top.Name, top.Value),
			Chart:   Chart{Type: ChartPie, Data: points},
		}, nil
	}

	sorted := append([]dataset.Product(nil), products...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price > sorted[j].Price })
	top := lo.Subset(sorted, 0, 3)
	points := lo.Map(top, func(p dataset.Product, _ int) DataPoint {
		return DataPoint{Name: p.Name, Value: p.Price}
	})
	return &Result{
		Summary: fmt.Sprintf("The most expensive product is %s at %.0f.", top[0].Name, top[0].Price),
		Chart:   Chart{Type: ChartBar, Data: points},
	}, nil
}
