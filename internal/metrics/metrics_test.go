package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/normanking/veriflow/internal/analysis"
	"github.com/normanking/veriflow/internal/bus"
	"github.com/normanking/veriflow/internal/history"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAnalysis(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAnalysis("gemini", nil, 300*time.Millisecond)
	m.ObserveAnalysis("gemini", analysis.ReasonedError{Err: analysis.ErrAnalysisUnavailable, Reason: analysis.ReasonStatus}, time.Second)
	m.ObserveAnalysis("gemini", fmt.Errorf("wrapped: %w", errors.New("plain")), time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCount.WithLabelValues("gemini", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCount.WithLabelValues("gemini", "status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCount.WithLabelValues("gemini", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AnalysisLatency))
}

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("POST", "/api/messages", 202, 10*time.Millisecond)
	m.ObserveRequest("POST", "/api/messages", 409, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues("POST", "/api/messages", "202")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues("POST", "/api/messages", "409")))
}

func TestAttach(t *testing.T) {
	m := New(prometheus.NewRegistry())
	eb := bus.NewEventBus()
	detach := m.Attach(eb)

	eb.PublishSync(bus.Event{Type: bus.EventTypeTurnAppended, Data: map[string]any{"turn": history.Turn{Role: history.RoleUser, Content: "q"}}})
	eb.PublishSync(bus.Event{Type: bus.EventTypeTurnAppended, Data: map[string]any{"turn": history.Turn{Role: history.RoleBot, Content: "a"}}})
	eb.PublishSync(bus.Event{Type: bus.EventTypeDatasetChanged, Data: map[string]any{"name": "x.json"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnCount.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnCount.WithLabelValues("bot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetUploads))

	detach()
	eb.PublishSync(bus.Event{Type: bus.EventTypeDatasetChanged})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetUploads))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
