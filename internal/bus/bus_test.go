package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncOrder(t *testing.T) {
	b := NewEventBus()
	var got []int

	b.Subscribe(EventTypeTurnAppended, func(Event) { got = append(got, 1) })
	b.Subscribe(EventTypeTurnAppended, func(Event) { got = append(got, 2) })
	b.Subscribe(EventTypeChartUpdated, func(Event) { got = append(got, 99) })

	b.PublishSync(Event{Type: EventTypeTurnAppended})
	assert.Equal(t, []int{1, 2}, got)
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()
	calls := 0
	unsub := b.Subscribe(EventTypeMoodChanged, func(Event) { calls++ })

	b.PublishSync(Event{Type: EventTypeMoodChanged})
	unsub()
	b.PublishSync(Event{Type: EventTypeMoodChanged})
	unsub()

	assert.Equal(t, 1, calls)
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()
	var types []EventType
	unsub := b.SubscribeMultiple([]EventType{EventTypeMoodChanged, EventTypeOverlayChanged}, func(e Event) {
		types = append(types, e.Type)
	})

	b.PublishSync(Event{Type: EventTypeMoodChanged})
	b.PublishSync(Event{Type: EventTypeOverlayChanged})
	unsub()
	b.PublishSync(Event{Type: EventTypeMoodChanged})

	assert.Equal(t, []EventType{EventTypeMoodChanged, EventTypeOverlayChanged}, types)
}

func TestPublishAsync(t *testing.T) {
	b := NewEventBus()
	var wg sync.WaitGroup
	wg.Add(1)

	var data map[string]any
	b.Subscribe(EventTypeChartUpdated, func(e Event) {
		data = e.Data
		wg.Done()
	})
	b.Publish(Event{Type: EventTypeChartUpdated, Data: map[string]any{"type": "bar"}})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
	require.NotNil(t, data)
	assert.Equal(t, "bar", data["type"])
}

func TestClear(t *testing.T) {
	b := NewEventBus()
	called := false
	b.Subscribe(EventTypePose, func(Event) { called = true })
	b.Clear()
	b.PublishSync(Event{Type: EventTypePose})
	assert.False(t, called)
}
