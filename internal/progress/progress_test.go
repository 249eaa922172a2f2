package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_DeliversInOrder(t *testing.T) {
	e := NewEmitter()
	var got []EventType
	e.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	e.Emit(Event{Type: EventRowStarted, Row: 0})
	e.Emit(Event{Type: EventAgentProgress, Row: 0, Stage: "generating"})
	e.Emit(Event{Type: EventRowCompleted, Row: 0})

	require.Len(t, got, 3)
	assert.Equal(t, []EventType{EventRowStarted, EventAgentProgress, EventRowCompleted}, got)
}

func TestEmitter_MultipleConsumers(t *testing.T) {
	e := NewEmitter()
	var a, b int
	e.Subscribe(func(Event) { a++ })
	e.Subscribe(func(Event) { b++ })

	e.Emit(Event{Type: EventRowStarted})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestEmitter_TimestampDefaulted(t *testing.T) {
	e := NewEmitter()
	var got Event
	e.Subscribe(func(ev Event) { got = ev })

	e.Emit(Event{Type: EventRowStarted})
	assert.False(t, got.Timestamp.IsZero())

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e.Emit(Event{Type: EventRowStarted, Timestamp: fixed})
	assert.Equal(t, fixed, got.Timestamp)
}

func TestEmitter_CloseDropsLateEvents(t *testing.T) {
	e := NewEmitter()
	var count int
	e.Subscribe(func(Event) { count++ })

	e.Emit(Event{Type: EventRowStarted})
	e.Close()
	e.Emit(Event{Type: EventRowCompleted})

	assert.Equal(t, 1, count)
}

func TestEmitter_ConcurrentEmitNoLossNoDuplication(t *testing.T) {
	e := NewEmitter()
	seen := make(map[int]int)
	e.Subscribe(func(ev Event) { seen[ev.Row]++ })

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			e.Emit(Event{Type: EventRowStarted, Row: row})
		}(i)
	}
	wg.Wait()

	require.Len(t, seen, n)
	for row, count := range seen {
		assert.Equal(t, 1, count, "row %d delivered %d times", row, count)
	}
}
