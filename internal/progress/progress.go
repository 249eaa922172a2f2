// Package progress is the ordered event channel between the batch engine
// and its presentation consumers. Delivery is at-most-once per event and
// FIFO within one row's lifecycle; ordering across rows is not guaranteed.
package progress

import (
	"sync"
	"time"
)

// EventType identifies a progress event kind.
type EventType string

const (
	EventRowStarted    EventType = "row_started"
	EventAgentProgress EventType = "agent_progress"
	EventRowCompleted  EventType = "row_completed"
	EventRowFailed     EventType = "row_failed"
	EventBatchComplete EventType = "batch_complete"
)

// Event is one progress notification. Payload fields are populated
// according to Type; Row is meaningless for BatchComplete.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	JobID     string        `json:"job_id,omitempty"`
	Row       int           `json:"row"`
	Stage     string        `json:"stage,omitempty"`     // AgentProgress, display-only
	Answer    string        `json:"answer,omitempty"`    // RowCompleted
	Links     []string      `json:"links,omitempty"`     // RowCompleted documentation set
	Reason    string        `json:"reason,omitempty"`    // RowFailed
	Processed int           `json:"processed,omitempty"` // BatchComplete
	Duration  time.Duration `json:"duration,omitempty"`  // BatchComplete
}

// Consumer receives events. Consumers must tolerate out-of-order arrival
// across different rows and discard events for jobs they consider terminal.
type Consumer func(Event)

// Emitter fans events out to subscribed consumers. One instance per run.
// Emit is safe for concurrent use; the internal lock serializes delivery so
// no event is lost or duplicated.
type Emitter struct {
	mu        sync.Mutex
	consumers []Consumer
	closed    bool
}

// NewEmitter creates an emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a consumer for all subsequent events.
func (e *Emitter) Subscribe(c Consumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumers = append(e.consumers, c)
}

// Emit delivers the event to every consumer, in subscription order.
// Events emitted after Close are dropped.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, c := range e.consumers {
		c(ev)
	}
}

// Close stops delivery. Late events from stragglers are silently discarded,
// so a consumer never sees events for a job after its terminal event.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}
