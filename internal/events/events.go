// Package events defines structured event types emitted while a run
// moves hosts through the reconciliation pipeline.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	RunStarted    Type = "run.started"
	RunCompleted  Type = "run.completed"
	HostStarted   Type = "host.started"
	HostCompleted Type = "host.completed"
	HostSkipped   Type = "host.skipped"
	ProbeDone     Type = "probe.completed"
	PlanComputed  Type = "plan.computed"
	ApplyResource Type = "apply.resource"
	RestartFired  Type = "restart.fired"
)

// Event is one structured record of pipeline progress.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Host      string                 `json:"host,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates an event stamped with the current time.
func New(eventType Type, runID string) *Event {
	return &Event{Type: eventType, Timestamp: time.Now().UTC(), RunID: runID}
}

// WithHost tags the event with a host name and returns it for chaining.
func (e *Event) WithHost(host string) *Event {
	e.Host = host
	return e
}

// WithData adds a data field and returns the event for chaining.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// JSON returns the event serialized as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter is the interface for event consumers.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// Collector gathers events in memory. Hosts reconcile concurrently, so
// emission is serialized.
type Collector struct {
	mu     sync.Mutex
	events []*Event
}

// Emit appends the event to the collector.
func (c *Collector) Emit(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a snapshot of everything collected so far.
func (c *Collector) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event{}, c.events...)
}
