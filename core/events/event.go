package events

import (
	"sync"

	"leadfive/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the HTTP stream,
// the audit log).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each registered emitter in order.
type Fanout struct {
	mu      sync.RWMutex
	targets []Emitter
}

// Add registers an additional emitter.
func (f *Fanout) Add(e Emitter) {
	if e == nil {
		return
	}
	f.mu.Lock()
	f.targets = append(f.targets, e)
	f.mu.Unlock()
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(e Event) {
	f.mu.RLock()
	targets := f.targets
	f.mu.RUnlock()
	for _, t := range targets {
		t.Emit(e)
	}
}
