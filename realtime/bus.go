// Package realtime is the emulator's change-notification dispatcher:
// a registry of named channels whose subscriptions observe table
// mutations, plus ephemeral broadcast messaging.
package realtime

import (
	"sync"

	"github.com/mockbase/mockbase/pkg"
	"github.com/mockbase/mockbase/store"
	"go.uber.org/zap"
)

// Event is a table-change event type.
type Event string

const (
	EventInsert Event = "INSERT"
	EventUpdate Event = "UPDATE"
	EventDelete Event = "DELETE"
	// EventAll subscribes to every change on the table.
	EventAll Event = "*"
)

// Change is the payload delivered to table-change subscriptions.
// New is nil for deletes, Old is nil for inserts.
type Change struct {
	Event Event
	Table string
	New   store.Row
	Old   store.Row
}

// Status reports a channel's connection transitions.
type Status string

const (
	StatusSubscribed Status = "subscribed"
	StatusClosed     Status = "closed"
	// StatusError completes the platform's status set. Subscribing
	// in-process cannot fail, so it is currently never sent.
	StatusError Status = "error"
)

type (
	ChangeFunc    func(Change)
	StatusFunc    func(Status)
	BroadcastFunc func(payload map[string]any)
)

type subscription struct {
	table  string
	event  Event
	filter *Filter
	fn     ChangeFunc
}

func (s subscription) matches(c Change) bool {
	if s.table != c.Table {
		return false
	}
	if s.event != EventAll && s.event != c.Event {
		return false
	}
	if s.filter != nil {
		// the filter is evaluated against the new row only
		return s.filter.Match(c.New)
	}
	return true
}

// Bus owns the subscription registry. Every component that needs the
// dispatcher gets a Bus injected; tests run isolated buses in parallel.
type Bus struct {
	mu sync.RWMutex
	// channel name -> published subscriptions
	registry pkg.Map[string, []subscription]
	log      *zap.SugaredLogger
}

func NewBus(log *zap.SugaredLogger) *Bus {
	if log == nil {
		log = pkg.NopLogger()
	}
	return &Bus{registry: pkg.Map[string, []subscription]{}, log: log}
}

// Dispatch delivers the change synchronously to every matching
// subscription across every channel. A misbehaving callback is the
// subscriber's own bug; the bus does not recover its panics.
func (b *Bus) Dispatch(c Change) {
	b.mu.RLock()
	matched := []subscription{}
	for _, subs := range b.registry {
		for _, sub := range subs {
			if sub.matches(c) {
				matched = append(matched, sub)
			}
		}
	}
	b.mu.RUnlock()

	b.log.Debugw("dispatch", "table", c.Table, "event", c.Event, "matched", len(matched))
	for _, sub := range matched {
		sub.fn(c)
	}
}

// Close drops every published channel from the registry.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry = pkg.Map[string, []subscription]{}
}

func (b *Bus) publish(name string, subs []subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry.Set(name, subs)
}

func (b *Bus) unpublish(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry.Delete(name)
}
