package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Channel accumulates table-change subscriptions until Subscribe
// publishes them into the bus registry, and carries local broadcast
// listeners. Channels are created on demand and destroyed (removed
// from the registry) on Unsubscribe.
type Channel struct {
	bus  *Bus
	name string

	mu        sync.Mutex
	pending   []subscription
	listeners map[string][]BroadcastFunc
	joined    bool
	statusFn  StatusFunc
}

// Channel returns a channel builder for the given name. An empty name
// gets a generated one.
func (b *Bus) Channel(name string) *Channel {
	if name == "" {
		name = uuid.NewString()
	}
	return &Channel{
		bus:       b,
		name:      name,
		listeners: map[string][]BroadcastFunc{},
	}
}

func (c *Channel) Name() string { return c.name }

// Joined reports the connection-status flag.
func (c *Channel) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// OnChange registers a table-change listener. It takes effect only
// once Subscribe is called. A nil filter matches any row.
func (c *Channel) OnChange(event Event, table string, filter *Filter, fn ChangeFunc) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, subscription{table: table, event: event, filter: filter, fn: fn})
	return c
}

// Subscribe publishes the accumulated subscriptions into the bus
// registry under the channel's name and marks it connected. The status
// callback fires on its own goroutine; callers must not assume the
// "subscribed" status has been observed when Subscribe returns.
func (c *Channel) Subscribe(status StatusFunc) *Channel {
	c.mu.Lock()
	subs := make([]subscription, len(c.pending))
	copy(subs, c.pending)
	c.joined = true
	c.statusFn = status
	c.mu.Unlock()

	c.bus.publish(c.name, subs)
	if status != nil {
		go status(StatusSubscribed)
	}
	return c
}

// Unsubscribe removes the channel from the registry and marks it
// disconnected. Idempotent.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	wasJoined := c.joined
	c.joined = false
	status := c.statusFn
	c.statusFn = nil
	c.mu.Unlock()

	c.bus.unpublish(c.name)
	if wasJoined && status != nil {
		status(StatusClosed)
	}
}

// On registers a local broadcast listener for the given event name.
func (c *Channel) On(event string, fn BroadcastFunc) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = append(c.listeners[event], fn)
	return c
}

// Send delivers the payload immediately to every local listener
// registered for the event so far. There is no queuing: a listener
// registered after Send never sees the message.
func (c *Channel) Send(event string, payload map[string]any) {
	c.mu.Lock()
	listeners := make([]BroadcastFunc, len(c.listeners[event]))
	copy(listeners, c.listeners[event])
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(payload)
	}
}
