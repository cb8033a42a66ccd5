// Package mockbase is an in-process emulator of a hosted
// database-and-realtime platform. It ties the shared state store, the
// query/mutation engine, the change dispatcher and the auth and file
// storage emulators behind one client, so application code can run and
// be tested without live credentials.
package mockbase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mockbase/mockbase/auth"
	"github.com/mockbase/mockbase/kv"
	"github.com/mockbase/mockbase/pkg"
	"github.com/mockbase/mockbase/query"
	"github.com/mockbase/mockbase/realtime"
	"github.com/mockbase/mockbase/storage"
	"github.com/mockbase/mockbase/store"
	"go.uber.org/zap"
)

// Row is re-exported for consumer convenience.
type Row = store.Row

// ErrNotImplemented is returned when a stored procedure has no
// registered emulation.
var ErrNotImplemented = errors.New("not implemented")

// Function emulates one stored procedure.
type Function func(args Row) (any, error)

type Config struct {
	// KV is the durable store backing persistence. Defaults to an
	// in-memory store.
	KV kv.Store
	// Logger defaults to a no-op logger.
	Logger *zap.SugaredLogger
	// Latency is an artificial delay applied before each table
	// operation.
	Latency time.Duration
}

type Client struct {
	st      *store.Store
	bus     *realtime.Bus
	auth    *auth.Auth
	storage *storage.Storage

	mu  sync.RWMutex
	fns pkg.Map[string, Function]
}

func New(cfg Config) *Client {
	if cfg.KV == nil {
		cfg.KV = kv.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = pkg.NopLogger()
	}

	st := store.New(store.Options{KV: cfg.KV, Logger: cfg.Logger, Latency: cfg.Latency})
	return &Client{
		st:      st,
		bus:     realtime.NewBus(cfg.Logger),
		auth:    auth.New(cfg.KV, cfg.Logger),
		storage: storage.New(st),
		fns:     pkg.Map[string, Function]{},
	}
}

// From scopes the query/mutation engine to one table.
func (c *Client) From(table string) *query.Query {
	return query.New(c.st, c.bus, table)
}

// Channel returns a realtime channel builder.
func (c *Client) Channel(name string) *realtime.Channel {
	return c.bus.Channel(name)
}

func (c *Client) Auth() *auth.Auth { return c.auth }

func (c *Client) Storage() *storage.Storage { return c.storage }

// Store exposes the shared state store for test helpers: seeding,
// resets, fault injection.
func (c *Client) Store() *store.Store { return c.st }

// Bus exposes the dispatcher, mainly so tests can trigger
// notifications without a real mutation.
func (c *Client) Bus() *realtime.Bus { return c.bus }

// RegisterFunction installs a stored-procedure emulation under name.
func (c *Client) RegisterFunction(name string, fn Function) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns.Set(name, fn)
}

// CallFunction invokes a registered stored procedure. Calling an
// unregistered name yields ErrNotImplemented.
func (c *Client) CallFunction(name string, args Row) (any, error) {
	c.mu.RLock()
	fn := c.fns.Get(name)
	c.mu.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("function %q: %w", name, ErrNotImplemented)
	}
	return fn(args)
}

// Reset clears tables, blobs, faults and published channels. Test
// helper.
func (c *Client) Reset() {
	c.st.Reset()
	c.bus.Close()
}
