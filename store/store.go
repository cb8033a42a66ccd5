// Package store is the emulator's shared mutable state: the table
// mapping, auxiliary blob space and test-only fault injectors, plus
// the persistence adapter that mirrors every mutation into a durable
// key-value store.
package store

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mockbase/mockbase/kv"
	"github.com/mockbase/mockbase/pkg"
	sorted "github.com/tobshub/go-sortedmap"
	"go.uber.org/zap"
)

// DatabaseKey is the durable blob the whole table mapping serializes to.
const DatabaseKey = "mockbase/database"

type Options struct {
	KV     kv.Store
	Logger *zap.SugaredLogger
	// Latency is slept before each operation touches a table.
	Latency time.Duration
}

type Store struct {
	mu sync.RWMutex

	// table_name -> table, iterated in name order
	tables  *sorted.SortedMap[string, *Table]
	blobs   pkg.Map[string, []byte]
	faults  pkg.Map[string, error]
	kv      kv.Store
	log     *zap.SugaredLogger
	latency time.Duration
}

func tableComparisonFunc(a, b *Table) bool { return a.Name < b.Name }

// New builds a store and hydrates the table mapping from the durable
// store. A corrupt or missing blob yields an empty database, never an
// error.
func New(opts Options) *Store {
	if opts.KV == nil {
		opts.KV = kv.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = pkg.NopLogger()
	}

	s := &Store{
		tables:  sorted.New[string, *Table](0, tableComparisonFunc),
		blobs:   pkg.Map[string, []byte]{},
		faults:  pkg.Map[string, error]{},
		kv:      opts.KV,
		log:     opts.Logger,
		latency: opts.Latency,
	}
	s.hydrate()
	return s
}

func (s *Store) hydrate() {
	raw, ok, err := s.kv.Get(DatabaseKey)
	if err != nil {
		s.log.Errorw("read database blob", "error", err)
		return
	}
	if !ok {
		return
	}

	data := map[string][]Row{}
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Errorw("decode database blob", "error", err)
		return
	}

	for name, rows := range data {
		table := NewTable(name)
		for _, row := range rows {
			table.Put(row)
		}
		s.tables.Insert(name, table)
	}
	s.log.Debugw("hydrated database", "tables", len(data))
}

// Wait blocks for the configured simulated latency. The engine calls
// it once per operation, before the table is touched.
func (s *Store) Wait() {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
}

// Table returns the named table, creating it on first reference.
func (s *Store) Table(name string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableLocked(name)
}

func (s *Store) tableLocked(name string) *Table {
	if t, ok := s.tables.Get(name); ok {
		return t
	}
	t := NewTable(name)
	s.tables.Insert(name, t)
	return t
}

// HasTable reports whether the table exists without creating it.
func (s *Store) HasTable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables.Get(name)
	return ok
}

// TableNames lists existing tables in name order.
func (s *Store) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := []string{}
	iterCh, err := s.tables.IterCh()
	if err != nil {
		return names
	}
	defer iterCh.Close()
	for rec := range iterCh.Records() {
		names = append(names, rec.Val.Name)
	}
	return names
}

// Rows returns a cloned snapshot of the table's rows in insertion
// order. A missing table yields an empty snapshot.
func (s *Store) Rows(table string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables.Get(table)
	if !ok {
		return []Row{}
	}
	return CloneRows(t.Rows())
}

// Get returns a clone of one row by id.
func (s *Store) Get(table, id string) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables.Get(table)
	if !ok {
		return nil, false
	}
	row, ok := t.Get(id)
	if !ok {
		return nil, false
	}
	return CloneRow(row), true
}

// PutRows stores the rows (insert or replace by id), creating the
// table if needed, then persists the whole database.
func (s *Store) PutRows(table string, rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tableLocked(table)
	for _, row := range rows {
		t.Put(CloneRow(row))
	}
	s.persistLocked()
}

// DeleteRows removes the given ids and persists. Removed rows are
// returned; unknown ids are skipped.
func (s *Store) DeleteRows(table string, ids []string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := []Row{}
	t, ok := s.tables.Get(table)
	if !ok {
		return removed
	}
	for _, id := range ids {
		if row, ok := t.Delete(id); ok {
			removed = append(removed, row)
		}
	}
	s.persistLocked()
	return removed
}

// Seed replaces the named tables with the given rows wholesale and
// persists. Test helper.
func (s *Store) Seed(data map[string][]Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, rows := range data {
		table := NewTable(name)
		for _, row := range rows {
			table.Put(CloneRow(row))
		}
		if !s.tables.Insert(name, table) {
			s.tables.Replace(name, table)
		}
	}
	s.persistLocked()
}

// Reset drops every table, blob and armed fault, and clears the
// persisted database blob. Test helper.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = sorted.New[string, *Table](0, tableComparisonFunc)
	s.blobs = pkg.Map[string, []byte]{}
	s.faults = pkg.Map[string, error]{}
	if err := s.kv.Delete(DatabaseKey); err != nil {
		s.log.Errorw("clear database blob", "error", err)
	}
}

// Persist rewrites the durable database blob from the in-memory state.
func (s *Store) Persist() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.persistLocked()
}

// persistLocked serializes the entire table mapping into one blob.
// Failures are logged, never raised; a broken durable store must not
// fail queries.
func (s *Store) persistLocked() {
	snapshot := map[string][]Row{}
	if iterCh, err := s.tables.IterCh(); err == nil {
		for rec := range iterCh.Records() {
			snapshot[rec.Val.Name] = rec.Val.Rows()
		}
		iterCh.Close()
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		s.log.Errorw("encode database blob", "error", err)
		return
	}
	if err := s.kv.Set(DatabaseKey, raw); err != nil {
		s.log.Errorw("write database blob", "error", err)
	}
}

// InjectError arms a one-shot simulated failure for the given
// operation ("select", "insert", "update", "upsert", "delete") on the
// given table. The next matching engine call returns err instead of
// touching the table. Test helper.
func (s *Store) InjectError(op, table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.Set(op+":"+table, err)
}

// TakeError consumes an armed fault, if any.
func (s *Store) TakeError(op, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := op + ":" + table
	if !s.faults.Has(key) {
		return nil
	}
	err := s.faults.Get(key)
	s.faults.Delete(key)
	return err
}

// ClearErrors disarms every injected fault.
func (s *Store) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = pkg.Map[string, error]{}
}

// PutBlob stores a byte blob in the shared blob space (file-storage
// emulator). Blobs are ephemeral per process.
func (s *Store) PutBlob(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs.Set(key, stored)
}

func (s *Store) GetBlob(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.blobs.Has(key) {
		return nil, false
	}
	data := s.blobs.Get(key)
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func (s *Store) DeleteBlob(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.blobs.Has(key) {
		return false
	}
	s.blobs.Delete(key)
	return true
}

// BlobKeys lists blob keys with the given prefix, sorted.
func (s *Store) BlobKeys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}
	for _, k := range s.blobs.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
