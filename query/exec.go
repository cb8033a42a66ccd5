// Package query is the emulator's query/mutation engine: immutable
// execution plans over one table, resolved as collection reads,
// exactly/at-most-one reads, or mutations that write back, persist and
// notify the dispatcher.
package query

import (
	"errors"

	"github.com/mockbase/mockbase/realtime"
	"github.com/mockbase/mockbase/store"
)

var (
	ErrNoRows       = errors.New("no rows found")
	ErrMultipleRows = errors.New("multiple rows found")
)

// Result is the uniform shape of every resolved collection operation.
// Callers branch on Err being non-nil, never on panics.
type Result struct {
	Data  []store.Row
	Count int
	Err   error
}

// SingleResult is the uniform shape of single-row resolutions.
type SingleResult struct {
	Data store.Row
	Err  error
}

// Query scopes the engine to one table. The bus may be nil when no
// dispatcher is attached.
type Query struct {
	st    *store.Store
	bus   *realtime.Bus
	table string
}

func New(st *store.Store, bus *realtime.Bus, table string) *Query {
	return &Query{st: st, bus: bus, table: table}
}

// Select starts an empty read plan.
func (q *Query) Select() Plan { return Plan{q: q} }

// Update starts a mutation plan that merges patch onto every row
// matching the plan's filters when executed.
func (q *Query) Update(patch store.Row) Plan {
	return Plan{q: q, op: opUpdate, patch: store.CloneRow(patch)}
}

// Delete starts a mutation plan that removes every row matching the
// plan's filters when executed.
func (q *Query) Delete() Plan { return Plan{q: q, op: opDelete} }

// Execute resolves the plan in collection form: filter, then order,
// then paginate for reads; merge-and-write-back for updates;
// remove-and-write-back for deletes. A table that does not exist yet
// resolves to an empty collection, not an error.
func (p Plan) Execute() Result {
	q := p.q
	q.st.Wait()

	switch p.op {
	case opUpdate:
		return p.runUpdate()
	case opDelete:
		return p.runDelete()
	}

	if err := q.st.TakeError("select", q.table); err != nil {
		return Result{Err: err}
	}
	rows := p.apply(q.st.Rows(q.table))
	return Result{Data: rows, Count: len(rows)}
}

// ExecuteSingle resolves the plan's filters only (ordering and
// pagination are ignored) and requires exactly one match.
func (p Plan) ExecuteSingle() SingleResult {
	return p.single(false)
}

// ExecuteMaybeSingle is ExecuteSingle except zero matches yields no
// row and no error.
func (p Plan) ExecuteMaybeSingle() SingleResult {
	return p.single(true)
}

func (p Plan) single(allowNone bool) SingleResult {
	q := p.q
	q.st.Wait()

	if err := q.st.TakeError("select", q.table); err != nil {
		return SingleResult{Err: err}
	}

	matches := ApplyFilters(q.st.Rows(q.table), p.filters)
	switch len(matches) {
	case 0:
		if allowNone {
			return SingleResult{}
		}
		return SingleResult{Err: ErrNoRows}
	case 1:
		return SingleResult{Data: matches[0]}
	}
	return SingleResult{Err: ErrMultipleRows}
}

// Insert stores one row, echoing server-assigned fields.
func (q *Query) Insert(row store.Row) SingleResult {
	res := q.InsertMany([]store.Row{row})
	if res.Err != nil {
		return SingleResult{Err: res.Err}
	}
	return SingleResult{Data: res.Data[0]}
}

// InsertMany stores the rows, assigning each a missing id and creation
// timestamp, persists the database and dispatches an insert
// notification per row.
func (q *Query) InsertMany(rows []store.Row) Result {
	q.st.Wait()
	if err := q.st.TakeError("insert", q.table); err != nil {
		return Result{Err: err}
	}

	stored := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		row := store.CloneRow(r)
		if store.RowID(row) == "" {
			row.Set(store.FieldID, store.NewRowID())
		}
		if !row.Has(store.FieldCreatedAt) {
			row.Set(store.FieldCreatedAt, store.Timestamp())
		}
		stored = append(stored, row)
	}

	q.st.PutRows(q.table, stored)
	for _, row := range stored {
		q.dispatch(realtime.EventInsert, row, nil)
	}
	return Result{Data: stored, Count: len(stored)}
}

// Upsert is Insert unless a row with the same id already exists, in
// which case the input is merged onto the existing row: the original
// creation timestamp is kept and the update timestamp refreshed.
func (q *Query) Upsert(row store.Row) SingleResult {
	res := q.UpsertMany([]store.Row{row})
	if res.Err != nil {
		return SingleResult{Err: res.Err}
	}
	return SingleResult{Data: res.Data[0]}
}

func (q *Query) UpsertMany(rows []store.Row) Result {
	q.st.Wait()
	if err := q.st.TakeError("upsert", q.table); err != nil {
		return Result{Err: err}
	}

	stored := make([]store.Row, 0, len(rows))
	changes := make([]realtime.Change, 0, len(rows))
	for _, r := range rows {
		row := store.CloneRow(r)
		id := store.RowID(row)

		existing, ok := store.Row(nil), false
		if id != "" {
			existing, ok = q.st.Get(q.table, id)
		}

		if !ok {
			if id == "" {
				row.Set(store.FieldID, store.NewRowID())
			}
			if !row.Has(store.FieldCreatedAt) {
				row.Set(store.FieldCreatedAt, store.Timestamp())
			}
			stored = append(stored, row)
			changes = append(changes, realtime.Change{
				Table: q.table, Event: realtime.EventInsert, New: row,
			})
			continue
		}

		merged := store.CloneRow(existing)
		for k, v := range row {
			merged[k] = v
		}
		merged.Set(store.FieldCreatedAt, existing.Get(store.FieldCreatedAt))
		merged.Set(store.FieldUpdatedAt, store.Timestamp())
		stored = append(stored, merged)
		changes = append(changes, realtime.Change{
			Table: q.table, Event: realtime.EventUpdate, New: merged, Old: existing,
		})
	}

	q.st.PutRows(q.table, stored)
	for _, c := range changes {
		q.dispatch(c.Event, c.New, c.Old)
	}
	return Result{Data: stored, Count: len(stored)}
}

func (p Plan) runUpdate() Result {
	q := p.q
	if err := q.st.TakeError("update", q.table); err != nil {
		return Result{Err: err}
	}

	matched := ApplyFilters(q.st.Rows(q.table), p.filters)
	if len(matched) == 0 {
		return Result{Data: []store.Row{}}
	}

	now := store.Timestamp()
	updated := make([]store.Row, 0, len(matched))
	for _, old := range matched {
		merged := store.CloneRow(old)
		for k, v := range p.patch {
			merged[k] = v
		}
		merged.Set(store.FieldUpdatedAt, now)
		updated = append(updated, merged)
	}

	q.st.PutRows(q.table, updated)
	for i, old := range matched {
		q.dispatch(realtime.EventUpdate, updated[i], old)
	}
	return Result{Data: updated, Count: len(updated)}
}

func (p Plan) runDelete() Result {
	q := p.q
	if err := q.st.TakeError("delete", q.table); err != nil {
		return Result{Err: err}
	}

	matched := ApplyFilters(q.st.Rows(q.table), p.filters)
	if len(matched) == 0 {
		return Result{Data: []store.Row{}}
	}

	ids := make([]string, len(matched))
	for i, row := range matched {
		ids[i] = store.RowID(row)
	}

	removed := q.st.DeleteRows(q.table, ids)
	for _, row := range removed {
		q.dispatch(realtime.EventDelete, nil, row)
	}
	return Result{Data: removed, Count: len(removed)}
}

func (q *Query) dispatch(event realtime.Event, newRow, oldRow store.Row) {
	if q.bus == nil {
		return
	}
	q.bus.Dispatch(realtime.Change{Table: q.table, Event: event, New: newRow, Old: oldRow})
}
