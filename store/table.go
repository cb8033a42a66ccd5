package store

import "github.com/mockbase/mockbase/pkg"

// Table is a named collection of rows keyed by id. Iteration follows
// insertion order; replacing a row keeps its original position, which
// is what makes equal-key sorts and unsorted reads stable.
//
// Tables carry no schema. They come into existence on first reference
// and synchronization is the owning Store's job.
type Table struct {
	Name string

	rows *pkg.InsertSortMap[string, Row]
}

func NewTable(name string) *Table {
	return &Table{Name: name, rows: pkg.NewInsertSortMap[string, Row]()}
}

func (t *Table) Len() int { return t.rows.Len() }

func (t *Table) Get(id string) (Row, bool) {
	if !t.rows.Has(id) {
		return nil, false
	}
	return t.rows.Get(id), true
}

// Put inserts the row, or replaces the row with the same id in place.
func (t *Table) Put(row Row) {
	t.rows.Push(RowID(row), row)
}

func (t *Table) Delete(id string) (Row, bool) {
	if !t.rows.Has(id) {
		return nil, false
	}
	row := t.rows.Get(id)
	t.rows.Delete(id)
	return row, true
}

// Rows returns the rows in insertion order.
func (t *Table) Rows() []Row {
	return t.rows.Values()
}
