package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mockbase/mockbase/pkg"
)

// Row maps field names to values. Every stored row carries an "id"
// unique within its table; the engine also writes "created_at" and,
// after any update, "updated_at". Callers never set those directly.
type Row = pkg.Map[string, any]

const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// NewRowID synthesizes a row id: millisecond timestamp plus a random
// suffix, unique enough to survive concurrent synthesis.
func NewRowID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// RowID returns the row's id as a string key. Caller-supplied numeric
// ids are keyed by their printed form.
func RowID(r Row) string {
	switch id := r[FieldID].(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// Timestamp is the bookkeeping time format written into rows.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func CloneRow(r Row) Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func CloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = CloneRow(r)
	}
	return out
}
