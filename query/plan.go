package query

import (
	"sort"

	"github.com/mockbase/mockbase/store"
)

// Order is the plan's sole ordering key.
type Order struct {
	Column    string
	Ascending bool
}

type planOp int

const (
	opSelect planOp = iota
	opUpdate
	opDelete
)

// Plan is an inert description of one table operation: accumulated
// filters, at most one ordering key and a pagination mode. Builder
// methods return a new plan value, so resolution is a pure function
// of the final plan.
type Plan struct {
	q     *Query
	op    planOp
	patch store.Row

	filters  []Filter
	order    *Order
	limit    int
	hasLimit bool
	from, to int
	hasRange bool
}

func (p Plan) where(column string, op Operator, value any) Plan {
	filters := make([]Filter, len(p.filters), len(p.filters)+1)
	copy(filters, p.filters)
	p.filters = append(filters, Filter{Column: column, Op: op, Value: value})
	return p
}

func (p Plan) Eq(column string, value any) Plan  { return p.where(column, OpEq, value) }
func (p Plan) Neq(column string, value any) Plan { return p.where(column, OpNeq, value) }
func (p Plan) Gt(column string, value any) Plan  { return p.where(column, OpGt, value) }
func (p Plan) Gte(column string, value any) Plan { return p.where(column, OpGte, value) }
func (p Plan) Lt(column string, value any) Plan  { return p.where(column, OpLt, value) }
func (p Plan) Lte(column string, value any) Plan { return p.where(column, OpLte, value) }

// Like matches with % as a multi-character wildcard, case-sensitively.
func (p Plan) Like(column string, pattern string) Plan {
	return p.where(column, OpLike, pattern)
}

// Ilike is Like without case sensitivity.
func (p Plan) Ilike(column string, pattern string) Plan {
	return p.where(column, OpIlike, pattern)
}

// In matches membership in the given value list.
func (p Plan) In(column string, values []any) Plan {
	return p.where(column, OpIn, values)
}

// OrderBy sets the ordering key, replacing any previous one.
func (p Plan) OrderBy(column string, ascending bool) Plan {
	p.order = &Order{Column: column, Ascending: ascending}
	return p
}

// Limit caps the result to the first n rows after filtering and
// ordering.
func (p Plan) Limit(n int) Plan {
	p.limit = n
	p.hasLimit = true
	return p
}

// Range keeps the inclusive slice [from, to] of the filtered, ordered
// rows.
func (p Plan) Range(from, to int) Plan {
	p.from = from
	p.to = to
	p.hasRange = true
	return p
}

// apply runs the fixed filter, then order, then paginate pipeline.
func (p Plan) apply(rows []store.Row) []store.Row {
	return p.paginate(p.sorted(ApplyFilters(rows, p.filters)))
}

// sorted orders rows by the plan's ordering key. The sort is stable:
// equal or incomparable keys keep their relative input order.
func (p Plan) sorted(rows []store.Row) []store.Row {
	if p.order == nil {
		return rows
	}
	column, asc := p.order.Column, p.order.Ascending
	sort.SliceStable(rows, func(i, j int) bool {
		c, ok := compareValues(rows[i][column], rows[j][column])
		if !ok {
			return false
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
	return rows
}

// paginate applies the plan's pagination mode.
// Range wins over limit when both are set. Looks like a bug, but the
// emulated platform does it, so keep it.
func (p Plan) paginate(rows []store.Row) []store.Row {
	if p.hasRange {
		from, to := p.from, p.to
		if from < 0 {
			from = 0
		}
		if from >= len(rows) || to < from {
			return []store.Row{}
		}
		end := to + 1
		if end > len(rows) {
			end = len(rows)
		}
		return rows[from:end]
	}
	if p.hasLimit {
		n := p.limit
		if n < 0 {
			n = 0
		}
		if n < len(rows) {
			return rows[:n]
		}
	}
	return rows
}
