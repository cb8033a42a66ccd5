package query

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/mockbase/mockbase/pkg"
	"github.com/mockbase/mockbase/store"
)

// Operator names the filter predicates the engine supports.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpIlike Operator = "ilike"
	OpIn    Operator = "in"
)

// Filter is one (column, operator, operand) predicate.
type Filter struct {
	Column string
	Op     Operator
	Value  any
}

// Match evaluates the predicate against a row. There is no
// type-checking layer: a comparison between mismatched types is simply
// a non-match, never an error.
func (f Filter) Match(row store.Row) bool {
	value := row[f.Column]

	switch f.Op {
	case OpEq:
		return looseEq(value, f.Value)
	case OpNeq:
		return !looseEq(value, f.Value)
	case OpGt:
		c, ok := compareValues(value, f.Value)
		return ok && c > 0
	case OpGte:
		c, ok := compareValues(value, f.Value)
		return ok && c >= 0
	case OpLt:
		c, ok := compareValues(value, f.Value)
		return ok && c < 0
	case OpLte:
		c, ok := compareValues(value, f.Value)
		return ok && c <= 0
	case OpLike:
		return likeMatch(value, f.Value, false)
	case OpIlike:
		return likeMatch(value, f.Value, true)
	case OpIn:
		return inMatch(value, f.Value)
	}
	return false
}

// ApplyFilters returns the rows satisfying the AND of all filters,
// preserving input order.
func ApplyFilters(rows []store.Row, filters []Filter) []store.Row {
	if len(filters) == 0 {
		return rows
	}
	return pkg.Filter(rows, func(row store.Row) bool {
		for _, f := range filters {
			if !f.Match(row) {
				return false
			}
		}
		return true
	})
}

// looseEq compares with numeric coercion, since stored values
// round-trip through json decoding.
func looseEq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := pkg.Num(a); ok {
		bn, ok := pkg.Num(b)
		return ok && an == bn
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues imposes a total order over comparable values: numbers
// with numbers, strings with strings. Anything else is incomparable.
func compareValues(a, b any) (int, bool) {
	if an, aok := pkg.Num(a); aok {
		bn, bok := pkg.Num(b)
		if !bok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// likeMatch interprets % in the pattern as "zero or more characters".
func likeMatch(value, pattern any, caseInsensitive bool) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}

	expr := strings.ReplaceAll(regexp.QuoteMeta(p), "%", ".*")
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// inMatch tests membership of the value in the operand list.
func inMatch(value, operand any) bool {
	rv := reflect.ValueOf(operand)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if looseEq(value, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}
