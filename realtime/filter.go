package realtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mockbase/mockbase/pkg"
	"github.com/mockbase/mockbase/store"
)

// Filter is a single-column equality constraint on dispatched rows.
// It is built once, at subscribe time, never re-parsed per event.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// ParseFilter parses the platform's wire form, "column=eq.value".
// Only the eq operator is supported on subscriptions.
func ParseFilter(expr string) (Filter, error) {
	column, rest, ok := strings.Cut(expr, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("malformed filter %q", expr)
	}
	op, value, ok := strings.Cut(rest, ".")
	if !ok {
		return Filter{}, fmt.Errorf("malformed filter %q", expr)
	}
	if op != "eq" {
		return Filter{}, fmt.Errorf("unsupported filter operator %q", op)
	}
	return Filter{Column: column, Op: op, Value: value}, nil
}

// Match reports whether the row satisfies the constraint. The wire
// value is a string; numeric and boolean row values are compared after
// parsing it, everything else by its printed form.
func (f Filter) Match(row store.Row) bool {
	if row == nil {
		return false
	}
	value, ok := row[f.Column]
	if !ok || value == nil {
		return false
	}

	if n, isNum := pkg.Num(value); isNum {
		want, err := strconv.ParseFloat(f.Value, 64)
		return err == nil && n == want
	}
	if b, isBool := value.(bool); isBool {
		want, err := strconv.ParseBool(f.Value)
		return err == nil && b == want
	}
	return fmt.Sprint(value) == f.Value
}
