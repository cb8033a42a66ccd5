package query_test

import (
	"testing"

	. "github.com/mockbase/mockbase/query"
	"github.com/mockbase/mockbase/store"
	"gotest.tools/assert"
)

func TestFilterMatch(t *testing.T) {
	row := store.Row{"title": "Buy milk", "count": 3, "done": false}

	t.Run("eq", func(t *testing.T) {
		assert.Assert(t, Filter{"title", OpEq, "Buy milk"}.Match(row))
		assert.Assert(t, !Filter{"title", OpEq, "buy milk"}.Match(row))
		assert.Assert(t, Filter{"done", OpEq, false}.Match(row))
	})

	t.Run("eq coerces numbers", func(t *testing.T) {
		// json decoding turns ints into float64s
		assert.Assert(t, Filter{"count", OpEq, 3.0}.Match(row))
		assert.Assert(t, Filter{"count", OpEq, 3}.Match(row))
	})

	t.Run("neq", func(t *testing.T) {
		assert.Assert(t, Filter{"count", OpNeq, 4}.Match(row))
		assert.Assert(t, !Filter{"count", OpNeq, 3}.Match(row))
		// mismatched types are never equal
		assert.Assert(t, Filter{"count", OpNeq, "3"}.Match(row))
	})

	t.Run("ordered operators", func(t *testing.T) {
		assert.Assert(t, Filter{"count", OpGt, 2}.Match(row))
		assert.Assert(t, Filter{"count", OpGte, 3}.Match(row))
		assert.Assert(t, Filter{"count", OpLt, 4}.Match(row))
		assert.Assert(t, Filter{"count", OpLte, 3}.Match(row))
		assert.Assert(t, !Filter{"count", OpGt, 3}.Match(row))

		// strings order lexically
		assert.Assert(t, Filter{"title", OpGt, "Aardvark"}.Match(row))
	})

	t.Run("type mismatch is a non-match", func(t *testing.T) {
		assert.Assert(t, !Filter{"count", OpGt, "2"}.Match(row))
		assert.Assert(t, !Filter{"title", OpLt, 10}.Match(row))
		assert.Assert(t, !Filter{"done", OpGt, false}.Match(row))
		assert.Assert(t, !Filter{"missing", OpGt, 1}.Match(row))
	})

	t.Run("like", func(t *testing.T) {
		assert.Assert(t, Filter{"title", OpLike, "Buy%"}.Match(row))
		assert.Assert(t, Filter{"title", OpLike, "%milk"}.Match(row))
		assert.Assert(t, Filter{"title", OpLike, "%uy%"}.Match(row))
		assert.Assert(t, !Filter{"title", OpLike, "buy%"}.Match(row))
		assert.Assert(t, !Filter{"title", OpLike, "Buy"}.Match(row))
		// regexp metacharacters in the pattern are literal
		assert.Assert(t, !Filter{"title", OpLike, "Buy.+"}.Match(row))
	})

	t.Run("ilike", func(t *testing.T) {
		assert.Assert(t, Filter{"title", OpIlike, "buy%"}.Match(row))
		assert.Assert(t, Filter{"title", OpIlike, "%MILK"}.Match(row))
		assert.Assert(t, !Filter{"title", OpIlike, "tea%"}.Match(row))
	})

	t.Run("in", func(t *testing.T) {
		assert.Assert(t, Filter{"count", OpIn, []any{1, 2, 3}}.Match(row))
		assert.Assert(t, !Filter{"count", OpIn, []any{4, 5}}.Match(row))
		assert.Assert(t, Filter{"title", OpIn, []string{"Buy milk", "Sell milk"}}.Match(row))
		assert.Assert(t, !Filter{"count", OpIn, 3}.Match(row))
	})
}

func TestApplyFilters(t *testing.T) {
	rows := []store.Row{
		{"id": "1", "kind": "a", "n": 1},
		{"id": "2", "kind": "b", "n": 2},
		{"id": "3", "kind": "a", "n": 3},
		{"id": "4", "kind": "a", "n": 4},
	}

	t.Run("filters AND together", func(t *testing.T) {
		got := ApplyFilters(rows, []Filter{
			{"kind", OpEq, "a"},
			{"n", OpGt, 1},
		})
		assert.Equal(t, len(got), 2)
		assert.Equal(t, got[0].Get("id"), "3")
		assert.Equal(t, got[1].Get("id"), "4")
	})

	t.Run("removing a predicate only grows the result", func(t *testing.T) {
		filters := []Filter{
			{"kind", OpEq, "a"},
			{"n", OpGte, 3},
		}
		full := ApplyFilters(rows, filters)
		for i := range filters {
			reduced := append([]Filter{}, filters[:i]...)
			reduced = append(reduced, filters[i+1:]...)
			assert.Assert(t, len(ApplyFilters(rows, reduced)) >= len(full))
		}
	})

	t.Run("no filters returns everything", func(t *testing.T) {
		assert.Equal(t, len(ApplyFilters(rows, nil)), 4)
	})
}
