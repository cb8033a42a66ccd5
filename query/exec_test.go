package query_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mockbase/mockbase/kv"
	. "github.com/mockbase/mockbase/query"
	"github.com/mockbase/mockbase/realtime"
	"github.com/mockbase/mockbase/store"
	"gotest.tools/assert"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Options{})
	s.Seed(map[string][]store.Row{
		"todos": {
			{"id": "1", "title": "alpha", "rank": 3, "done": false},
			{"id": "2", "title": "beta", "rank": 1, "done": true},
			{"id": "3", "title": "gamma", "rank": 2, "done": false},
			{"id": "4", "title": "delta", "rank": 2, "done": true},
			{"id": "5", "title": "epsilon", "rank": 1, "done": false},
		},
	})
	return s
}

func TestExecute(t *testing.T) {
	t.Run("unfiltered read returns everything in insertion order", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Execute()

		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 5)
		assert.Equal(t, store.RowID(res.Data[0]), "1")
		assert.Equal(t, store.RowID(res.Data[4]), "5")
	})

	t.Run("missing table reads empty, not an error", func(t *testing.T) {
		q := New(store.New(store.Options{}), nil, "nothing")
		res := q.Select().Execute()

		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 0)
		assert.Equal(t, len(res.Data), 0)
	})

	t.Run("filter then order then paginate", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().
			Neq("title", "delta").
			OrderBy("rank", true).
			Limit(2).
			Execute()

		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 2)
		// rank 1 rows first, keeping insertion order between equals
		assert.Equal(t, store.RowID(res.Data[0]), "2")
		assert.Equal(t, store.RowID(res.Data[1]), "5")
	})

	t.Run("descending order", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().OrderBy("rank", false).Execute()

		assert.Equal(t, store.RowID(res.Data[0]), "1")
		// equal keys preserve relative input order
		assert.Equal(t, store.RowID(res.Data[1]), "3")
		assert.Equal(t, store.RowID(res.Data[2]), "4")
	})

	t.Run("range is inclusive", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Range(1, 3).Execute()

		assert.Equal(t, res.Count, 3)
		assert.Equal(t, store.RowID(res.Data[0]), "2")
		assert.Equal(t, store.RowID(res.Data[2]), "4")
	})

	t.Run("range overrides limit when both set", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Range(2, 4).Limit(1).Execute()

		assert.Equal(t, res.Count, 3)
		assert.Equal(t, store.RowID(res.Data[0]), "3")

		// order of builder calls makes no difference
		res = q.Select().Limit(1).Range(2, 4).Execute()
		assert.Equal(t, res.Count, 3)
	})

	t.Run("range clips to the table", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Range(3, 100).Execute()
		assert.Equal(t, res.Count, 2)

		res = q.Select().Range(100, 200).Execute()
		assert.Equal(t, res.Count, 0)
	})

	t.Run("resolving the same plan twice is idempotent", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		plan := q.Select().Gt("rank", 1).OrderBy("rank", true)

		first := plan.Execute()
		second := plan.Execute()

		assert.NilError(t, first.Err)
		assert.Equal(t, first.Count, second.Count)
		assert.DeepEqual(t, first.Data, second.Data)
	})

	t.Run("builder methods do not mutate the receiver", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		base := q.Select().Eq("done", false)

		narrowed := base.Eq("rank", 1)

		assert.Equal(t, base.Execute().Count, 3)
		assert.Equal(t, narrowed.Execute().Count, 1)
	})
}

func TestExecuteSingle(t *testing.T) {
	t.Run("exactly one match", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Eq("id", "3").ExecuteSingle()

		assert.NilError(t, res.Err)
		assert.Equal(t, res.Data.Get("title"), "gamma")
	})

	t.Run("zero matches is a not-found error", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Eq("id", "nope").ExecuteSingle()

		assert.Assert(t, errors.Is(res.Err, ErrNoRows))
		assert.Assert(t, res.Data == nil)
	})

	t.Run("multiple matches is an error", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Eq("rank", 2).ExecuteSingle()

		assert.Assert(t, errors.Is(res.Err, ErrMultipleRows))
	})

	t.Run("ordering and pagination are ignored", func(t *testing.T) {
		q := New(seededStore(t), nil, "todos")
		res := q.Select().Eq("rank", 2).Limit(1).ExecuteSingle()

		assert.Assert(t, errors.Is(res.Err, ErrMultipleRows))
	})
}

func TestExecuteMaybeSingle(t *testing.T) {
	q := New(seededStore(t), nil, "todos")

	t.Run("zero matches is no row, no error", func(t *testing.T) {
		res := q.Select().Eq("id", "nope").ExecuteMaybeSingle()
		assert.NilError(t, res.Err)
		assert.Assert(t, res.Data == nil)
	})

	t.Run("one match", func(t *testing.T) {
		res := q.Select().Eq("id", "1").ExecuteMaybeSingle()
		assert.NilError(t, res.Err)
		assert.Equal(t, res.Data.Get("title"), "alpha")
	})

	t.Run("multiple matches is still an error", func(t *testing.T) {
		res := q.Select().Eq("rank", 1).ExecuteMaybeSingle()
		assert.Assert(t, errors.Is(res.Err, ErrMultipleRows))
	})
}

func TestInsert(t *testing.T) {
	t.Run("assigns id and created_at", func(t *testing.T) {
		s := store.New(store.Options{})
		q := New(s, nil, "todos")

		res := q.Insert(store.Row{"title": "Buy milk"})

		assert.NilError(t, res.Err)
		assert.Assert(t, store.RowID(res.Data) != "")
		assert.Assert(t, res.Data.Has(store.FieldCreatedAt))
		assert.Assert(t, !res.Data.Has(store.FieldUpdatedAt))
	})

	t.Run("round trip by id", func(t *testing.T) {
		s := store.New(store.Options{})
		q := New(s, nil, "todos")

		ins := q.Insert(store.Row{"title": "Buy milk"})
		assert.NilError(t, ins.Err)
		id := store.RowID(ins.Data)

		got := q.Select().Eq("id", id).ExecuteSingle()
		assert.NilError(t, got.Err)
		assert.DeepEqual(t, got.Data, ins.Data)
	})

	t.Run("keeps supplied id and created_at", func(t *testing.T) {
		s := store.New(store.Options{})
		q := New(s, nil, "todos")

		res := q.Insert(store.Row{"id": "fixed", "created_at": "then"})
		assert.Equal(t, store.RowID(res.Data), "fixed")
		assert.Equal(t, res.Data.Get("created_at"), "then")
	})

	t.Run("many mirrors the plural shape", func(t *testing.T) {
		s := store.New(store.Options{})
		q := New(s, nil, "todos")

		res := q.InsertMany([]store.Row{{"title": "a"}, {"title": "b"}})
		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 2)
		assert.Assert(t, store.RowID(res.Data[0]) != store.RowID(res.Data[1]))
	})
}

func TestUpdate(t *testing.T) {
	t.Run("merges and stamps updated_at", func(t *testing.T) {
		s := seededStore(t)
		q := New(s, nil, "todos")

		res := q.Update(store.Row{"done": true}).Eq("id", "1").Execute()

		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 1)
		assert.Equal(t, res.Data[0].Get("done"), true)
		assert.Equal(t, res.Data[0].Get("title"), "alpha")
		assert.Assert(t, res.Data[0].Has(store.FieldUpdatedAt))

		got := q.Select().Eq("id", "1").ExecuteSingle()
		assert.NilError(t, got.Err)
		assert.Equal(t, got.Data.Get("done"), true)
	})

	t.Run("updates every filtered row", func(t *testing.T) {
		s := seededStore(t)
		q := New(s, nil, "todos")

		res := q.Update(store.Row{"flag": "x"}).Eq("rank", 2).Execute()
		assert.Equal(t, res.Count, 2)
	})

	t.Run("missing table is a no-op, not an error", func(t *testing.T) {
		s := store.New(store.Options{})
		q := New(s, nil, "ghosts")

		res := q.Update(store.Row{"x": 1}).Eq("id", "1").Execute()
		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 0)
		assert.Assert(t, !s.HasTable("ghosts"))
	})
}

func TestUpsert(t *testing.T) {
	s := store.New(store.Options{})
	q := New(s, nil, "todos")

	ins := q.Insert(store.Row{"title": "original"})
	assert.NilError(t, ins.Err)
	id := store.RowID(ins.Data)
	createdAt := ins.Data.Get(store.FieldCreatedAt)

	t.Run("merges onto existing row", func(t *testing.T) {
		res := q.Upsert(store.Row{"id": id, "extra": "added"})

		assert.NilError(t, res.Err)
		assert.Equal(t, res.Data.Get("title"), "original")
		assert.Equal(t, res.Data.Get("extra"), "added")
		assert.Equal(t, res.Data.Get(store.FieldCreatedAt), createdAt)
		assert.Assert(t, res.Data.Has(store.FieldUpdatedAt))
	})

	t.Run("inserts when id is new", func(t *testing.T) {
		res := q.Upsert(store.Row{"id": "brand-new", "title": "fresh"})

		assert.NilError(t, res.Err)
		assert.Assert(t, res.Data.Has(store.FieldCreatedAt))
		assert.Assert(t, !res.Data.Has(store.FieldUpdatedAt))
		assert.Equal(t, New(s, nil, "todos").Select().Execute().Count, 2)
	})
}

func TestDelete(t *testing.T) {
	t.Run("removes filtered rows and returns them", func(t *testing.T) {
		s := seededStore(t)
		q := New(s, nil, "todos")

		res := q.Delete().Eq("rank", 1).Execute()

		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 2)
		assert.Equal(t, q.Select().Execute().Count, 3)
	})

	t.Run("deleted id reads back empty", func(t *testing.T) {
		s := seededStore(t)
		q := New(s, nil, "todos")

		q.Delete().Eq("id", "1").Execute()

		res := q.Select().Eq("id", "1").Execute()
		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 0)
	})

	t.Run("missing table is a no-op", func(t *testing.T) {
		q := New(store.New(store.Options{}), nil, "ghosts")
		res := q.Delete().Execute()
		assert.NilError(t, res.Err)
		assert.Equal(t, res.Count, 0)
	})
}

func TestMutationDispatch(t *testing.T) {
	s := store.New(store.Options{})
	bus := realtime.NewBus(nil)
	q := New(s, bus, "todos")

	events := []realtime.Change{}
	bus.Channel("watcher").
		OnChange(realtime.EventAll, "todos", nil, func(c realtime.Change) {
			events = append(events, c)
		}).
		Subscribe(nil)

	ins := q.Insert(store.Row{"title": "watched"})
	assert.NilError(t, ins.Err)
	q.Update(store.Row{"done": true}).Eq("id", store.RowID(ins.Data)).Execute()
	q.Delete().Eq("id", store.RowID(ins.Data)).Execute()

	assert.Equal(t, len(events), 3)
	assert.Equal(t, events[0].Event, realtime.EventInsert)
	assert.Equal(t, events[1].Event, realtime.EventUpdate)
	assert.Equal(t, events[1].New.Get("done"), true)
	assert.Equal(t, events[1].Old.Get("title"), "watched")
	assert.Equal(t, events[2].Event, realtime.EventDelete)
	assert.Assert(t, events[2].New == nil)
	assert.Equal(t, events[2].Old.Get("title"), "watched")
}

func TestInjectedErrors(t *testing.T) {
	s := seededStore(t)
	q := New(s, nil, "todos")
	boom := errors.New("simulated outage")

	s.InjectError("select", "todos", boom)
	res := q.Select().Execute()
	assert.Assert(t, errors.Is(res.Err, boom))
	assert.Equal(t, len(res.Data), 0)

	// one-shot: the next read works again
	assert.NilError(t, q.Select().Execute().Err)

	s.InjectError("insert", "todos", boom)
	assert.Assert(t, errors.Is(q.Insert(store.Row{}).Err, boom))

	s.InjectError("update", "todos", boom)
	assert.Assert(t, errors.Is(q.Update(store.Row{}).Execute().Err, boom))

	s.InjectError("delete", "todos", boom)
	assert.Assert(t, errors.Is(q.Delete().Execute().Err, boom))
}

// brokenKV accepts reads but refuses every write.
type brokenKV struct{ kv.Store }

func (brokenKV) Set(string, []byte) error { return errors.New("disk full") }

func TestPersistenceFailureDoesNotFailQueries(t *testing.T) {
	s := store.New(store.Options{KV: brokenKV{kv.NewMemory()}})
	q := New(s, nil, "todos")

	ins := q.Insert(store.Row{"title": "kept in memory"})
	assert.NilError(t, ins.Err)
	id := store.RowID(ins.Data)

	upd := q.Update(store.Row{"done": true}).Eq("id", id).Execute()
	assert.NilError(t, upd.Err)
	assert.Equal(t, upd.Count, 1)

	// in-memory state stays correct even though every write to the
	// durable store failed
	got := q.Select().Eq("id", id).ExecuteSingle()
	assert.NilError(t, got.Err)
	assert.Equal(t, got.Data.Get("done"), true)

	del := q.Delete().Eq("id", id).Execute()
	assert.NilError(t, del.Err)
	assert.Equal(t, del.Count, 1)
	assert.Equal(t, q.Select().Execute().Count, 0)
}

func TestConcurrentInserts(t *testing.T) {
	s := store.New(store.Options{})
	q := New(s, nil, "todos")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := q.Insert(store.Row{"title": fmt.Sprintf("todo %d", i)})
			assert.NilError(t, res.Err)
		}(i)
	}
	wg.Wait()

	res := q.Select().Execute()
	assert.NilError(t, res.Err)
	assert.Equal(t, res.Count, 10)

	seen := map[string]bool{}
	for _, row := range res.Data {
		seen[store.RowID(row)] = true
	}
	assert.Equal(t, len(seen), 10)
}

func TestSimulatedLatency(t *testing.T) {
	latency := 20 * time.Millisecond
	s := store.New(store.Options{Latency: latency})
	q := New(s, nil, "todos")

	start := time.Now()
	assert.NilError(t, q.Insert(store.Row{"title": "slow"}).Err)
	assert.NilError(t, q.Select().Execute().Err)
	assert.Assert(t, time.Since(start) >= 2*latency)
}
