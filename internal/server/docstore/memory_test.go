package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries uint64) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, Base: time.Millisecond, Cap: 5 * time.Millisecond}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc, err := s.Get(ctx, "plans/p1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	at := time.Date(2026, 2, 17, 3, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, "plans/p1", Data{"title": "Seoul", "createdAt": at, "tags": []string{"a"}}))
	assert.ErrorIs(t, s.Create(ctx, "plans/p1", Data{"title": "other"}), ErrAlreadyExists)

	doc, err = s.Get(ctx, "plans/p1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "p1", doc.ID())
	assert.Equal(t, "Seoul", doc.Data["title"])
	assert.Equal(t, "2026-02-17T03:00:00.000000000Z", doc.Data["createdAt"])
	assert.Equal(t, []any{"a"}, doc.Data["tags"])

	doc.Data["title"] = "mutated"
	again, _ := s.Get(ctx, "plans/p1")
	assert.Equal(t, "Seoul", again.Data["title"], "reads return copies")
}

func TestMemoryStore_InvalidPath(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, p := range []string{"", "plans", "plans/p1/events", "plans//x", "/plans/p1"} {
		_, err := s.Get(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidPath, p)
	}
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	seed := map[string]Data{
		"journalJobs/a": {"state": "queued", "dueAtUtc": "2026-02-16T18:00:00.000000000Z", "n": 3},
		"journalJobs/b": {"state": "failed", "dueAtUtc": "2026-02-16T17:00:00.000000000Z", "n": 1},
		"journalJobs/c": {"state": "done", "dueAtUtc": "2026-02-16T16:00:00.000000000Z", "n": 2},
		"journalJobs/d": {"state": "queued", "dueAtUtc": "2026-02-17T18:00:00.000000000Z", "n": 5},
		"journalJobs/e": {"state": "queued", "dueAtUtc": nil},
		"plans/p1/journalJobs/x": {"state": "queued", "dueAtUtc": "2026-02-16T00:00:00.000000000Z"},
	}
	for p, d := range seed {
		require.NoError(t, s.Create(ctx, p, d))
	}
	now := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)

	ids := func(docs []*Doc) []string {
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.ID())
		}
		return out
	}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"collection scoped, default id order", Query{Collection: "journalJobs"}, []string{"a", "b", "c", "d", "e"}},
		{"due sweep", Query{
			Collection: "journalJobs",
			Filters: []Filter{
				{Field: "state", Op: OpIn, Value: []string{"queued", "failed"}},
				{Field: "dueAtUtc", Op: OpLte, Value: now},
			},
			OrderBy: "dueAtUtc",
			Limit:   20,
		}, []string{"b", "a"}},
		{"equality", Query{Collection: "journalJobs", Filters: []Filter{{Field: "state", Op: OpEq, Value: "queued"}}}, []string{"a", "d", "e"}},
		{"not equal skips missing", Query{Collection: "journalJobs", Filters: []Filter{{Field: "n", Op: OpNe, Value: 3}}}, []string{"b", "c", "d"}},
		{"not null", Query{Collection: "journalJobs", Filters: []Filter{{Field: "dueAtUtc", Op: OpNotNull}}}, []string{"a", "b", "c", "d"}},
		{"numeric range", Query{Collection: "journalJobs", Filters: []Filter{{Field: "n", Op: OpGt, Value: 1}}, OrderBy: "n"}, []string{"c", "a", "d"}},
		{"limit", Query{Collection: "journalJobs", OrderBy: "dueAtUtc", Limit: 2}, []string{"c", "b"}},
		{"start after", Query{Collection: "journalJobs", StartAfterID: "c", Limit: 1}, []string{"d"}},
		{"subcollection", Query{Collection: "plans/p1/journalJobs"}, []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestMemoryStore_QueryValidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	bad := []Query{
		{},
		{Collection: "trash", Filters: []Filter{{Field: "a'b", Op: OpEq, Value: 1}}},
		{Collection: "trash", Filters: []Filter{{Field: "a", Op: "~", Value: 1}}},
		{Collection: "trash", Filters: []Filter{{Field: "a", Op: OpLt, Value: true}}},
		{Collection: "trash", Filters: []Filter{{Field: "a", Op: OpIn, Value: "x"}}},
		{Collection: "trash", OrderBy: "a b"},
		{Collection: "trash", Limit: -1},
	}
	for _, q := range bad {
		_, err := s.Query(ctx, q)
		assert.Error(t, err, "%+v", q)
	}
}

func TestMemoryStore_RunTx_ReadYourWritesAndCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, "plans/p1", Data{"title": "A", "version": 1}))

	err := s.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.Merge(ctx, "plans/p1", Data{"title": "B"}))
		doc, err := tx.Get(ctx, "plans/p1")
		require.NoError(t, err)
		assert.Equal(t, "B", doc.Data["title"])
		assert.EqualValues(t, 1, doc.Data["version"])

		require.NoError(t, tx.Set(ctx, "plans/p1/events/e1", Data{"title": "E"}))
		require.NoError(t, tx.Delete(ctx, "plans/p1/events/e1"))
		gone, err := tx.Get(ctx, "plans/p1/events/e1")
		require.NoError(t, err)
		assert.Nil(t, gone)

		return tx.Merge(ctx, "plans/p1/dayMemos/m1", Data{"memo": "x"})
	})
	require.NoError(t, err)

	doc, _ := s.Get(ctx, "plans/p1")
	assert.Equal(t, Data{"title": "B", "version": float64(1)}, doc.Data)
	memo, _ := s.Get(ctx, "plans/p1/dayMemos/m1")
	assert.Equal(t, Data{"memo": "x"}, memo.Data)
	assert.Equal(t, 0, s.Len("plans/p1/events/"))
}

func TestMemoryStore_RunTx_ErrorAbortsEverything(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.Set(ctx, "plans/p1/events/e1", Data{"title": "E"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len(""))
}

func TestMemoryStore_RunTx_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore().WithRetryPolicy(fastPolicy(3))
	require.NoError(t, s.Create(ctx, "counters/c", Data{"n": 0}))

	attempts := 0
	err := s.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		doc, err := tx.Get(ctx, "counters/c")
		if err != nil {
			return err
		}
		if attempts == 1 {
			require.NoError(t, s.RunTx(ctx, func(ctx context.Context, other Tx) error {
				return other.Set(ctx, "counters/c", Data{"n": 10})
			}))
		}
		return tx.Set(ctx, "counters/c", Data{"n": doc.Data["n"].(float64) + 1})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, _ := s.Get(ctx, "counters/c")
	assert.EqualValues(t, 11, doc.Data["n"])
}

func TestMemoryStore_RunTx_ConflictExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore().WithRetryPolicy(fastPolicy(1))
	require.NoError(t, s.Create(ctx, "counters/c", Data{"n": 0}))

	err := s.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get(ctx, "counters/c"); err != nil {
			return err
		}
		require.NoError(t, s.RunTx(ctx, func(ctx context.Context, other Tx) error {
			return other.Merge(ctx, "counters/c", Data{"touched": true})
		}))
		return tx.Merge(ctx, "counters/c", Data{"n": 1})
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_RunTx_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore().WithRetryPolicy(fastPolicy(50))
	require.NoError(t, s.Create(ctx, "counters/c", Data{"n": 0}))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunTx(ctx, func(ctx context.Context, tx Tx) error {
				doc, err := tx.Get(ctx, "counters/c")
				if err != nil {
					return err
				}
				return tx.Set(ctx, "counters/c", Data{"n": doc.Data["n"].(float64) + 1})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, _ := s.Get(ctx, "counters/c")
	assert.EqualValues(t, workers, doc.Data["n"])
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "plans/p1/events/e1", Join("plans", "p1", "events", "e1"))
	assert.Equal(t, "plans/p1/events", Collection("plans/p1/events/e1"))
	assert.Equal(t, "e1", ID("plans/p1/events/e1"))
	assert.Equal(t, "", Collection("plans"))
	assert.NoError(t, ValidatePath("trash/t1"))
}

func TestParseTime(t *testing.T) {
	at := time.Date(2026, 2, 17, 3, 4, 5, 6, time.UTC)
	got, err := ParseTime(FormatTime(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	got, err = ParseTime("2026-02-17T12:04:05+09:00")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 2, 17, 3, 4, 5, 0, time.UTC).Equal(got))

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}
