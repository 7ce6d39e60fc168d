package db

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	ID           string     `bson:"_id"`
	Agent        string     `bson:"agentId"`
	Participants []string   `bson:"participants,omitempty"`
	CreatedAt    *time.Time `bson:"createdAt,omitempty"`
	Note         string     `bson:"note,omitempty"`
}

func ts(min int) time.Time {
	return time.Date(2026, 3, 1, 12, min, 0, 0, time.UTC)
}

func seed(t *testing.T, s *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SetDoc(ctx, "docs", "a", Fields{"agentId": "ag1", "createdAt": ts(1), "participants": []string{"ag1", "c1"}}, false))
	require.NoError(t, s.SetDoc(ctx, "docs", "b", Fields{"agentId": "ag1", "createdAt": ts(3), "participants": []string{"ag2", "c1"}}, false))
	require.NoError(t, s.SetDoc(ctx, "docs", "c", Fields{"agentId": "ag1"}, false))
	require.NoError(t, s.SetDoc(ctx, "docs", "d", Fields{"agentId": "ag2", "createdAt": ts(2)}, false))
}

func ids(docs []testDoc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestMemoryStore_QueryEqualityOrdered(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	var docs []testDoc
	err := s.QueryWhere(context.Background(), "docs", Where("agentId", OpEqual, "ag1").Order("createdAt", Desc), &docs)
	require.NoError(t, err)
	// Missing createdAt sorts lowest, so last when descending.
	assert.Equal(t, []string{"b", "a", "c"}, ids(docs))
}

func TestMemoryStore_QueryArrayContains(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	var docs []testDoc
	err := s.QueryWhere(context.Background(), "docs", Where("participants", OpArrayContains, "c1"), &docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(docs))

	docs = nil
	err = s.QueryWhere(context.Background(), "docs", Where("participants", OpArrayContains, "ag2"), &docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(docs))
}

func TestMemoryStore_QueryAllWithLimitIntoPointers(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	var docs []*testDoc
	err := s.QueryWhere(context.Background(), "docs", All().Take(2), &docs)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
}

func TestMemoryStore_StrictIndexes(t *testing.T) {
	s := NewMemoryStore(WithStrictIndexes(), WithIndex("docs", "note"))
	seed(t, s)
	ctx := context.Background()

	var docs []testDoc
	err := s.QueryWhere(ctx, "docs", Where("agentId", OpEqual, "ag1").Order("createdAt", Desc), &docs)
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	err = s.QueryWhere(ctx, "docs", Where("agentId", OpEqual, "ag1").Order("note", Asc), &docs)
	assert.NoError(t, err)
}

func TestMemoryStore_GetUpdateSet(t *testing.T) {
	now := ts(30)
	s := NewMemoryStore(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	var doc testDoc
	assert.ErrorIs(t, s.GetByID(ctx, "docs", "missing", &doc), ErrNotFound)
	assert.ErrorIs(t, s.UpdateDoc(ctx, "docs", "missing", Fields{"note": "x"}), ErrNotFound)

	id, err := s.AddDoc(ctx, "docs", Fields{"agentId": "ag1", "createdAt": ServerTimestamp})
	require.NoError(t, err)
	require.NoError(t, s.GetByID(ctx, "docs", id, &doc))
	require.NotNil(t, doc.CreatedAt)
	assert.True(t, doc.CreatedAt.Equal(now))

	require.NoError(t, s.UpdateDoc(ctx, "docs", id, Fields{"note": "updated"}))
	doc = testDoc{}
	require.NoError(t, s.GetByID(ctx, "docs", id, &doc))
	assert.Equal(t, "updated", doc.Note)
	assert.Equal(t, "ag1", doc.Agent)

	// Merge keeps untouched fields; replace drops them.
	require.NoError(t, s.SetDoc(ctx, "docs", id, Fields{"note": "merged"}, true))
	doc = testDoc{}
	require.NoError(t, s.GetByID(ctx, "docs", id, &doc))
	assert.Equal(t, "ag1", doc.Agent)
	assert.Equal(t, "merged", doc.Note)

	require.NoError(t, s.SetDoc(ctx, "docs", id, Fields{"note": "replaced"}, false))
	doc = testDoc{}
	require.NoError(t, s.GetByID(ctx, "docs", id, &doc))
	assert.Equal(t, "", doc.Agent)
	assert.Equal(t, "replaced", doc.Note)
}

func TestMemoryStore_RejectsBadOutputAndOperator(t *testing.T) {
	s := NewMemoryStore()
	var doc testDoc
	assert.Error(t, s.QueryWhere(context.Background(), "docs", All(), &doc))
	var docs []testDoc
	assert.Error(t, s.QueryWhere(context.Background(), "docs", Where("agentId", Op(">"), "x"), &docs))
}

func TestMemoryStore_HonoursCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var docs []testDoc
	assert.ErrorIs(t, s.QueryWhere(ctx, "docs", All(), &docs), context.Canceled)
}

func TestQueryOrdered_FallbackMatchesPrimary(t *testing.T) {
	ctx := context.Background()
	sortByCreated := func(docs []testDoc) {
		// Stable insertion sort on createdAt desc, missing last, id asc on ties.
		less := func(a, b testDoc) bool {
			switch {
			case a.CreatedAt == nil && b.CreatedAt == nil:
				return a.ID < b.ID
			case a.CreatedAt == nil:
				return false
			case b.CreatedAt == nil:
				return true
			case a.CreatedAt.Equal(*b.CreatedAt):
				return a.ID < b.ID
			}
			return a.CreatedAt.After(*b.CreatedAt)
		}
		for i := 1; i < len(docs); i++ {
			for j := i; j > 0 && less(docs[j], docs[j-1]); j-- {
				docs[j], docs[j-1] = docs[j-1], docs[j]
			}
		}
	}
	q := Where("agentId", OpEqual, "ag1").Order("createdAt", Desc)

	indexed := NewMemoryStore(WithStrictIndexes(), WithIndex("docs", "createdAt"))
	seed(t, indexed)
	primary, fellBack, err := QueryOrdered(ctx, indexed, "docs", q, sortByCreated)
	require.NoError(t, err)
	assert.False(t, fellBack)

	unindexed := NewMemoryStore(WithStrictIndexes())
	seed(t, unindexed)
	fallback, fellBack, err := QueryOrdered(ctx, unindexed, "docs", q, sortByCreated)
	require.NoError(t, err)
	assert.True(t, fellBack)

	assert.Equal(t, ids(primary), ids(fallback))
	assert.Equal(t, []string{"b", "a", "c"}, ids(fallback))

	limited, _, err := QueryOrdered(ctx, unindexed, "docs", q.Take(1), sortByCreated)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(limited))
}

func TestMemoryStore_UpsertDocReportsCreation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.UpsertDoc(ctx, "docs", "conv-1", Fields{"agentId": "ag1", "note": "first"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.UpsertDoc(ctx, "docs", "conv-1", Fields{"note": "second"})
	require.NoError(t, err)
	assert.False(t, created)

	var doc testDoc
	require.NoError(t, s.GetByID(ctx, "docs", "conv-1", &doc))
	assert.Equal(t, "ag1", doc.Agent)
	assert.Equal(t, "second", doc.Note)
}

func TestMemoryStore_ConcurrentUpsertCreatesOnce(t *testing.T) {
	s := NewMemoryStore()
	var creations atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.UpsertDoc(context.Background(), "docs", "conv-1", Fields{"agentId": "ag1"})
			assert.NoError(t, err)
			if created {
				creations.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), creations.Load())
}
