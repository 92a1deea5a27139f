package vectordb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) *memoryStore {
	t.Helper()
	store, err := NewMemoryStore(2)
	require.NoError(t, err)
	return store.(*memoryStore)
}

func makeRecord(id, docID string, index int, embedding []float32) Record {
	return Record{
		ID:         id,
		DocumentID: docID,
		Index:      index,
		Text:       "chunk " + id,
		Source:     "/docs/" + docID + ".md",
		Embedding:  embedding,
		Metadata:   map[string]any{"category": "notes"},
	}
}

func TestNewMemoryStore(t *testing.T) {
	t.Run("Should reject non-positive dimension", func(t *testing.T) {
		_, err := NewMemoryStore(0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})
}

func TestMemoryStore_Upsert(t *testing.T) {
	t.Run("Should reject embeddings of the wrong dimension", func(t *testing.T) {
		store := newTestMemoryStore(t)
		err := store.Upsert(context.Background(), []Record{
			makeRecord("a", "doc", 0, []float32{1, 0, 0}),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("Should overwrite records with the same ID", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{makeRecord("a", "doc", 0, []float32{1, 0})}))
		updated := makeRecord("a", "doc", 0, []float32{0, 1})
		updated.Text = "revised"
		require.NoError(t, store.Upsert(ctx, []Record{updated}))
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Chunks)
		detail, err := store.GetDocument(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, "revised", detail.Chunks[0].Text)
	})

	t.Run("Should not share embedding memory with the caller", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		embedding := []float32{1, 0}
		require.NoError(t, store.Upsert(ctx, []Record{makeRecord("a", "doc", 0, embedding)}))
		embedding[0] = -1
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 1})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	})
}

func TestMemoryStore_Search(t *testing.T) {
	t.Run("Should rank results by descending similarity", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("far", "doc", 0, []float32{0, 1}),
			makeRecord("near", "doc", 1, []float32{1, 0.1}),
			makeRecord("exact", "doc", 2, []float32{1, 0}),
		}))
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 3})
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "exact", matches[0].ID)
		assert.Equal(t, "near", matches[1].ID)
		assert.Equal(t, "far", matches[2].ID)
	})

	t.Run("Should exclude matches below the minimum score", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("strong", "doc", 0, []float32{0.82, 0.5724}),
			makeRecord("weak", "doc", 1, []float32{0.65, 0.76}),
		}))
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 5, MinScore: 0.7})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "strong", matches[0].ID)
		assert.InDelta(t, 0.82, matches[0].Score, 0.01)
	})

	t.Run("Should return everything when the minimum score is zero", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("opposite", "doc", 0, []float32{-1, 0}),
		}))
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 5})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.InDelta(t, -1.0, matches[0].Score, 1e-6)
	})

	t.Run("Should truncate results to top K", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("a", "doc", 0, []float32{1, 0}),
			makeRecord("b", "doc", 1, []float32{1, 0.1}),
			makeRecord("c", "doc", 2, []float32{1, 0.2}),
		}))
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 2})
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})

	t.Run("Should restrict results with metadata filters", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		tagged := makeRecord("tagged", "doc", 0, []float32{1, 0})
		tagged.Metadata = map[string]any{"category": "runbook"}
		other := makeRecord("other", "doc", 1, []float32{1, 0})
		other.Metadata = map[string]any{"category": "notes"}
		require.NoError(t, store.Upsert(ctx, []Record{tagged, other}))
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{
			TopK:    5,
			Filters: map[string]string{"category": "runbook"},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "tagged", matches[0].ID)
	})

	t.Run("Should break score ties by most recent update", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return base }
		require.NoError(t, store.Upsert(ctx, []Record{makeRecord("old", "a", 0, []float32{1, 0})}))
		store.now = func() time.Time { return base.Add(time.Hour) }
		require.NoError(t, store.Upsert(ctx, []Record{makeRecord("new", "b", 0, []float32{1, 0})}))
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "new", matches[0].ID)
		assert.Equal(t, "old", matches[1].ID)
	})

	t.Run("Should reject queries of the wrong dimension", func(t *testing.T) {
		store := newTestMemoryStore(t)
		_, err := store.Search(context.Background(), []float32{1}, SearchOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Run("Should delete only the targeted document", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("a0", "keep", 0, []float32{1, 0}),
			makeRecord("b0", "drop", 0, []float32{1, 0}),
			makeRecord("b1", "drop", 1, []float32{0, 1}),
		}))
		removed, err := store.DeleteByDocument(ctx, "drop")
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Documents)
		assert.Equal(t, int64(1), stats.Chunks)
	})

	t.Run("Should report zero rows for an absent document", func(t *testing.T) {
		store := newTestMemoryStore(t)
		removed, err := store.DeleteByDocument(context.Background(), "missing")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("Should prune only rows missing from the keep set", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("stale", "doc", 0, []float32{1, 0}),
			makeRecord("kept", "doc", 1, []float32{0, 1}),
			makeRecord("other", "neighbor", 0, []float32{1, 0}),
		}))
		removed, err := store.PruneDocument(ctx, "doc", []string{"kept"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		detail, err := store.GetDocument(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, detail.Chunks, 1)
		assert.Equal(t, "kept", detail.Chunks[0].ID)
		_, err = store.GetDocument(ctx, "neighbor")
		assert.NoError(t, err)
	})

	t.Run("Should prune everything for an empty keep set", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("a0", "doc", 0, []float32{1, 0}),
			makeRecord("a1", "doc", 1, []float32{0, 1}),
		}))
		removed, err := store.PruneDocument(ctx, "doc", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
	})

	t.Run("Should delete by source path", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("a0", "a", 0, []float32{1, 0}),
			makeRecord("b0", "b", 0, []float32{0, 1}),
		}))
		removed, err := store.DeleteBySource(ctx, "/docs/a.md")
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("Should clear the whole store", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{makeRecord("a0", "a", 0, []float32{1, 0})}))
		require.NoError(t, store.DeleteAll(ctx))
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Chunks)
	})
}

func TestMemoryStore_Documents(t *testing.T) {
	t.Run("Should list documents newest first with chunk counts", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return base }
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("a0", "first", 0, []float32{1, 0}),
			makeRecord("a1", "first", 1, []float32{0, 1}),
		}))
		store.now = func() time.Time { return base.Add(time.Minute) }
		require.NoError(t, store.Upsert(ctx, []Record{makeRecord("b0", "second", 0, []float32{1, 0})}))
		docs, total, err := store.ListDocuments(ctx, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, docs, 2)
		assert.Equal(t, "second", docs[0].DocumentID)
		assert.Equal(t, "first", docs[1].DocumentID)
		assert.Equal(t, int64(2), docs[1].Chunks)
	})

	t.Run("Should paginate the document list", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("a0", "a", 0, []float32{1, 0}),
			makeRecord("b0", "b", 0, []float32{1, 0}),
			makeRecord("c0", "c", 0, []float32{1, 0}),
		}))
		docs, total, err := store.ListDocuments(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, docs, 1)
	})

	t.Run("Should return chunks in positional order", func(t *testing.T) {
		store := newTestMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, []Record{
			makeRecord("c2", "doc", 2, []float32{1, 0}),
			makeRecord("c0", "doc", 0, []float32{1, 0}),
			makeRecord("c1", "doc", 1, []float32{1, 0}),
		}))
		detail, err := store.GetDocument(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, detail.Chunks, 3)
		for i, chunk := range detail.Chunks {
			assert.Equal(t, i, chunk.Index)
		}
	})

	t.Run("Should return ErrNotFound for an unknown document", func(t *testing.T) {
		store := newTestMemoryStore(t)
		_, err := store.GetDocument(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("Should score identical directions as one", func(t *testing.T) {
		assert.InDelta(t, 1.0, cosineSimilarity([]float32{3, 4}, []float32{6, 8}), 1e-6)
	})

	t.Run("Should score orthogonal vectors as zero", func(t *testing.T) {
		assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})

	t.Run("Should score zero vectors as zero", func(t *testing.T) {
		assert.InDelta(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}), 1e-6)
	})
}
