package vectordb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*pgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := newPGStore(mock, &Config{Table: "document_chunks", Dimension: 3})
	require.NoError(t, err)
	return store, mock
}

func TestNewPGStoreConfig(t *testing.T) {
	t.Run("Should reject table names with unsafe characters", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		_, err = newPGStore(mock, &Config{Table: "chunks; DROP TABLE users", Dimension: 3})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("Should reject non-positive dimension", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		_, err = newPGStore(mock, &Config{Table: "document_chunks"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})
}

func TestPGStore_Upsert(t *testing.T) {
	t.Run("Should write all records inside one transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO document_chunks").
			WithArgs("c0", "doc", 0, "chunk c0", pgxmock.AnyArg(), []byte(`{"category":"notes"}`), "/docs/doc.md").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO document_chunks").
			WithArgs("c1", "doc", 1, "chunk c1", pgxmock.AnyArg(), []byte(`{"category":"notes"}`), "/docs/doc.md").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		err := store.Upsert(context.Background(), []Record{
			makeRecord("c0", "doc", 0, []float32{1, 0, 0}),
			makeRecord("c1", "doc", 1, []float32{0, 1, 0}),
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back when a record fails", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO document_chunks").
			WithArgs("c0", "doc", 0, "chunk c0", pgxmock.AnyArg(), []byte(`{"category":"notes"}`), "/docs/doc.md").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()
		err := store.Upsert(context.Background(), []Record{
			makeRecord("c0", "doc", 0, []float32{1, 0, 0}),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStorage))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject embeddings of the wrong dimension before touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)
		err := store.Upsert(context.Background(), []Record{
			makeRecord("c0", "doc", 0, []float32{1, 0}),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should skip the database entirely for an empty batch", func(t *testing.T) {
		store, mock := newMockStore(t)
		require.NoError(t, store.Upsert(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPGStore_Search(t *testing.T) {
	searchColumns := []string{"id", "document_id", "content", "source", "metadata", "updated_at", "score"}

	t.Run("Should map rows to scored matches", func(t *testing.T) {
		store, mock := newMockStore(t)
		updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT id, document_id, content, source, metadata, updated_at").
			WithArgs(pgxmock.AnyArg(), 2).
			WillReturnRows(pgxmock.NewRows(searchColumns).
				AddRow("c0", "doc", "alpha", "/docs/doc.md", []byte(`{"category":"notes"}`), updated, 0.91).
				AddRow("c1", "doc", "beta", "/docs/doc.md", []byte(`{}`), updated, 0.83))
		matches, err := store.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "c0", matches[0].ID)
		assert.Equal(t, "alpha", matches[0].Text)
		assert.Equal(t, 0.91, matches[0].Score)
		assert.Equal(t, "notes", matches[0].Metadata["category"])
		assert.Equal(t, updated, matches[0].UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should pass metadata filters and minimum score to the query", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, document_id, content, source, metadata, updated_at").
			WithArgs(pgxmock.AnyArg(), "category", "runbook", 0.7, 5).
			WillReturnRows(pgxmock.NewRows(searchColumns))
		matches, err := store.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{
			TopK:     5,
			MinScore: 0.7,
			Filters:  map[string]string{"category": "runbook"},
		})
		require.NoError(t, err)
		assert.Empty(t, matches)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject queries of the wrong dimension", func(t *testing.T) {
		store, _ := newMockStore(t)
		_, err := store.Search(context.Background(), []float32{1, 0}, SearchOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("Should wrap query failures in ErrStorage", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, document_id, content, source, metadata, updated_at").
			WithArgs(pgxmock.AnyArg(), 5).
			WillReturnError(errors.New("connection refused"))
		_, err := store.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{TopK: 5})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStorage))
	})
}

func TestPGStore_Delete(t *testing.T) {
	t.Run("Should report rows removed for a document", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM document_chunks WHERE document_id").
			WithArgs("doc").
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		removed, err := store.DeleteByDocument(context.Background(), "doc")
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should prune rows outside the keep set", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM document_chunks WHERE document_id").
			WithArgs("doc", []string{"c0", "c1"}).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		removed, err := store.PruneDocument(context.Background(), "doc", []string{"c0", "c1"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should prune all document rows for an empty keep set", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM document_chunks WHERE document_id").
			WithArgs("doc", []string{}).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		removed, err := store.PruneDocument(context.Background(), "doc", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
	})

	t.Run("Should report rows removed for a source", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM document_chunks WHERE source").
			WithArgs("/docs/doc.md").
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		removed, err := store.DeleteBySource(context.Background(), "/docs/doc.md")
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
	})

	t.Run("Should clear the table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM document_chunks").
			WillReturnResult(pgxmock.NewResult("DELETE", 9))
		require.NoError(t, store.DeleteAll(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPGStore_Documents(t *testing.T) {
	t.Run("Should list documents with totals", func(t *testing.T) {
		store, mock := newMockStore(t)
		created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		updated := created.Add(time.Hour)
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))
		mock.ExpectQuery("SELECT document_id").
			WithArgs(0, 2).
			WillReturnRows(pgxmock.NewRows([]string{"document_id", "source", "chunks", "created_at", "updated_at"}).
				AddRow("a", "/docs/a.md", int64(4), created, updated).
				AddRow("b", "/docs/b.md", int64(2), created, updated))
		docs, total, err := store.ListDocuments(context.Background(), 0, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(12), total)
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0].DocumentID)
		assert.Equal(t, int64(4), docs[0].Chunks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should return chunks ordered by position", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, chunk_index, content, source, metadata").
			WithArgs("doc").
			WillReturnRows(pgxmock.NewRows([]string{"id", "chunk_index", "content", "source", "metadata"}).
				AddRow("c0", 0, "alpha", "/docs/doc.md", []byte(`{}`)).
				AddRow("c1", 1, "beta", "/docs/doc.md", []byte(`{}`)))
		detail, err := store.GetDocument(context.Background(), "doc")
		require.NoError(t, err)
		assert.Equal(t, "/docs/doc.md", detail.Source)
		require.Len(t, detail.Chunks, 2)
		assert.Equal(t, "alpha", detail.Chunks[0].Text)
	})

	t.Run("Should return ErrNotFound for an unknown document", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, chunk_index, content, source, metadata").
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"id", "chunk_index", "content", "source", "metadata"}))
		_, err := store.GetDocument(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Should aggregate store statistics", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(pgxmock.NewRows([]string{"documents", "chunks"}).AddRow(int64(3), int64(42)))
		stats, err := store.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Documents)
		assert.Equal(t, int64(42), stats.Chunks)
	})
}
