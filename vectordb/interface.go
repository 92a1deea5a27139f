package vectordb

import (
	"context"
	"errors"
	"time"
)

// Provider enumerates supported vector store backends.
type Provider string

const (
	ProviderPGVector Provider = "pgvector"
	// ProviderMemory keeps everything in process memory with exact cosine
	// scoring. Intended for tests and small corpora.
	ProviderMemory Provider = "memory"
)

var (
	// ErrInvalidConfig marks store settings rejected at construction.
	ErrInvalidConfig = errors.New("vectordb: invalid configuration")
	// ErrStorage marks backend failures (unreachable database, constraint
	// violations). Upsert batches are safe to retry as a whole.
	ErrStorage = errors.New("vectordb: storage failed")
	// ErrNotFound marks lookups for documents with no stored chunks.
	ErrNotFound = errors.New("vectordb: not found")
)

// Record is one chunk persisted with its embedding.
type Record struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Source     string
	Embedding  []float32
	Metadata   map[string]any
}

// SearchOptions controls similarity search execution.
type SearchOptions struct {
	TopK     int
	MinScore float64
	Filters  map[string]string
}

// Match is a similarity search result. Score is cosine similarity
// (1 minus cosine distance), higher is more similar.
type Match struct {
	ID         string
	DocumentID string
	Score      float64
	Text       string
	Source     string
	Metadata   map[string]any
	UpdatedAt  time.Time
}

// DocumentInfo summarizes one stored document across its chunks.
type DocumentInfo struct {
	DocumentID string
	Source     string
	Chunks     int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentDetail carries one document's chunks in original order.
type DocumentDetail struct {
	DocumentID string
	Source     string
	Chunks     []Record
}

// Stats aggregates store-wide counts.
type Stats struct {
	Documents int64
	Chunks    int64
}

// Store persists chunk/vector/metadata triples and serves similarity
// queries.
//
// The pgvector backend indexes embeddings with an approximate
// nearest-neighbor structure (ivfflat): recall is near-exact at tens of
// thousands of chunks, and small recall loss is accepted in exchange for
// sub-100ms queries at that scale. Callers needing exact scoring at small
// scale can use the memory backend.
type Store interface {
	// Upsert inserts or overwrites records keyed by chunk ID. The batch is
	// atomic: all rows become visible or none do.
	Upsert(ctx context.Context, records []Record) error
	// Search returns up to TopK matches ordered by descending score.
	// Matches below MinScore are excluded; Filters restrict results to
	// rows whose metadata matches every key/value pair. Equal scores are
	// broken by most recent update first.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	// DeleteByDocument removes all chunks of one document and reports how
	// many rows went away. Deleting an absent document is a no-op.
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	// PruneDocument removes the document's chunks whose IDs are not in
	// keepIDs. An empty keep set removes every chunk of the document.
	PruneDocument(ctx context.Context, documentID string, keepIDs []string) (int64, error)
	// DeleteBySource removes all chunks loaded from one source path.
	DeleteBySource(ctx context.Context, source string) (int64, error)
	// DeleteAll removes every stored chunk.
	DeleteAll(ctx context.Context) error
	// ListDocuments enumerates distinct documents, newest first, plus the
	// total document count for pagination.
	ListDocuments(ctx context.Context, offset, limit int) ([]DocumentInfo, int64, error)
	// GetDocument returns one document's chunks ordered by position, or
	// ErrNotFound.
	GetDocument(ctx context.Context, documentID string) (*DocumentDetail, error)
	// Stats reports aggregate document and chunk counts.
	Stats(ctx context.Context) (*Stats, error)
	Close(ctx context.Context) error
}

// Config captures normalized connection details for a vector store.
type Config struct {
	Provider    Provider
	DSN         string
	Table       string
	Index       string
	Dimension   int
	EnsureIndex bool
	// Lists tunes ivfflat index creation; Probes tunes query-time recall.
	Lists    int
	Probes   int
	MaxConns int32
	MinConns int32
}
