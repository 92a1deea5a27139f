package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgvectorpgx "github.com/pgvector/pgvector-go/pgx"

	"github.com/sankar-v/lms/pkg/logger"
)

const (
	defaultTable = "document_chunks"
	defaultLists = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DBInterface is the subset of pgxpool.Pool the store uses. pgxmock
// implements it too.
type DBInterface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgStore struct {
	db    DBInterface
	pool  *pgxpool.Pool
	table string
	index string
	dim   int
}

// NewPGStore connects to PostgreSQL, registers pgvector types and ensures
// the chunk table and indexes exist.
func NewPGStore(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %v", ErrInvalidConfig, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	probes := cfg.Probes
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgvectorpgx.RegisterTypes(ctx, conn); err != nil {
			return err
		}
		if probes > 0 {
			if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
				return err
			}
		}
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrStorage, err)
	}
	store, err := newPGStore(pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.pool = pool
	if err := store.ensureSchema(ctx, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	logger.FromContext(ctx).Info("Connected to pgvector store", "table", store.table, "dimension", store.dim)
	return store, nil
}

// newPGStore wires a store around an existing database handle without
// touching the schema.
func newPGStore(db DBInterface, cfg *Config) (*pgStore, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrInvalidConfig, table)
	}
	index := cfg.Index
	if index == "" {
		index = table + "_embedding_idx"
	}
	if !identifierPattern.MatchString(index) {
		return nil, fmt.Errorf("%w: invalid index name %q", ErrInvalidConfig, index)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be greater than zero", ErrInvalidConfig)
	}
	return &pgStore{db: db, table: table, index: index, dim: cfg.Dimension}, nil
}

func (s *pgStore) ensureSchema(ctx context.Context, cfg *Config) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			source TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.table, s.dim),
		fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)",
			s.table, s.table,
		),
		fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)",
			s.table, s.table,
		),
	}
	if cfg.EnsureIndex {
		lists := cfg.Lists
		if lists <= 0 {
			lists = defaultLists
		}
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)",
			s.index, s.table, lists,
		))
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %v", ErrStorage, err)
		}
	}
	return nil
}

func (s *pgStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	encoded := make([][]byte, len(records))
	for i := range records {
		if len(records[i].Embedding) != s.dim {
			return fmt.Errorf(
				"%w: record %q embedding has %d components, want %d",
				ErrInvalidConfig, records[i].ID, len(records[i].Embedding), s.dim,
			)
		}
		metadata, err := encodeMetadata(records[i].Metadata)
		if err != nil {
			return err
		}
		encoded[i] = metadata
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin upsert: %v", ErrStorage, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	stmt := fmt.Sprintf(`INSERT INTO %s
		(id, document_id, chunk_index, content, embedding, metadata, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			source = EXCLUDED.source,
			updated_at = NOW()`, s.table)
	for i := range records {
		rec := &records[i]
		if _, err := tx.Exec(
			ctx,
			stmt,
			rec.ID,
			rec.DocumentID,
			rec.Index,
			rec.Text,
			pgvector.NewVector(rec.Embedding),
			encoded[i],
			rec.Source,
		); err != nil {
			return fmt.Errorf("%w: upsert record %q: %v", ErrStorage, rec.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit upsert: %v", ErrStorage, err)
	}
	return nil
}

func (s *pgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf(
			"%w: query embedding has %d components, want %d",
			ErrInvalidConfig, len(query), s.dim,
		)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	args := []any{pgvector.NewVector(query)}
	var where []string
	for _, key := range sortedKeys(opts.Filters) {
		args = append(args, key, opts.Filters[key])
		where = append(where, fmt.Sprintf("metadata ->> $%d = $%d", len(args)-1, len(args)))
	}
	if opts.MinScore > 0 {
		args = append(args, opts.MinScore)
		where = append(where, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, topK)
	stmt := fmt.Sprintf(`SELECT id, document_id, content, source, metadata, updated_at,
		1 - (embedding <=> $1) AS score
		FROM %s%s
		ORDER BY embedding <=> $1 ASC, updated_at DESC
		LIMIT $%d`, s.table, clause, len(args))
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStorage, err)
	}
	defer rows.Close()
	var matches []Match
	for rows.Next() {
		var match Match
		var metadata []byte
		if err := rows.Scan(
			&match.ID,
			&match.DocumentID,
			&match.Text,
			&match.Source,
			&metadata,
			&match.UpdatedAt,
			&match.Score,
		); err != nil {
			return nil, fmt.Errorf("%w: scan match: %v", ErrStorage, err)
		}
		if match.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search rows: %v", ErrStorage, err)
	}
	return matches, nil
}

func (s *pgStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	return s.deleteWhere(ctx, "document_id", documentID)
}

func (s *pgStore) PruneDocument(ctx context.Context, documentID string, keepIDs []string) (int64, error) {
	if keepIDs == nil {
		keepIDs = []string{}
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1 AND NOT (id = ANY($2))", s.table)
	tag, err := s.db.Exec(ctx, stmt, documentID, keepIDs)
	if err != nil {
		return 0, fmt.Errorf("%w: prune document: %v", ErrStorage, err)
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) DeleteBySource(ctx context.Context, source string) (int64, error) {
	return s.deleteWhere(ctx, "source", source)
}

func (s *pgStore) deleteWhere(ctx context.Context, column, value string) (int64, error) {
	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = $1", s.table, column), value)
	if err != nil {
		return 0, fmt.Errorf("%w: delete by %s: %v", ErrStorage, column, err)
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("%w: delete all: %v", ErrStorage, err)
	}
	return nil
}

func (s *pgStore) ListDocuments(ctx context.Context, offset, limit int) ([]DocumentInfo, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	countStmt := fmt.Sprintf("SELECT COUNT(DISTINCT document_id) FROM %s", s.table)
	if err := s.db.QueryRow(ctx, countStmt).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count documents: %v", ErrStorage, err)
	}
	stmt := fmt.Sprintf(`SELECT document_id, MIN(source), COUNT(*),
		MIN(created_at), MAX(updated_at)
		FROM %s
		GROUP BY document_id
		ORDER BY MAX(updated_at) DESC, document_id
		OFFSET $1 LIMIT $2`, s.table)
	rows, err := s.db.Query(ctx, stmt, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list documents: %v", ErrStorage, err)
	}
	defer rows.Close()
	var docs []DocumentInfo
	for rows.Next() {
		var doc DocumentInfo
		if err := rows.Scan(&doc.DocumentID, &doc.Source, &doc.Chunks, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("%w: scan document: %v", ErrStorage, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: list rows: %v", ErrStorage, err)
	}
	return docs, total, nil
}

func (s *pgStore) GetDocument(ctx context.Context, documentID string) (*DocumentDetail, error) {
	stmt := fmt.Sprintf(`SELECT id, chunk_index, content, source, metadata
		FROM %s
		WHERE document_id = $1
		ORDER BY chunk_index ASC`, s.table)
	rows, err := s.db.Query(ctx, stmt, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: get document: %v", ErrStorage, err)
	}
	defer rows.Close()
	detail := &DocumentDetail{DocumentID: documentID}
	for rows.Next() {
		rec := Record{DocumentID: documentID}
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.Index, &rec.Text, &rec.Source, &metadata); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", ErrStorage, err)
		}
		if rec.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		detail.Source = rec.Source
		detail.Chunks = append(detail.Chunks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: document rows: %v", ErrStorage, err)
	}
	if len(detail.Chunks) == 0 {
		return nil, fmt.Errorf("%w: document %q", ErrNotFound, documentID)
	}
	return detail, nil
}

func (s *pgStore) Stats(ctx context.Context) (*Stats, error) {
	stmt := fmt.Sprintf("SELECT COUNT(DISTINCT document_id), COUNT(*) FROM %s", s.table)
	stats := &Stats{}
	if err := s.db.QueryRow(ctx, stmt).Scan(&stats.Documents, &stats.Chunks); err != nil {
		return nil, fmt.Errorf("%w: stats: %v", ErrStorage, err)
	}
	return stats, nil
}

func (s *pgStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %v", ErrStorage, err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	metadata := map[string]any{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrStorage, err)
	}
	return metadata, nil
}

func sortedKeys(filters map[string]string) []string {
	if len(filters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
