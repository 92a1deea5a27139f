package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/sankar-v/lms/chunk"
	"github.com/sankar-v/lms/loader"
	"github.com/sankar-v/lms/pkg/logger"
	"github.com/sankar-v/lms/vectordb"
)

const (
	defaultConcurrency   = 5
	defaultUpsertRetries = 3
	defaultUpsertBackoff = 250 * time.Millisecond
)

// ErrInvalidConfig marks pipeline settings rejected at construction.
var ErrInvalidConfig = errors.New("ingest: invalid configuration")

// Embedder is the vector provider surface the pipeline needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	BatchSize() int
}

// Config controls pipeline parallelism and storage retry behavior.
type Config struct {
	Concurrency   int
	UpsertRetries int
	UpsertBackoff time.Duration
}

func (c *Config) normalize() {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.UpsertRetries <= 0 {
		c.UpsertRetries = defaultUpsertRetries
	}
	if c.UpsertBackoff <= 0 {
		c.UpsertBackoff = defaultUpsertBackoff
	}
}

// Pipeline drives documents from disk into the vector store: load, chunk,
// embed in batches, upsert. Every run is tracked as a Task.
type Pipeline struct {
	loader   *loader.Loader
	splitter *chunk.Splitter
	embedder Embedder
	store    vectordb.Store
	tasks    *Registry
	cfg      Config
}

// New wires a pipeline from its collaborators.
func New(ld *loader.Loader, sp *chunk.Splitter, em Embedder, store vectordb.Store, cfg Config) (*Pipeline, error) {
	if ld == nil || sp == nil || em == nil || store == nil {
		return nil, fmt.Errorf("%w: loader, splitter, embedder and store are required", ErrInvalidConfig)
	}
	cfg.normalize()
	return &Pipeline{
		loader:   ld,
		splitter: sp,
		embedder: em,
		store:    store,
		tasks:    NewRegistry(),
		cfg:      cfg,
	}, nil
}

// Tasks returns snapshots of all ingestion tasks, newest first.
func (p *Pipeline) Tasks() []Task {
	return p.tasks.List()
}

// Task returns a snapshot of one ingestion task.
func (p *Pipeline) Task(id string) (Task, bool) {
	return p.tasks.Get(id)
}

// IngestFile runs the full pipeline for one file. The returned task is a
// terminal-state snapshot; on failure it carries the error message and the
// error is also returned.
func (p *Pipeline) IngestFile(ctx context.Context, path string, opts *loader.Options) (Task, error) {
	task := p.tasks.Create(path)
	if err := p.run(ctx, task.ID, path, opts); err != nil {
		p.tasks.fail(task.ID, err)
		snapshot, _ := p.tasks.Get(task.ID)
		return snapshot, err
	}
	snapshot, _ := p.tasks.Get(task.ID)
	return snapshot, nil
}

func (p *Pipeline) run(ctx context.Context, taskID, path string, opts *loader.Options) error {
	log := logger.FromContext(ctx)
	doc, err := p.loader.Load(path, opts)
	if err != nil {
		return err
	}
	chunks := p.splitter.Chunks(doc.ID, doc.Text, doc.Metadata)
	p.tasks.markProcessing(taskID, doc.ID, len(chunks))
	log.Info("Ingesting document", "source", doc.Source, "document_id", doc.ID, "chunks", len(chunks))
	batchSize := p.embedder.BatchSize()
	processed := 0
	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		records := make([]vectordb.Record, len(batch))
		for i := range batch {
			records[i] = vectordb.Record{
				ID:         batch[i].ID,
				DocumentID: batch[i].DocumentID,
				Index:      batch[i].Index,
				Text:       batch[i].Text,
				Source:     doc.Source,
				Embedding:  vectors[i],
				Metadata:   batch[i].Metadata,
			}
		}
		if err := p.upsertWithRetry(ctx, records); err != nil {
			return err
		}
		processed += len(batch)
		p.tasks.advance(taskID, processed)
	}
	// Prune only after every new chunk is stored: a re-ingest that fails
	// mid-flight must leave the previous version intact. Chunk IDs are
	// deterministic, so unchanged content overwrites in place and only
	// rows from an older version of the document are removed here.
	keepIDs := make([]string, len(chunks))
	for i := range chunks {
		keepIDs[i] = chunks[i].ID
	}
	if _, err := p.store.PruneDocument(ctx, doc.ID, keepIDs); err != nil {
		return err
	}
	p.tasks.complete(taskID)
	log.Info("Document ingested", "source", doc.Source, "chunks", len(chunks))
	return nil
}

// upsertWithRetry retries storage failures with exponential backoff.
// Anything outside the ErrStorage bucket fails immediately.
func (p *Pipeline) upsertWithRetry(ctx context.Context, records []vectordb.Record) error {
	backoff := retry.WithMaxRetries(uint64(p.cfg.UpsertRetries), retry.NewExponential(p.cfg.UpsertBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.store.Upsert(ctx, records)
		if err == nil {
			return nil
		}
		if errors.Is(err, vectordb.ErrStorage) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IngestDirectory ingests every supported file under dir matching pattern,
// running up to Concurrency files in parallel. A failing file marks its own
// task failed without stopping the others; the error summarizes failures.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir, pattern string, recursive bool, opts *loader.Options) ([]Task, error) {
	paths, err := p.collectFiles(dir, pattern, recursive)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	logger.FromContext(ctx).Info("Ingesting directory", "dir", dir, "files", len(paths))
	taskIDs := make([]string, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.Concurrency)
	var failed atomic.Int64
	for i, path := range paths {
		group.Go(func() error {
			task, err := p.IngestFile(ctx, path, opts)
			taskIDs[i] = task.ID
			if err != nil {
				logger.FromContext(ctx).Error("File ingestion failed", "source", path, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		if task, ok := p.tasks.Get(id); ok {
			tasks = append(tasks, task)
		}
	}
	if n := failed.Load(); n > 0 {
		return tasks, fmt.Errorf("ingest: %d of %d files failed", n, len(paths))
	}
	return tasks, nil
}

// collectFiles resolves the glob and keeps regular files whose extension
// the loader understands.
func (p *Pipeline) collectFiles(dir, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		if recursive {
			pattern = "**/*"
		} else {
			pattern = "*"
		}
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("ingest: glob %q: %w", pattern, err)
	}
	var paths []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(match))
		if !p.loader.Supported(ext) {
			continue
		}
		paths = append(paths, match)
	}
	sort.Strings(paths)
	return paths, nil
}

// Stats combines store-wide counts with the task ledger.
type Stats struct {
	Store vectordb.Stats
	Tasks map[Status]int
}

// Stats reports store totals alongside task counts per status.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	storeStats, err := p.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Store: *storeStats, Tasks: p.tasks.CountByStatus()}, nil
}

// DeleteDocument removes one document's chunks from the store.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	return p.store.DeleteByDocument(ctx, documentID)
}

// DeleteSource removes all chunks ingested from one source path.
func (p *Pipeline) DeleteSource(ctx context.Context, source string) (int64, error) {
	return p.store.DeleteBySource(ctx, source)
}

// Reset clears the entire store.
func (p *Pipeline) Reset(ctx context.Context) error {
	return p.store.DeleteAll(ctx)
}
