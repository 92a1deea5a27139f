package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

type memoryRecord struct {
	Record
	createdAt time.Time
	updatedAt time.Time
}

// memoryStore is an exact-scoring in-process Store. It backs tests and
// small corpora where a database is overkill.
type memoryStore struct {
	mu      sync.RWMutex
	dim     int
	records map[string]*memoryRecord
	now     func() time.Time
}

// NewMemoryStore builds an empty in-process store for vectors of the given
// dimension.
func NewMemoryStore(dimension int) (Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be greater than zero", ErrInvalidConfig)
	}
	return &memoryStore{
		dim:     dimension,
		records: make(map[string]*memoryRecord),
		now:     time.Now,
	}, nil
}

func (s *memoryStore) Upsert(_ context.Context, records []Record) error {
	for i := range records {
		if len(records[i].Embedding) != s.dim {
			return fmt.Errorf(
				"%w: record %q embedding has %d components, want %d",
				ErrInvalidConfig, records[i].ID, len(records[i].Embedding), s.dim,
			)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range records {
		stored := &memoryRecord{Record: cloneRecord(&records[i]), createdAt: now, updatedAt: now}
		if previous, ok := s.records[records[i].ID]; ok {
			stored.createdAt = previous.createdAt
		}
		s.records[records[i].ID] = stored
	}
	return nil
}

func (s *memoryStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []Match
	for _, rec := range s.records {
		if !matchesFilters(rec.Metadata, opts.Filters) {
			continue
		}
		score := cosineSimilarity(query, rec.Embedding)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		matches = append(matches, Match{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			Score:      score,
			Text:       rec.Text,
			Source:     rec.Source,
			Metadata:   cloneMetadata(rec.Metadata),
			UpdatedAt:  rec.updatedAt,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *memoryStore) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	return s.deleteMatching(func(rec *memoryRecord) bool {
		return rec.DocumentID == documentID
	}), nil
}

func (s *memoryStore) PruneDocument(_ context.Context, documentID string, keepIDs []string) (int64, error) {
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = struct{}{}
	}
	return s.deleteMatching(func(rec *memoryRecord) bool {
		if rec.DocumentID != documentID {
			return false
		}
		_, kept := keep[rec.ID]
		return !kept
	}), nil
}

func (s *memoryStore) DeleteBySource(_ context.Context, source string) (int64, error) {
	return s.deleteMatching(func(rec *memoryRecord) bool {
		return rec.Source == source
	}), nil
}

func (s *memoryStore) deleteMatching(match func(*memoryRecord) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, rec := range s.records {
		if match(rec) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

func (s *memoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*memoryRecord)
	return nil
}

func (s *memoryStore) ListDocuments(_ context.Context, offset, limit int) ([]DocumentInfo, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDoc := make(map[string]*DocumentInfo)
	for _, rec := range s.records {
		info, ok := byDoc[rec.DocumentID]
		if !ok {
			info = &DocumentInfo{
				DocumentID: rec.DocumentID,
				Source:     rec.Source,
				CreatedAt:  rec.createdAt,
				UpdatedAt:  rec.updatedAt,
			}
			byDoc[rec.DocumentID] = info
		}
		info.Chunks++
		if rec.createdAt.Before(info.CreatedAt) {
			info.CreatedAt = rec.createdAt
		}
		if rec.updatedAt.After(info.UpdatedAt) {
			info.UpdatedAt = rec.updatedAt
		}
	}
	docs := make([]DocumentInfo, 0, len(byDoc))
	for _, info := range byDoc {
		docs = append(docs, *info)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
		}
		return docs[i].DocumentID < docs[j].DocumentID
	})
	total := int64(len(docs))
	if offset >= len(docs) {
		return nil, total, nil
	}
	docs = docs[offset:]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, total, nil
}

func (s *memoryStore) GetDocument(_ context.Context, documentID string) (*DocumentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	detail := &DocumentDetail{DocumentID: documentID}
	for _, rec := range s.records {
		if rec.DocumentID != documentID {
			continue
		}
		detail.Source = rec.Source
		detail.Chunks = append(detail.Chunks, cloneRecord(&rec.Record))
	}
	if len(detail.Chunks) == 0 {
		return nil, fmt.Errorf("%w: document %q", ErrNotFound, documentID)
	}
	sort.Slice(detail.Chunks, func(i, j int) bool {
		return detail.Chunks[i].Index < detail.Chunks[j].Index
	})
	return detail, nil
}

func (s *memoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make(map[string]struct{})
	for _, rec := range s.records {
		docs[rec.DocumentID] = struct{}{}
	}
	return &Stats{Documents: int64(len(docs)), Chunks: int64(len(s.records))}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}

func matchesFilters(metadata map[string]any, filters map[string]string) bool {
	for key, want := range filters {
		value, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprint(value) != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cloneRecord(src *Record) Record {
	dst := *src
	dst.Embedding = make([]float32, len(src.Embedding))
	copy(dst.Embedding, src.Embedding)
	dst.Metadata = cloneMetadata(src.Metadata)
	return dst
}

func cloneMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
