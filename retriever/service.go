package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sankar-v/lms/pkg/logger"
	"github.com/sankar-v/lms/vectordb"
)

const defaultTopK = 5

var (
	// ErrInvalidConfig marks service settings rejected at construction.
	ErrInvalidConfig = errors.New("retriever: invalid configuration")
	// ErrInvalidQuery marks empty or whitespace-only queries.
	ErrInvalidQuery = errors.New("retriever: invalid query")
)

// Embedder is the query-side embedding surface.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the store surface used for retrieval.
type Searcher interface {
	Search(ctx context.Context, query []float32, opts vectordb.SearchOptions) ([]vectordb.Match, error)
}

// Config carries retrieval defaults applied when a query omits them.
type Config struct {
	TopK     int
	MinScore float64
}

// Options tunes one retrieval call. A zero TopK and a nil MinScore fall
// back to the service defaults; a non-nil zero MinScore disables the
// threshold for this call.
type Options struct {
	TopK     int
	MinScore *float64
	Filters  map[string]string
}

// Result is one retrieved chunk with its similarity score.
type Result struct {
	Text       string
	Source     string
	Score      float64
	DocumentID string
	Metadata   map[string]any
	UpdatedAt  time.Time
}

// Answer is a generated response grounded on retrieved chunks. Confidence
// comes from the generator and is forwarded untouched.
type Answer struct {
	Text       string
	Confidence float64
	Results    []Result
}

// Generator produces an answer from a question and its supporting chunks.
// Implementations typically wrap an LLM; the service stays agnostic.
type Generator interface {
	Generate(ctx context.Context, question string, results []Result) (*Answer, error)
}

// Service answers similarity queries: embed the query text, search the
// store, return scored chunks best first.
type Service struct {
	embedder Embedder
	store    Searcher
	cfg      Config
}

// NewService wires a retrieval service from its collaborators.
func NewService(em Embedder, store Searcher, cfg Config) (*Service, error) {
	if em == nil || store == nil {
		return nil, fmt.Errorf("%w: embedder and store are required", ErrInvalidConfig)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MinScore < 0 {
		return nil, fmt.Errorf("%w: min score cannot be negative", ErrInvalidConfig)
	}
	return &Service{embedder: em, store: store, cfg: cfg}, nil
}

// Search embeds the query and returns the most similar chunks, best first.
func (s *Service) Search(ctx context.Context, query string, opts *Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query text is empty", ErrInvalidQuery)
	}
	searchOpts := s.searchOptions(opts)
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.Search(ctx, embedding, searchOpts)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug(
		"Retrieved chunks",
		"query_len", len(query),
		"top_k", searchOpts.TopK,
		"matches", len(matches),
	)
	results := make([]Result, len(matches))
	for i, match := range matches {
		results[i] = Result{
			Text:       match.Text,
			Source:     match.Source,
			Score:      match.Score,
			DocumentID: match.DocumentID,
			Metadata:   match.Metadata,
			UpdatedAt:  match.UpdatedAt,
		}
	}
	return results, nil
}

// Ask retrieves supporting chunks for the question and hands them to the
// generator. The answer always carries the retrieved results, so callers
// can cite sources.
func (s *Service) Ask(ctx context.Context, question string, gen Generator, opts *Options) (*Answer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is required", ErrInvalidConfig)
	}
	results, err := s.Search(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	answer, err := gen.Generate(ctx, question, results)
	if err != nil {
		return nil, err
	}
	answer.Results = results
	return answer, nil
}

func (s *Service) searchOptions(opts *Options) vectordb.SearchOptions {
	searchOpts := vectordb.SearchOptions{TopK: s.cfg.TopK, MinScore: s.cfg.MinScore}
	if opts == nil {
		return searchOpts
	}
	if opts.TopK > 0 {
		searchOpts.TopK = opts.TopK
	}
	if opts.MinScore != nil {
		searchOpts.MinScore = *opts.MinScore
	}
	if len(opts.Filters) > 0 {
		searchOpts.Filters = opts.Filters
	}
	return searchOpts
}
