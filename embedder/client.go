package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/sankar-v/lms/pkg/logger"
)

// Client converts text into fixed-dimension vectors through a remote
// provider, batching requests and retrying transient failures with
// exponential backoff. A batch either fully succeeds or fully fails;
// output order always matches input order.
type Client struct {
	cfg   Config
	impl  embeddings.Embedder
	sleep func(ctx context.Context, d time.Duration) error

	cacheMu sync.Mutex
	cache   *lru.Cache[string, []float32]
}

// New constructs a provider-backed client.
func New(cfg *Config) (*Client, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	impl, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, impl)
}

// Wrap constructs a client around an existing embedder implementation.
func Wrap(cfg *Config, impl embeddings.Embedder) (*Client, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if impl == nil {
		return nil, fmt.Errorf("%w: implementation is required", ErrInvalidConfig)
	}
	return newClient(cfg, impl)
}

func newClient(cfg *Config, impl embeddings.Embedder) (*Client, error) {
	client := &Client{cfg: *cfg, impl: impl, sleep: sleepContext}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: init cache: %v", ErrInvalidConfig, err)
		}
		client.cache = cache
	}
	return client, nil
}

// Dimension returns the configured vector dimension.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// BatchSize returns the configured batch size.
func (c *Client) BatchSize() int {
	return c.cfg.BatchSize
}

// EmbedDocuments embeds all texts in configured-size batches, preserving
// order. Any batch failing after retries fails the whole call.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	batches := (len(texts) + c.cfg.BatchSize - 1) / c.cfg.BatchSize
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		logger.FromContext(ctx).Debug(
			"Embedding batch",
			"batch", start/c.cfg.BatchSize+1,
			"batches", batches,
			"size", end-start,
		)
		vectors, err := c.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds one text, serving repeats from the LRU cache.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := c.cacheGet(text); ok {
		return vector, nil
	}
	vectors, err := c.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	c.cachePut(text, vectors[0])
	return vectors[0], nil
}

// embedWithRetry performs one remote call per attempt. Transient errors are
// retried with doubling delays capped at MaxBackoff; anything else fails
// immediately.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDuration(attempt)
			logger.FromContext(ctx).Warn(
				"Retrying embedding call",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		vectors, err := c.impl.EmbedDocuments(ctx, texts)
		if err == nil {
			if verifyErr := c.verify(texts, vectors); verifyErr != nil {
				return nil, verifyErr
			}
			return vectors, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !isTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: retries exhausted after %d attempts: %v", ErrEmbedding, c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) verify(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: received %d vectors for %d texts", ErrEmbedding, len(vectors), len(texts))
	}
	for i := range vectors {
		if len(vectors[i]) != c.cfg.Dimension {
			return fmt.Errorf(
				"%w: vector %d has %d components, want %d",
				ErrDimensionMismatch,
				i,
				len(vectors[i]),
				c.cfg.Dimension,
			)
		}
	}
	return nil
}

func (c *Client) backoffDuration(attempt int) time.Duration {
	delay := c.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	if delay > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return delay
}

func (c *Client) cacheGet(text string) ([]float32, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cache == nil {
		return nil, false
	}
	value, ok := c.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return cloneVector(value), true
}

func (c *Client) cachePut(text string, vector []float32) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cache == nil || len(vector) == 0 {
		return
	}
	c.cache.Add(cacheKey(text), cloneVector(vector))
}

// isTransient inspects the error text to approximate a retryable bucket.
// NOTE: relies on string matching; prefer typed errors if providers expose them.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "invalid"),
		strings.Contains(lower, "bad request"),
		strings.Contains(lower, "400"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "422"):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "429"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "500"),
		strings.Contains(lower, "502"),
		strings.Contains(lower, "503"),
		strings.Contains(lower, "504"),
		strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "connection"):
		return true
	default:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
