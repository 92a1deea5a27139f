package embedder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider enumerates supported embedding backends.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
)

const (
	defaultBatchSize   = 100
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 8 * time.Second
)

var (
	// ErrInvalidConfig marks settings rejected before any work begins.
	ErrInvalidConfig = errors.New("embedder: invalid configuration")
	// ErrEmbedding marks a remote failure that survived all retries.
	ErrEmbedding = errors.New("embedder: embedding failed")
	// ErrDimensionMismatch marks vectors whose length disagrees with the
	// configured dimension. A wrong dimension corrupts the store, so this
	// is configuration-fatal and never retried.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrInvalidConfig)
)

// Config controls provider selection, batching and retry behavior.
// MaxRetries of 0 disables retries; a negative value selects the default.
type Config struct {
	Provider      Provider
	Model         string
	APIKey        string
	Dimension     int
	BatchSize     int
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	CacheSize     int
	StripNewLines bool
}

func (c *Config) normalize() error {
	if c == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be greater than zero", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	// Zero is a valid retry budget (fail after the first attempt); negative
	// means unset.
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = defaultMaxBackoff
	}
	return nil
}
