package vectordb

import (
	"context"
	"fmt"
)

// New builds the Store selected by cfg.Provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	switch cfg.Provider {
	case ProviderPGVector, "":
		return NewPGStore(ctx, cfg)
	case ProviderMemory:
		return NewMemoryStore(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: provider %q is not supported", ErrInvalidConfig, cfg.Provider)
	}
}
