package embedder

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

func buildProvider(cfg *Config) (embeddings.Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return buildOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: provider %q is not supported", ErrInvalidConfig, cfg.Provider)
	}
}

func buildOpenAIEmbedder(cfg *Config) (embeddings.Embedder, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to initialize openai client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(
		client,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(cfg.StripNewLines),
	)
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to construct openai embedder: %w", err)
	}
	return impl, nil
}
