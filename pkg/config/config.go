package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config aggregates the settings for the knowledge pipeline.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Embedder  EmbedderConfig  `koanf:"embedder"`
	VectorDB  VectorDBConfig  `koanf:"vector_db"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type EmbedderConfig struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	Dimension   int           `koanf:"dimension"`
	BatchSize   int           `koanf:"batch_size"`
	MaxRetries  int           `koanf:"max_retries"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
	MaxBackoff  time.Duration `koanf:"max_backoff"`
	CacheSize   int           `koanf:"cache_size"`
}

type VectorDBConfig struct {
	DSN         string `koanf:"dsn"`
	Table       string `koanf:"table"`
	Index       string `koanf:"index"`
	Dimension   int    `koanf:"dimension"`
	EnsureIndex bool   `koanf:"ensure_index"`
	Lists       int    `koanf:"lists"`
	Probes      int    `koanf:"probes"`
	MaxConns    int32  `koanf:"max_conns"`
	MinConns    int32  `koanf:"min_conns"`
}

type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

type IngestConfig struct {
	Concurrency int `koanf:"concurrency"`
}

type RetrievalConfig struct {
	TopK      int     `koanf:"top_k"`
	MinScore  float64 `koanf:"min_score"`
	ChatModel string  `koanf:"chat_model"`
}

// Default returns the configuration applied before environment overrides.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Embedder: EmbedderConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			Dimension:   1536,
			BatchSize:   100,
			MaxRetries:  3,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  8 * time.Second,
			CacheSize:   512,
		},
		VectorDB: VectorDBConfig{
			Table:       "document_chunks",
			Dimension:   1536,
			EnsureIndex: true,
			Lists:       100,
			MaxConns:    10,
			MinConns:    2,
		},
		Chunking:  ChunkingConfig{Size: 1000, Overlap: 200},
		Ingest:    IngestConfig{Concurrency: 5},
		Retrieval: RetrievalConfig{TopK: 5, MinScore: 0, ChatModel: "gpt-4o-mini"},
	}
}

// envPrefix scopes the environment variables read by Load.
const envPrefix = "LMS_"

// envToPath maps environment variable names to config paths where the
// generic underscore transform would split a key incorrectly.
var envToPath = map[string]string{
	"LMS_EMBEDDER_API_KEY":      "embedder.api_key",
	"LMS_EMBEDDER_BATCH_SIZE":   "embedder.batch_size",
	"LMS_EMBEDDER_MAX_RETRIES":  "embedder.max_retries",
	"LMS_EMBEDDER_BASE_BACKOFF": "embedder.base_backoff",
	"LMS_EMBEDDER_MAX_BACKOFF":  "embedder.max_backoff",
	"LMS_EMBEDDER_CACHE_SIZE":   "embedder.cache_size",
	"LMS_VECTOR_DB_DSN":         "vector_db.dsn",
	"LMS_VECTOR_DB_TABLE":       "vector_db.table",
	"LMS_VECTOR_DB_INDEX":       "vector_db.index",
	"LMS_VECTOR_DB_DIMENSION":   "vector_db.dimension",
	"LMS_VECTOR_DB_LISTS":       "vector_db.lists",
	"LMS_VECTOR_DB_PROBES":      "vector_db.probes",
	"LMS_VECTOR_DB_MAX_CONNS":   "vector_db.max_conns",
	"LMS_VECTOR_DB_MIN_CONNS":   "vector_db.min_conns",
	"LMS_RETRIEVAL_TOP_K":       "retrieval.top_k",
	"LMS_RETRIEVAL_MIN_SCORE":   "retrieval.min_score",
	"LMS_RETRIEVAL_CHAT_MODEL":  "retrieval.chat_model",
	"LMS_LOG_JSON":              "log.json",
	"LMS_LOG_LEVEL":             "log.level",
}

// Load builds the configuration from defaults overlaid with LMS_* env vars.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key string, value string) (string, any) {
			if path, ok := envToPath[key]; ok {
				return path, value
			}
			return transformEnvKey(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Chunking.Size <= 0 {
		return fmt.Errorf("config: chunking size must be greater than zero")
	}
	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.Size {
		return fmt.Errorf(
			"config: chunking overlap %d must be in [0, %d)",
			cfg.Chunking.Overlap,
			cfg.Chunking.Size,
		)
	}
	if cfg.Embedder.Dimension <= 0 {
		return fmt.Errorf("config: embedder dimension must be greater than zero")
	}
	if cfg.VectorDB.Dimension != cfg.Embedder.Dimension {
		return fmt.Errorf(
			"config: vector_db dimension %d does not match embedder dimension %d",
			cfg.VectorDB.Dimension,
			cfg.Embedder.Dimension,
		)
	}
	if cfg.Ingest.Concurrency <= 0 {
		return fmt.Errorf("config: ingest concurrency must be greater than zero")
	}
	return nil
}

// transformEnvKey converts SECTION_SOME_KEY into section.some.key.
func transformEnvKey(s string) string {
	s = strings.ToLower(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' })
	return strings.Join(parts, ".")
}
