// Package config loads docingest configuration from a YAML or TOML file and
// DOCINGEST_ environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fyrsmithlabs/docingest/internal/secrets"
	"github.com/fyrsmithlabs/docingest/internal/splitter"
)

// ErrInvalidConfig indicates a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete docingest configuration.
type Config struct {
	Splitter    SplitterConfig    `koanf:"splitter"`
	Loader      LoaderConfig      `koanf:"loader"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Vectorizer  VectorizerConfig  `koanf:"vectorizer"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Uploader    UploaderConfig    `koanf:"uploader"`
	Index       IndexConfig       `koanf:"index"`
	Redaction   secrets.Config    `koanf:"redaction"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// SplitterConfig configures chunking.
type SplitterConfig struct {
	splitter.Config `koanf:",squash"`

	// ChineseThreshold is the Han ratio at which the Chinese splitter is used.
	ChineseThreshold float64 `koanf:"chinese_threshold"`
	AutoDetect       bool    `koanf:"auto_detect"`
}

// LoaderConfig configures file loading.
type LoaderConfig struct {
	MaxFileSize int64 `koanf:"max_file_size"`
	// IgnoreFiles are gitignore-style files read from the root of an
	// ingested directory. Unset means .docingestignore and .gitignore.
	IgnoreFiles []string `koanf:"ignore_files"`
	// Exclude adds patterns in the same syntax.
	Exclude []string `koanf:"exclude"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"` // tei, fastembed or openai
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	CacheDir  string   `koanf:"cache_dir"`
	MaxLength int      `koanf:"max_length"`
	Dimension int      `koanf:"dimension"`
	Timeout   Duration `koanf:"timeout"`
	CacheSize int      `koanf:"cache_size"`
	CacheTTL  Duration `koanf:"cache_ttl"`
	RateLimit float64  `koanf:"rate_limit"`
	Burst     int      `koanf:"burst"`
}

// VectorizerConfig configures per-chunk embedding retries.
type VectorizerConfig struct {
	MaxRetries int      `koanf:"max_retries"`
	RetryDelay Duration `koanf:"retry_delay"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // chromem or qdrant
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string   `koanf:"host"`
	Port       int      `koanf:"port"`
	APIKey     Secret   `koanf:"api_key"`
	UseTLS     bool     `koanf:"use_tls"`
	Distance   string   `koanf:"distance"` // cosine, euclid or dot
	MaxRetries int      `koanf:"max_retries"`
	Backoff    Duration `koanf:"backoff"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	// Path is the storage directory; empty keeps the store in memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// UploaderConfig configures batch uploads.
type UploaderConfig struct {
	BatchSize      int      `koanf:"batch_size"`
	MaxRetries     int      `koanf:"max_retries"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
}

// IndexConfig configures the target collection and incremental state.
type IndexConfig struct {
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	// StateFile holds file mtimes for incremental updates.
	StateFile string `koanf:"state_file"`
}

// LoggingConfig is the subset of logging settings exposed in the file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// MetricsConfig configures the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := base()
	applyDefaults(cfg)
	return cfg
}

// base holds the defaults a zero value cannot express. Loading unmarshals on
// top of it, so keys absent from every source keep these values.
func base() *Config {
	return &Config{
		Splitter: SplitterConfig{
			Config:     splitter.Config{RespectSentenceBoundary: true},
			AutoDetect: true,
		},
	}
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Splitter.ChunkSize == 0 {
		cfg.Splitter.ChunkSize = 500
	}
	if cfg.Splitter.ChunkOverlap == 0 {
		cfg.Splitter.ChunkOverlap = 50
	}
	if cfg.Splitter.ChineseThreshold == 0 {
		cfg.Splitter.ChineseThreshold = splitter.DefaultChineseThreshold
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "tei"
	}
	if cfg.Embeddings.BaseURL == "" && cfg.Embeddings.Provider == "tei" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-zh-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}

	if cfg.Vectorizer.MaxRetries == 0 {
		cfg.Vectorizer.MaxRetries = 3
	}
	if cfg.Vectorizer.RetryDelay == 0 {
		cfg.Vectorizer.RetryDelay = Duration(time.Second)
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Distance == "" {
		cfg.VectorStore.Qdrant.Distance = "cosine"
	}

	if cfg.Uploader.BatchSize == 0 {
		cfg.Uploader.BatchSize = 100
	}
	if cfg.Uploader.MaxRetries == 0 {
		cfg.Uploader.MaxRetries = 3
	}
	if cfg.Uploader.InitialBackoff == 0 {
		cfg.Uploader.InitialBackoff = Duration(time.Second)
	}
	if cfg.Uploader.MaxBackoff == 0 {
		cfg.Uploader.MaxBackoff = Duration(10 * time.Second)
	}

	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "documents"
	}
	if cfg.Index.VectorSize == 0 {
		cfg.Index.VectorSize = 512 // bge-small-zh-v1.5
	}
	if cfg.Index.StateFile == "" {
		cfg.Index.StateFile = ".docingest-state.json"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "docingest"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Splitter.Config.Validate(); err != nil {
		return err
	}
	if c.Splitter.ChineseThreshold < 0 || c.Splitter.ChineseThreshold > 1 {
		return fmt.Errorf("%w: splitter.chinese_threshold must be between 0 and 1, got %g", ErrInvalidConfig, c.Splitter.ChineseThreshold)
	}
	if c.Loader.MaxFileSize < 0 {
		return fmt.Errorf("%w: loader.max_file_size must not be negative", ErrInvalidConfig)
	}

	if !slices.Contains([]string{"tei", "fastembed", "openai"}, c.Embeddings.Provider) {
		return fmt.Errorf("%w: unsupported embeddings provider %q (supported: tei, fastembed, openai)", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && !c.Embeddings.APIKey.IsSet() && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("%w: embeddings.api_key is required for openai", ErrInvalidConfig)
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("%w: embeddings.rate_limit must not be negative", ErrInvalidConfig)
	}

	if c.Vectorizer.MaxRetries < 0 {
		return fmt.Errorf("%w: vectorizer.max_retries must not be negative", ErrInvalidConfig)
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: invalid qdrant port: %d (must be 1-65535)", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
		}
		if !slices.Contains([]string{"cosine", "euclid", "dot"}, c.VectorStore.Qdrant.Distance) {
			return fmt.Errorf("%w: unsupported qdrant distance %q", ErrInvalidConfig, c.VectorStore.Qdrant.Distance)
		}
	default:
		return fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrInvalidConfig, c.VectorStore.Provider)
	}

	if c.Uploader.BatchSize < 1 {
		return fmt.Errorf("%w: uploader.batch_size must be positive", ErrInvalidConfig)
	}
	if c.Uploader.MaxRetries < 0 {
		return fmt.Errorf("%w: uploader.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Uploader.MaxBackoff < c.Uploader.InitialBackoff {
		return fmt.Errorf("%w: uploader.max_backoff must not be below initial_backoff", ErrInvalidConfig)
	}

	if c.Index.Collection == "" {
		return fmt.Errorf("%w: index.collection is required", ErrInvalidConfig)
	}
	if c.Index.VectorSize < 1 {
		return fmt.Errorf("%w: index.vector_size must be positive", ErrInvalidConfig)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: logging.format must be 'json' or 'console', got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("%w: telemetry.protocol must be 'grpc' or 'http', got %q", ErrInvalidConfig, c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry.sample_rate must be between 0 and 1", ErrInvalidConfig)
		}
	}
	return nil
}
