package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Worker      WorkerConfig     `toml:"worker"`
	Fetcher     FetcherConfig    `toml:"fetcher"`
	Chunker     ChunkerConfig    `toml:"chunker"`
	Embeddings  EmbeddingsConfig `toml:"embeddings"`
	Quota       QuotaConfig      `toml:"quota"`
	Refresh     RefreshConfig    `toml:"refresh"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"required,min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

// WorkerConfig controls the polling job worker
type WorkerConfig struct {
	PollInterval string `toml:"poll_interval" validate:"required"` // e.g. "3s" - how often the worker scans for pending jobs
	BatchSize    int    `toml:"batch_size" validate:"min=1"`       // Max pending jobs claimed per tick
	MaxRetries   int    `toml:"max_retries" validate:"min=0"`      // Max retry attempts per task before it is terminally failed
}

// FetcherConfig contains HTTP content fetching configuration
type FetcherConfig struct {
	UserAgent         string        `toml:"user_agent"`          // User agent sent with every fetch
	RequestTimeout    time.Duration `toml:"request_timeout"`     // HTTP request timeout
	MaxContentLength  int           `toml:"max_content_length"`  // Truncate extracted text beyond this many characters
	RequestsPerSecond float64       `toml:"requests_per_second"` // Per-host rate limit
	DocumentsDir      string        `toml:"documents_dir"`       // Root directory for uploaded document sources
}

// ChunkerConfig contains text chunking parameters
type ChunkerConfig struct {
	MaxChunkSize int `toml:"max_chunk_size" validate:"min=1"`
	MinChunkSize int `toml:"min_chunk_size" validate:"min=0"`
	Overlap      int `toml:"overlap" validate:"min=0"`
}

// EmbeddingsConfig contains embedding generation configuration
type EmbeddingsConfig struct {
	Mode      string `toml:"mode" validate:"oneof=gemini offline"` // "gemini" or "offline"
	Model     string `toml:"model"`                                // Embedding model name (gemini mode)
	Dimension int    `toml:"dimension" validate:"min=1"`           // Output vector dimensionality
	APIKey    string `toml:"api_key"`                              // Google API key (gemini mode)
	Timeout   string `toml:"timeout"`                              // Per-call timeout as duration string
}

// QuotaConfig contains tenant knowledge-base quota configuration
type QuotaConfig struct {
	TiersFile   string `toml:"tiers_file"`   // Optional YAML file overriding built-in tier limits
	DefaultTier string `toml:"default_tier"` // Tier assumed for tenants without a stored record
}

// RefreshConfig controls the periodic re-crawl scheduler
type RefreshConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Worker: WorkerConfig{
			PollInterval: "3s",
			BatchSize:    5,
			MaxRetries:   3,
		},
		Fetcher: FetcherConfig{
			UserAgent:         "colligo/" + Version + " (+https://github.com/ternarybob/colligo)",
			RequestTimeout:    30 * time.Second,
			MaxContentLength:  50000,
			RequestsPerSecond: 2,
			DocumentsDir:      "./data/documents",
		},
		Chunker: ChunkerConfig{
			MaxChunkSize: 800,
			MinChunkSize: 200,
			Overlap:      100,
		},
		Embeddings: EmbeddingsConfig{
			Mode:      "offline", // No external calls unless explicitly configured
			Model:     "gemini-embedding-001",
			Dimension: 384,
			Timeout:   "1m",
		},
		Quota: QuotaConfig{
			DefaultTier: "starter",
		},
		Refresh: RefreshConfig{
			Enabled:  false,           // Disabled by default - user must explicitly opt-in
			Schedule: "0 0 */6 * * *", // Every 6 hours (cron format with seconds)
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI flags.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for structural errors
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.ParseDuration(c.Worker.PollInterval); err != nil {
		return fmt.Errorf("invalid worker.poll_interval %q: %w", c.Worker.PollInterval, err)
	}
	if c.Chunker.MinChunkSize > c.Chunker.MaxChunkSize {
		return fmt.Errorf("chunker.min_chunk_size (%d) must not exceed chunker.max_chunk_size (%d)",
			c.Chunker.MinChunkSize, c.Chunker.MaxChunkSize)
	}
	if c.Chunker.Overlap >= c.Chunker.MaxChunkSize {
		return fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.max_chunk_size (%d)",
			c.Chunker.Overlap, c.Chunker.MaxChunkSize)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("COLLIGO_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if key := os.Getenv("COLLIGO_GOOGLE_API_KEY"); key != "" {
		config.Embeddings.APIKey = key
	}
	if mode := os.Getenv("COLLIGO_EMBEDDINGS_MODE"); mode != "" {
		config.Embeddings.Mode = mode
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// PollInterval returns the parsed worker poll interval
func (c *WorkerConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
