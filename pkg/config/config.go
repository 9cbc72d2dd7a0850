// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Indexer, Search, Server, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the document
// source.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	DocumentsTable  string        `yaml:"documentsTable"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexBuilt string `yaml:"indexBuilt"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls where index artifacts live and the memory budgets
// of the block builder and the merger.
type IndexerConfig struct {
	DataDir          string `yaml:"dataDir"`
	BlockDir         string `yaml:"blockDir"`
	DictionaryFile   string `yaml:"dictionaryFile"`
	PostingsFile     string `yaml:"postingsFile"`
	BlockMemoryBytes int64  `yaml:"blockMemoryBytes"`
	MergeMemoryBytes int64  `yaml:"mergeMemoryBytes"`
	KeepBlocks       bool   `yaml:"keepBlocks"`
}

// DictionaryPath returns the dictionary file location, resolving relative
// names against DataDir.
func (c IndexerConfig) DictionaryPath() string {
	return resolve(c.DataDir, c.DictionaryFile)
}

// PostingsPath returns the postings file location, resolving relative names
// against DataDir.
func (c IndexerConfig) PostingsPath() string {
	return resolve(c.DataDir, c.PostingsFile)
}

// BlockPath returns the block directory, resolving relative names against
// DataDir.
func (c IndexerConfig) BlockPath() string {
	return resolve(c.DataDir, c.BlockDir)
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// SearchConfig controls query evaluation.
type SearchConfig struct {
	MaxResults           int     `yaml:"maxResults"`
	DefaultLimit         int     `yaml:"defaultLimit"`
	PhrasePolicy         string  `yaml:"phrasePolicy"`
	MaxConcurrentQueries int     `yaml:"maxConcurrentQueries"`
	FeedbackAlpha        float64 `yaml:"feedbackAlpha"`
	FeedbackBeta         float64 `yaml:"feedbackBeta"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local runs.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchplatform",
			User:            "searchplatform",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			DocumentsTable:  "documents",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchplatform-group",
			Topics: KafkaTopics{
				IndexBuilt: "index.built",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:          "data",
			BlockDir:         "blocks",
			DictionaryFile:   "dictionary.bin",
			PostingsFile:     "postings.bin",
			BlockMemoryBytes: 64 << 20,
			MergeMemoryBytes: 64 << 20,
		},
		Search: SearchConfig{
			MaxResults:           100,
			DefaultLimit:         10,
			PhrasePolicy:         "intersect",
			MaxConcurrentQueries: 4,
			FeedbackAlpha:        1.0,
			FeedbackBeta:         0.75,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the indexer or searcher cannot run with.
func (c *Config) Validate() error {
	if c.Indexer.BlockMemoryBytes <= 0 {
		return fmt.Errorf("indexer.blockMemoryBytes must be positive, got %d", c.Indexer.BlockMemoryBytes)
	}
	if c.Indexer.MergeMemoryBytes <= 0 {
		return fmt.Errorf("indexer.mergeMemoryBytes must be positive, got %d", c.Indexer.MergeMemoryBytes)
	}
	if c.Indexer.DictionaryFile == "" || c.Indexer.PostingsFile == "" {
		return fmt.Errorf("indexer.dictionaryFile and indexer.postingsFile are required")
	}
	switch c.Search.PhrasePolicy {
	case "intersect", "append":
	default:
		return fmt.Errorf("search.phrasePolicy must be intersect or append, got %q", c.Search.PhrasePolicy)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		c.Search.MaxResults = c.Search.DefaultLimit
	}
	if c.Search.MaxConcurrentQueries <= 0 {
		c.Search.MaxConcurrentQueries = 1
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_INDEXER_BLOCK_MEMORY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.BlockMemoryBytes = n
		}
	}
	if v := os.Getenv("SP_INDEXER_MERGE_MEMORY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.MergeMemoryBytes = n
		}
	}
	if v := os.Getenv("SP_SEARCH_PHRASE_POLICY"); v != "" {
		cfg.Search.PhrasePolicy = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
