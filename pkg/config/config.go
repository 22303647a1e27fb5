// Package config loads the shard reader's configuration from a YAML file
// with SR_* environment-variable overrides, and validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	RPC      RPCConfig      `yaml:"rpc"`
	Reader   ReaderConfig   `yaml:"reader"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// RPCConfig holds the JSON-over-TCP boundary settings.
type RPCConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReaderConfig points at the index directory and bounds queries.
type ReaderConfig struct {
	IndexDir     string `yaml:"indexDir"`
	MMap         bool   `yaml:"mmap"`
	DefaultLimit int    `yaml:"defaultLimit"`
	MaxResults   int    `yaml:"maxResults"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the brokers, the topic payloads are exported to and the
// topic announcing new index generations.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	ExportTopic   string   `yaml:"exportTopic"`
	ReloadTopic   string   `yaml:"reloadTopic"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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
	ExportTable     string        `yaml:"exportTable"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ExportConfig controls bulk export of document payloads.
type ExportConfig struct {
	BatchSize   int           `yaml:"batchSize"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	Timeout     time.Duration `yaml:"timeout"`
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

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Reader.IndexDir == "" {
		return fmt.Errorf("config: reader.indexDir is required")
	}
	if c.Reader.DefaultLimit <= 0 {
		return fmt.Errorf("config: reader.defaultLimit must be positive, got %d", c.Reader.DefaultLimit)
	}
	if c.Reader.MaxResults < c.Reader.DefaultLimit {
		return fmt.Errorf("config: reader.maxResults (%d) below defaultLimit (%d)", c.Reader.MaxResults, c.Reader.DefaultLimit)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config: server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Export.BatchSize <= 0 {
		return fmt.Errorf("config: export.batchSize must be positive, got %d", c.Export.BatchSize)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    ":9100",
			Timeout: 30 * time.Second,
		},
		Reader: ReaderConfig{
			IndexDir:     "./data/index",
			MMap:         true,
			DefaultLimit: 10,
			MaxResults:   1000,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "shard-reader",
			ExportTopic:   "shard-documents",
			ReloadTopic:   "",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "shardreader",
			User:            "shardreader",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ExportTable:     "shard_documents",
		},
		Export: ExportConfig{
			BatchSize:   500,
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			Timeout:     2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("SR_SERVER_PORT", &cfg.Server.Port)
	setInt("SR_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	setString("SR_RPC_ADDR", &cfg.RPC.Addr)
	setBool("SR_RPC_ENABLED", &cfg.RPC.Enabled)
	setString("SR_INDEX_DIR", &cfg.Reader.IndexDir)
	setBool("SR_READER_MMAP", &cfg.Reader.MMap)
	setInt("SR_READER_DEFAULT_LIMIT", &cfg.Reader.DefaultLimit)
	setInt("SR_READER_MAX_RESULTS", &cfg.Reader.MaxResults)
	setBool("SR_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("SR_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SR_REDIS_PASSWORD", &cfg.Redis.Password)
	if v := os.Getenv("SR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("SR_KAFKA_EXPORT_TOPIC", &cfg.Kafka.ExportTopic)
	setString("SR_KAFKA_RELOAD_TOPIC", &cfg.Kafka.ReloadTopic)
	setString("SR_KAFKA_CONSUMER_GROUP", &cfg.Kafka.ConsumerGroup)
	setString("SR_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SR_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SR_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SR_POSTGRES_USER", &cfg.Postgres.User)
	setString("SR_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SR_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setString("SR_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SR_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("SR_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("SR_METRICS_PORT", &cfg.Metrics.Port)
}
