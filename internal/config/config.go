package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for Facet.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
	Model      ModelConfig
	Auth       AuthConfig
	Log        LogConfig
	Seed       SeedConfig
	Query      QueryConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	MaxPayloadSize int64 // Maximum request payload size in bytes
	TLSEnabled     bool
	TLSCertFile    string // Path to TLS certificate file (PEM format)
	TLSKeyFile     string // Path to TLS private key file (PEM format)
}

// DatabaseConfig selects and tunes the warehouse engine. Engine is one of
// duckdb, clickhouse, postgres; the engine-specific sections below supply
// connection details for the remote engines.
type DatabaseConfig struct {
	Engine               string
	Path                 string // DuckDB database file
	MaxConnections       int
	MemoryLimit          string // DuckDB memory limit, e.g. "4GB"
	ThreadCount          int
	MaxConcurrentQueries int // Queries allowed to run simultaneously
}

type ClickHouseConfig struct {
	Host     string
	Port     int // Native protocol port
	Database string
	Username string
	Password string
	Secure   bool
}

type PostgresConfig struct {
	DSN string
}

// ModelConfig selects the language model backend. Provider is one of
// mock, bedrock, ollama.
type ModelConfig struct {
	Provider    string
	ModelID     string // Bedrock model identifier
	Region      string // AWS region for Bedrock
	OllamaURL   string
	OllamaModel string
}

type AuthConfig struct {
	Enabled      bool
	DBPath       string // SQLite database path for API tokens
	CacheTTL     int    // Token cache TTL in seconds
	MaxCacheSize int    // Maximum number of cached tokens
}

type LogConfig struct {
	Level  string
	Format string
}

// SeedConfig controls the built-in demo dataset. The refresher re-checks on
// the given cron schedule and only reloads when the table is empty, so
// imported data is never clobbered.
type SeedConfig struct {
	Enabled         bool
	Seed            int64  // RNG seed for deterministic data
	RefreshSchedule string // Cron schedule, empty disables the refresher
}

type QueryConfig struct {
	MaxRows      int // Rows returned to clients are capped at this count
	MaxSQLLength int
}

// Load reads configuration from defaults, an optional facet.toml, and
// FACET_-prefixed environment variables, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FACET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("facet")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/facet/")
	v.AddConfigPath("$HOME/.facet/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults and env vars apply.
	}

	maxPayloadSize, err := ParseSize(v.GetString("server.max_payload_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.max_payload_size: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetInt("server.read_timeout"),
			WriteTimeout:   v.GetInt("server.write_timeout"),
			MaxPayloadSize: maxPayloadSize,
			TLSEnabled:     v.GetBool("server.tls_enabled"),
			TLSCertFile:    v.GetString("server.tls_cert_file"),
			TLSKeyFile:     v.GetString("server.tls_key_file"),
		},
		Database: DatabaseConfig{
			Engine:               v.GetString("database.engine"),
			Path:                 v.GetString("database.path"),
			MaxConnections:       v.GetInt("database.max_connections"),
			MemoryLimit:          v.GetString("database.memory_limit"),
			ThreadCount:          v.GetInt("database.thread_count"),
			MaxConcurrentQueries: v.GetInt("database.max_concurrent_queries"),
		},
		ClickHouse: ClickHouseConfig{
			Host:     v.GetString("clickhouse.host"),
			Port:     v.GetInt("clickhouse.port"),
			Database: v.GetString("clickhouse.database"),
			Username: v.GetString("clickhouse.username"),
			Password: v.GetString("clickhouse.password"),
			Secure:   v.GetBool("clickhouse.secure"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("postgres.dsn"),
		},
		Model: ModelConfig{
			Provider:    v.GetString("model.provider"),
			ModelID:     v.GetString("model.model_id"),
			Region:      v.GetString("model.region"),
			OllamaURL:   v.GetString("model.ollama_url"),
			OllamaModel: v.GetString("model.ollama_model"),
		},
		Auth: AuthConfig{
			Enabled:      v.GetBool("auth.enabled"),
			DBPath:       v.GetString("auth.db_path"),
			CacheTTL:     v.GetInt("auth.cache_ttl"),
			MaxCacheSize: v.GetInt("auth.max_cache_size"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Seed: SeedConfig{
			Enabled:         v.GetBool("seed.enabled"),
			Seed:            v.GetInt64("seed.seed"),
			RefreshSchedule: v.GetString("seed.refresh_schedule"),
		},
		Query: QueryConfig{
			MaxRows:      v.GetInt("query.max_rows"),
			MaxSQLLength: v.GetInt("query.max_sql_length"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.max_payload_size", "100MB")
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	// Database defaults - sized from system resources
	v.SetDefault("database.engine", "duckdb")
	v.SetDefault("database.path", "./data/facet.duckdb")
	v.SetDefault("database.max_connections", getDefaultMaxConnections())
	v.SetDefault("database.memory_limit", getDefaultMemoryLimit())
	v.SetDefault("database.thread_count", runtime.NumCPU())
	v.SetDefault("database.max_concurrent_queries", 4)

	// ClickHouse defaults (native protocol)
	v.SetDefault("clickhouse.host", "localhost")
	v.SetDefault("clickhouse.port", 9000)
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.secure", false)

	// Postgres defaults
	v.SetDefault("postgres.dsn", "")

	// Model defaults - the mock provider answers without any external service
	v.SetDefault("model.provider", "mock")
	v.SetDefault("model.model_id", "anthropic.claude-3-5-sonnet-20240620-v1:0")
	v.SetDefault("model.region", "us-east-1")
	v.SetDefault("model.ollama_url", "http://localhost:11434")
	v.SetDefault("model.ollama_model", "llama3.1:8b")

	// Auth defaults - opt-in, tokens live in a local SQLite file
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.db_path", "./data/facet.db")
	v.SetDefault("auth.cache_ttl", 300)
	v.SetDefault("auth.max_cache_size", 1000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Seed defaults
	v.SetDefault("seed.enabled", true)
	v.SetDefault("seed.seed", 42)
	v.SetDefault("seed.refresh_schedule", "0 3 * * *")

	// Query defaults
	v.SetDefault("query.max_rows", 5000)
	v.SetDefault("query.max_sql_length", 10000)
}

func getDefaultMaxConnections() int {
	cores := runtime.NumCPU()
	maxConns := cores * 2
	if maxConns < 4 {
		return 4
	}
	if maxConns > 64 {
		return 64
	}
	return maxConns
}

func getDefaultMemoryLimit() string {
	// Rough heuristic: ~2GB of memory per core, half of it for the engine,
	// within sane bounds. Override via FACET_DATABASE_MEMORY_LIMIT or the
	// config file.
	targetGB := runtime.NumCPU()
	if targetGB < 1 {
		return "1GB"
	}
	if targetGB > 32 {
		return "32GB"
	}
	return fmt.Sprintf("%dGB", targetGB)
}

// Validate checks cross-field constraints that viper cannot express.
func (cfg *Config) Validate() error {
	switch cfg.Database.Engine {
	case "duckdb", "clickhouse", "postgres":
	default:
		return fmt.Errorf("unknown database.engine %q (expected duckdb, clickhouse, or postgres)", cfg.Database.Engine)
	}
	if cfg.Database.Engine == "postgres" && cfg.Postgres.DSN == "" {
		return fmt.Errorf("database.engine is postgres but postgres.dsn is empty")
	}

	switch cfg.Model.Provider {
	case "mock", "bedrock", "ollama":
	default:
		return fmt.Errorf("unknown model.provider %q (expected mock, bedrock, or ollama)", cfg.Model.Provider)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Query.MaxRows < 1 {
		return fmt.Errorf("query.max_rows must be positive, got %d", cfg.Query.MaxRows)
	}
	return nil
}

// ValidateTLS validates TLS configuration when TLS is enabled.
func (cfg *ServerConfig) ValidateTLS() error {
	if !cfg.TLSEnabled {
		return nil
	}
	if cfg.TLSCertFile == "" {
		return fmt.Errorf("TLS enabled but server.tls_cert_file not specified")
	}
	if cfg.TLSKeyFile == "" {
		return fmt.Errorf("TLS enabled but server.tls_key_file not specified")
	}
	if err := checkFile(cfg.TLSCertFile, "TLS certificate file"); err != nil {
		return err
	}
	return checkFile(cfg.TLSKeyFile, "TLS key file")
}

func checkFile(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s not found: %s", what, path)
		}
		return fmt.Errorf("cannot access %s %s: %w", what, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file: %s", what, path)
	}
	return nil
}

// ParseSize parses a human-readable size string such as "100MB" or "1GB"
// into bytes. Supported suffixes are B, KB, MB, GB (case-insensitive); a
// bare number is taken as bytes.
func ParseSize(sizeStr string) (int64, error) {
	s := strings.TrimSpace(strings.ToUpper(sizeStr))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	units := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		numStr := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size format: %s (use e.g. '100MB' or '1GB')", sizeStr)
		}
		if num < 0 {
			return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
		}
		return int64(num * float64(u.mult)), nil
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid size format: %s (use e.g. '100MB' or '1GB')", sizeStr)
	}
	return num, nil
}
