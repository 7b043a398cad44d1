package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for stratgraph.
type Config struct {
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Backtest BacktestConfig
	Server   ServerConfig
	Catalog  CatalogConfig
	Log      LogConfig
}

// StoreConfig selects the strategy store backend.
type StoreConfig struct {
	Backend string // "memory" or "postgres"
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	MaxConns int32
	MinConns int32
}

// ConnString builds a PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// RedisConfig holds Redis pub/sub parameters. An empty Addr disables event
// publishing.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// LLMConfig holds the language model provider settings.
type LLMConfig struct {
	Provider          string // "openai" or "perplexity"
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// BacktestConfig locates the external code generator and backtester.
type BacktestConfig struct {
	WorkDir      string
	CodegenPath  string
	BacktestPath string
	Timeout      time.Duration
}

// ServerConfig holds listener ports.
type ServerConfig struct {
	HTTPPort int
	GRPCPort int
}

// CatalogConfig points at an alternative catalog file. Empty uses the
// embedded catalog.
type CatalogConfig struct {
	Path string
}

// LogConfig holds logging parameters.
type LogConfig struct {
	Level string
}

// Load reads configuration from environment variables with SG_ prefix.
func Load() (*Config, error) {
	cfg := defaults()
	overrideFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "memory",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "algomatic",
			User:     "algomatic",
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			ChannelPrefix: "stratgraph",
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Timeout:           60 * time.Second,
			RequestsPerMinute: 20,
		},
		Backtest: BacktestConfig{
			WorkDir:      "backtest",
			CodegenPath:  "backtest/codegen",
			BacktestPath: "backtest/backtest",
			Timeout:      5 * time.Minute,
		},
		Server: ServerConfig{
			HTTPPort: 8080,
			GRPCPort: 9090,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("SG_STORE"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}

	if v := os.Getenv("SG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SG_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("SG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SG_DB_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("SG_DB_MIN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MinConns = int32(n)
		}
	}

	if v := os.Getenv("SG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SG_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("SG_REDIS_CHANNEL_PREFIX"); v != "" {
		cfg.Redis.ChannelPrefix = v
	}

	if v := os.Getenv("SG_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SG_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SG_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SG_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SG_LLM_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.Timeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SG_LLM_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.RequestsPerMinute = n
		}
	}

	if v := os.Getenv("SG_BACKTEST_DIR"); v != "" {
		cfg.Backtest.WorkDir = v
	}
	if v := os.Getenv("SG_CODEGEN_PATH"); v != "" {
		cfg.Backtest.CodegenPath = v
	}
	if v := os.Getenv("SG_BACKTEST_PATH"); v != "" {
		cfg.Backtest.BacktestPath = v
	}
	if v := os.Getenv("SG_BACKTEST_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backtest.Timeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SG_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = n
		}
	}
	if v := os.Getenv("SG_GRPC_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = n
		}
	}

	if v := os.Getenv("SG_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	if v := os.Getenv("SG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", cfg.Log.Level)
	}

	switch cfg.Store.Backend {
	case "memory":
	case "postgres":
		if cfg.Database.MaxConns < 1 {
			return fmt.Errorf("SG_DB_MAX_CONNS must be >= 1, got %d", cfg.Database.MaxConns)
		}
	default:
		return fmt.Errorf("invalid store %q: must be memory or postgres", cfg.Store.Backend)
	}

	switch cfg.LLM.Provider {
	case "openai", "perplexity":
	default:
		return fmt.Errorf("invalid LLM provider %q: must be openai or perplexity", cfg.LLM.Provider)
	}
	if cfg.LLM.RequestsPerMinute < 1 {
		return fmt.Errorf("SG_LLM_RPM must be >= 1, got %d", cfg.LLM.RequestsPerMinute)
	}

	for name, port := range map[string]int{"SG_HTTP_PORT": cfg.Server.HTTPPort, "SG_GRPC_PORT": cfg.Server.GRPCPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be in 1-65535, got %d", name, port)
		}
	}

	return nil
}
