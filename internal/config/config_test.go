package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store = %q", cfg.Store.Backend)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SG_STORE", "Postgres")
	t.Setenv("SG_DB_HOST", "db.internal")
	t.Setenv("SG_DB_PORT", "6543")
	t.Setenv("SG_REDIS_ADDR", "redis:6379")
	t.Setenv("SG_LLM_PROVIDER", "perplexity")
	t.Setenv("SG_LLM_TIMEOUT_SEC", "15")
	t.Setenv("SG_BACKTEST_TIMEOUT_SEC", "30")
	t.Setenv("SG_HTTP_PORT", "9000")
	t.Setenv("SG_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("store = %q", cfg.Store.Backend)
	}
	if got := cfg.Database.ConnString(); !strings.Contains(got, "@db.internal:6543/") {
		t.Errorf("conn string = %s", got)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.LLM.Provider != "perplexity" || cfg.LLM.Timeout != 15*time.Second {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Backtest.Timeout != 30*time.Second {
		t.Errorf("backtest timeout = %v", cfg.Backtest.Timeout)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("http port = %d", cfg.Server.HTTPPort)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"SG_LOG_LEVEL", "loud", "invalid log level"},
		{"SG_STORE", "mongo", "invalid store"},
		{"SG_LLM_PROVIDER", "oracle", "invalid LLM provider"},
		{"SG_LLM_RPM", "0", "SG_LLM_RPM"},
		{"SG_GRPC_PORT", "70000", "SG_GRPC_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
