package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Mode != ModeLocal {
		t.Errorf("default mode = %q, want local", cfg.Mode)
	}
}

func TestServeModeRequiresOperatorKey(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeServe

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "operator_key") {
		t.Fatalf("validate err = %v, want operator key complaint", err)
	}

	cfg.Evm.OperatorKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate with key: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("validate succeeded, want errors")
	}
	for _, want := range []string{"mode", "log_level", "port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "serve"
log_level = "debug"

[postgres]
host = "db.internal"

[evm]
operator_key = "aa"
rpc_url = "http://geth:8545"
chain_id = 137
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("MARKETD_POSTGRES_HOST", "db.override")
	t.Setenv("MARKETD_SERVER_PORT", "9090")
	t.Setenv("MARKETD_ARCHIVE_INTERVAL", "15m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "serve" {
		t.Errorf("mode = %q, want serve", cfg.Mode)
	}
	if cfg.Postgres.Host != "db.override" {
		t.Errorf("postgres host = %q, want env override", cfg.Postgres.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Archive.Interval.Duration != 15*time.Minute {
		t.Errorf("archive interval = %v, want 15m", cfg.Archive.Interval.Duration)
	}
	// TOML fields without overrides keep their file values.
	if cfg.Evm.ChainID != 137 {
		t.Errorf("chain id = %d, want 137", cfg.Evm.ChainID)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Evm.OperatorKey = "deadbeef"
	cfg.Server.APIKey = "token"

	red := RedactedConfig(&cfg)
	if red.Postgres.Password != "***" || red.Evm.OperatorKey != "***" || red.Server.APIKey != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Postgres.Password != "secret" {
		t.Errorf("original mutated")
	}
}
