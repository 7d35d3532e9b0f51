package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
listen_addr: ":9000"
node:
  url: "http://node.internal:9740"
  network: "regtest"
  cache_ttl: "30s"
database:
  dsn: "host=db user=satspay dbname=satspay"
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SATSPAY_SESSION_SECRET", "test-secret")
	t.Setenv("SATSPAY_NODE_API_KEY", "key-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.Node.Network != "regtest" {
		t.Fatalf("unexpected network: %s", cfg.Node.Network)
	}
	if cfg.Node.CacheTTL.Duration != 30*time.Second {
		t.Fatalf("unexpected cache ttl: %s", cfg.Node.CacheTTL.Duration)
	}
	if cfg.Node.APIKey != "key-from-env" {
		t.Fatalf("env override not applied: %q", cfg.Node.APIKey)
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	t.Setenv("SATSPAY_DATABASE_DSN", "host=db user=satspay dbname=satspay")
	t.Setenv("SATSPAY_SESSION_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for missing session secret")
	}
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("SATSPAY_DATABASE_DSN", "host=db user=satspay dbname=satspay")
	t.Setenv("SATSPAY_SESSION_SECRET", "secret")
	t.Setenv("SATSPAY_NODE_NETWORK", "testnet4")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown network")
	}
}

func TestDurationParsesBareSeconds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte("node:\n  cache_ttl: \"45\"\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SATSPAY_DATABASE_DSN", "host=db user=satspay dbname=satspay")
	t.Setenv("SATSPAY_SESSION_SECRET", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.CacheTTL.Duration != 45*time.Second {
		t.Fatalf("unexpected duration: %s", cfg.Node.CacheTTL.Duration)
	}
}
