package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "10s" parse directly.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses either a Go duration string or a bare integer of
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		var secs int64
		if _, convErr := fmt.Sscanf(raw, "%d", &secs); convErr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", raw, err)
		}
		parsed = time.Duration(secs) * time.Second
	}
	d.Duration = parsed
	return nil
}

// NodeConfig carries the node connection settings. The API key and mnemonic
// come from the environment, never the file.
type NodeConfig struct {
	URL        string `yaml:"url"`
	EventsURL  string `yaml:"events_url"`
	Network    string `yaml:"network"`
	StorageDir string `yaml:"storage_dir"`

	APIKey     string `yaml:"-"`
	Mnemonic   string `yaml:"-"`
	Passphrase string `yaml:"-"`

	CacheTTL Duration `yaml:"cache_ttl"`
}

// DatabaseConfig carries the rewards database settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig carries the authorization boundary and session settings.
type AuthConfig struct {
	UserServiceURL string `yaml:"user_service_url"`
	UserServiceKey string `yaml:"-"`
	SessionSecret  string `yaml:"-"`
}

// TelemetryConfig mirrors the OTLP exporter settings.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	Metrics     bool   `yaml:"metrics"`
	Traces      bool   `yaml:"traces"`
	Environment string `yaml:"environment"`
}

// LogConfig carries the file sink settings for structured logs.
type LogConfig struct {
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Config is the satspayd daemon configuration.
type Config struct {
	ListenAddr string          `yaml:"listen_addr"`
	Node       NodeConfig      `yaml:"node"`
	Database   DatabaseConfig  `yaml:"database"`
	Auth       AuthConfig      `yaml:"auth"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Log        LogConfig       `yaml:"log"`
}

// Default returns the baseline configuration before file and environment
// overrides apply.
func Default() Config {
	return Config{
		ListenAddr: ":8090",
		Node: NodeConfig{
			URL:        "http://127.0.0.1:9740",
			Network:    "mainnet",
			StorageDir: "./data/node",
			CacheTTL:   Duration{10 * time.Second},
		},
		Telemetry: TelemetryConfig{
			Environment: "development",
		},
	}
}

// Load reads the YAML file at path, if present, and applies environment
// overrides. Secrets are only ever read from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "SATSPAY_LISTEN_ADDR")
	setString(&c.Node.URL, "SATSPAY_NODE_URL")
	setString(&c.Node.EventsURL, "SATSPAY_NODE_EVENTS_URL")
	setString(&c.Node.Network, "SATSPAY_NODE_NETWORK")
	setString(&c.Node.StorageDir, "SATSPAY_NODE_STORAGE_DIR")
	setString(&c.Node.APIKey, "SATSPAY_NODE_API_KEY")
	setString(&c.Node.Mnemonic, "SATSPAY_WALLET_MNEMONIC")
	setString(&c.Node.Passphrase, "SATSPAY_WALLET_PASSPHRASE")
	setString(&c.Database.DSN, "SATSPAY_DATABASE_DSN")
	setString(&c.Auth.UserServiceURL, "SATSPAY_USER_SERVICE_URL")
	setString(&c.Auth.UserServiceKey, "SATSPAY_USER_SERVICE_KEY")
	setString(&c.Auth.SessionSecret, "SATSPAY_SESSION_SECRET")
	setString(&c.Telemetry.Endpoint, "SATSPAY_OTLP_ENDPOINT")
	setString(&c.Telemetry.Environment, "SATSPAY_ENVIRONMENT")
	setString(&c.Log.FilePath, "SATSPAY_LOG_FILE")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Validate rejects configurations that cannot produce a working daemon.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if strings.TrimSpace(c.Node.URL) == "" {
		return fmt.Errorf("config: node.url is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Node.Network)) {
	case "mainnet", "regtest":
	default:
		return fmt.Errorf("config: node.network must be mainnet or regtest, got %q", c.Node.Network)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required (SATSPAY_DATABASE_DSN)")
	}
	if strings.TrimSpace(c.Auth.SessionSecret) == "" {
		return fmt.Errorf("config: session secret is required (SATSPAY_SESSION_SECRET)")
	}
	return nil
}
