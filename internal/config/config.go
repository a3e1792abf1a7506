package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Execution contexts for base URL resolution.
const (
	ContextClient = "client"
	ContextServer = "server"
)

// Config captures the settings required to run the dashboard.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Clients  ClientsConfig  `yaml:"clients"`
	Sync     SyncConfig     `yaml:"sync"`
	Settings SettingsConfig `yaml:"settings"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the local listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups remote integrations.
type ClientsConfig struct {
	Aggregator AggregatorClientConfig `yaml:"aggregator"`
}

// AggregatorClientConfig configures access to the ATIA aggregation API.
//
// PublicBaseURL is used when running as the interactive client and
// InternalBaseURL when pre-rendering from inside the deployment network.
type AggregatorClientConfig struct {
	PublicBaseURL   string        `yaml:"publicBaseURL"`
	InternalBaseURL string        `yaml:"internalBaseURL"`
	Context         string        `yaml:"context"`
	HealthPath      string        `yaml:"healthPath"`
	AnalyzePath     string        `yaml:"analyzePath"`
	ThreatsPath     string        `yaml:"threatsPath"`
	Timeout         time.Duration `yaml:"timeout"`
}

// SyncConfig controls polling cadence.
type SyncConfig struct {
	HealthInterval time.Duration `yaml:"healthInterval"`
	ListInterval   time.Duration `yaml:"listInterval"`
	ListLimit      int           `yaml:"listLimit"`
}

// SettingsConfig selects where the settings blob lives.
type SettingsConfig struct {
	Backend string       `yaml:"backend"` // file|valkey|memory
	Key     string       `yaml:"key"`
	Dir     string       `yaml:"dir"`
	Valkey  ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig holds connection parameters for a Valkey/Redis settings backend.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ATIA_DASHBOARD_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the dashboard cannot run with.
func (c *Config) Validate() error {
	switch c.Clients.Aggregator.Context {
	case ContextClient, ContextServer:
	default:
		return fmt.Errorf("clients.aggregator.context must be %q or %q, got %q", ContextClient, ContextServer, c.Clients.Aggregator.Context)
	}
	if c.Sync.HealthInterval <= 0 || c.Sync.ListInterval <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}
	if c.Sync.ListLimit <= 0 {
		return fmt.Errorf("sync.listLimit must be positive")
	}
	switch c.Settings.Backend {
	case "file", "valkey", "memory":
	default:
		return fmt.Errorf("unknown settings backend %q", c.Settings.Backend)
	}
	return nil
}

// BaseURL resolves the aggregation endpoint for the given execution context.
func (a AggregatorClientConfig) BaseURL(context string) string {
	if context == ContextServer {
		return a.InternalBaseURL
	}
	return a.PublicBaseURL
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			GRPCAddress:     ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Aggregator: AggregatorClientConfig{
				PublicBaseURL:   "http://localhost:8080",
				InternalBaseURL: "http://backend:8080",
				Context:         ContextClient,
				HealthPath:      "/health",
				AnalyzePath:     "/api/v1/analyze",
				ThreatsPath:     "/api/v1/threats",
				Timeout:         30 * time.Second,
			},
		},
		Sync: SyncConfig{
			HealthInterval: 30 * time.Second,
			ListInterval:   60 * time.Second,
			ListLimit:      50,
		},
		Settings: SettingsConfig{
			Backend: "file",
			Key:     "atia_settings",
			Dir:     ".atia",
			Valkey: ValkeyConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATIA_DASHBOARD_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ATIA_DASHBOARD_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("ATIA_DASHBOARD_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ATIA_PUBLIC_API_BASE_URL"); v != "" {
		cfg.Clients.Aggregator.PublicBaseURL = v
	}
	if v := os.Getenv("ATIA_INTERNAL_API_BASE_URL"); v != "" {
		cfg.Clients.Aggregator.InternalBaseURL = v
	}
	if v := os.Getenv("ATIA_CONTEXT"); v != "" {
		cfg.Clients.Aggregator.Context = strings.ToLower(v)
	}
	if v := os.Getenv("ATIA_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.Aggregator.Timeout = d
		}
	}
	if v := os.Getenv("ATIA_HEALTH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.HealthInterval = d
		}
	}
	if v := os.Getenv("ATIA_LIST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.ListInterval = d
		}
	}
	if v := os.Getenv("ATIA_LIST_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.ListLimit = n
		}
	}
	if v := os.Getenv("ATIA_SETTINGS_BACKEND"); v != "" {
		cfg.Settings.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ATIA_SETTINGS_KEY"); v != "" {
		cfg.Settings.Key = v
	}
	if v := os.Getenv("ATIA_SETTINGS_DIR"); v != "" {
		cfg.Settings.Dir = v
	}
	if v := os.Getenv("ATIA_SETTINGS_VALKEY_ADDR"); v != "" {
		cfg.Settings.Valkey.Addr = v
	}
	if v := os.Getenv("ATIA_SETTINGS_VALKEY_USERNAME"); v != "" {
		cfg.Settings.Valkey.Username = v
	}
	if v := os.Getenv("ATIA_SETTINGS_VALKEY_PASSWORD"); v != "" {
		cfg.Settings.Valkey.Password = v
	}
	if v := os.Getenv("ATIA_SETTINGS_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Settings.Valkey.DB = db
		}
	}
	if v := os.Getenv("ATIA_SETTINGS_VALKEY_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Settings.Valkey.TLS = true
	}
	if v := os.Getenv("ATIA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ATIA_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
