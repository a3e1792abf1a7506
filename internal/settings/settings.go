package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atiastack/atia-dashboard/internal/cache"
	"github.com/atiastack/atia-dashboard/internal/config"
)

// DefaultKey is the storage key for the settings record.
const DefaultKey = "atia_settings"

// Settings is the operator-editable integration record. Values are opaque to the dashboard.
type Settings struct {
	MongoURI      string `json:"mongoUri"`
	Database      string `json:"database"`
	WebhookURL    string `json:"webhookUrl"`
	VirusTotalURL string `json:"virusTotalUrl"`
	OTXURL        string `json:"otxUrl"`
	AbuseIPDBURL  string `json:"abuseIpdbUrl"`
}

// Store persists Settings as one JSON blob under a single key. Last write wins.
type Store struct {
	provider cache.Provider
	key      string
	logger   *slog.Logger
}

// NewStore wraps provider; an empty key falls back to DefaultKey.
func NewStore(provider cache.Provider, key string, logger *slog.Logger) *Store {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{provider: provider, key: key, logger: logger}
}

// Load returns the stored record, or the zero record when nothing was saved.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	data, err := s.provider.Get(ctx, s.key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("stored settings unreadable, using defaults", "key", s.key, "error", err)
		return Settings{}, nil
	}
	return out, nil
}

// Save replaces the stored record wholesale.
func (s *Store) Save(ctx context.Context, v Settings) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.provider.Set(ctx, s.key, data, 0); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.logger.Debug("settings saved", "key", s.key)
	return nil
}

// Close releases the underlying provider.
func (s *Store) Close() error {
	return s.provider.Close()
}

// NewProvider builds the cache backend named by cfg.
func NewProvider(cfg config.SettingsConfig) (cache.Provider, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryProvider(), nil
	case "file", "":
		p, err := cache.NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "valkey":
		p, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Valkey.Addr,
			Username:     cfg.Valkey.Username,
			Password:     cfg.Valkey.Password,
			DB:           cfg.Valkey.DB,
			DialTimeout:  cfg.Valkey.DialTimeout,
			ReadTimeout:  cfg.Valkey.ReadTimeout,
			WriteTimeout: cfg.Valkey.WriteTimeout,
			MaxRetries:   cfg.Valkey.MaxRetries,
			TLS:          cfg.Valkey.TLS,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}
