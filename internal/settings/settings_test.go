package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atiastack/atia-dashboard/internal/cache"
	"github.com/atiastack/atia-dashboard/internal/config"
)

type failingProvider struct {
	cache.NoopProvider
}

func (failingProvider) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingProvider) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestLoadMissingReturnsZero(t *testing.T) {
	store := NewStore(cache.NewMemoryProvider(), "", nil)
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (Settings{}) {
		t.Fatalf("expected zero settings, got %+v", got)
	}
}

func TestSaveThenLoadLastWriteWins(t *testing.T) {
	provider := cache.NewMemoryProvider()
	store := NewStore(provider, "", nil)
	ctx := context.Background()

	if err := store.Save(ctx, Settings{Database: "atia", WebhookURL: "http://hooks.local/a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, Settings{Database: "intel"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Database != "intel" || got.WebhookURL != "" {
		t.Fatalf("expected wholesale replacement, got %+v", got)
	}

	raw, err := provider.Get(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("expected blob under default key: %v", err)
	}
	if string(raw) != `{"mongoUri":"","database":"intel","webhookUrl":"","virusTotalUrl":"","otxUrl":"","abuseIpdbUrl":""}` {
		t.Fatalf("unexpected stored blob %s", raw)
	}
}

func TestLoadCorruptBlobFallsBackToZero(t *testing.T) {
	provider := cache.NewMemoryProvider()
	_ = provider.Set(context.Background(), DefaultKey, []byte("{not json"), 0)
	got, err := NewStore(provider, "", nil).Load(context.Background())
	if err != nil || got != (Settings{}) {
		t.Fatalf("expected zero settings without error, got %+v err=%v", got, err)
	}
}

func TestProviderFailuresSurface(t *testing.T) {
	store := NewStore(failingProvider{}, "", nil)
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if err := store.Save(context.Background(), Settings{}); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestNewProviderBackends(t *testing.T) {
	p, err := NewProvider(config.SettingsConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := p.(*cache.MemoryProvider); !ok {
		t.Fatalf("expected memory provider, got %T", p)
	}
	p, err = NewProvider(config.SettingsConfig{Backend: "file", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	if _, ok := p.(*cache.FileProvider); !ok {
		t.Fatalf("expected file provider, got %T", p)
	}
	if _, err := NewProvider(config.SettingsConfig{Backend: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
