package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func exerciseProvider(t *testing.T, p Provider) {
	t.Helper()
	ctx := context.Background()

	if _, err := p.Get(ctx, "atia_settings"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss on empty provider, got %v", err)
	}
	if err := p.Set(ctx, "atia_settings", []byte(`{"database":"atia"}`), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := p.Set(ctx, "atia_settings", []byte(`{"database":"intel"}`), 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := p.Get(ctx, "atia_settings")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"database":"intel"}` {
		t.Fatalf("last write should win, got %s", got)
	}
	if err := p.Del(ctx, "atia_settings"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := p.Get(ctx, "atia_settings"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
	if err := p.Del(ctx, "atia_settings"); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
}

func TestMemoryProvider(t *testing.T) {
	exerciseProvider(t, NewMemoryProvider())
}

func TestFileProvider(t *testing.T) {
	p, err := NewFileProvider(t.TempDir())
	if err != nil {
		t.Fatalf("new file provider: %v", err)
	}
	exerciseProvider(t, p)
}

func TestFileProviderEscapesKeys(t *testing.T) {
	p, err := NewFileProvider(t.TempDir())
	if err != nil {
		t.Fatalf("new file provider: %v", err)
	}
	ctx := context.Background()
	if err := p.Set(ctx, "../escape", []byte("x"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := p.Get(ctx, "../escape"); err != nil || string(got) != "x" {
		t.Fatalf("expected round trip for escaped key, got %q err=%v", got, err)
	}
}

func TestMemoryProviderTTL(t *testing.T) {
	p := NewMemoryProvider()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestNoopProvider(t *testing.T) {
	var p NoopProvider
	if err := p.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop should always miss, got %v", err)
	}
}

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestHostForTLS(t *testing.T) {
	if got := hostForTLS("cache.internal:6379"); got != "cache.internal" {
		t.Fatalf("unexpected host %q", got)
	}
	if got := hostForTLS("cache.internal"); got != "cache.internal" {
		t.Fatalf("unexpected host without port %q", got)
	}
}
