package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if err := m.Set(ctx, "k", "mobile", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := m.Get(ctx, "k")
	if err != nil || v != "mobile" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "k", "landline", time.Minute)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("expected hit before expiry, got %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after expiry, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected expired entry to be evicted, len=%d", m.Len())
	}
}

func TestNew_DefaultsToMemory(t *testing.T) {
	s, err := New("", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", s)
	}
}

func TestValkey_RoundTrip(t *testing.T) {
	url := os.Getenv("VALKEY_URL")
	if url == "" {
		t.Skip("VALKEY_URL not set")
	}
	v, err := NewValkey(url, "faxdesk-test:")
	if err != nil {
		t.Fatalf("NewValkey: %v", err)
	}
	defer v.Close()

	ctx := context.Background()
	if err := v.Set(ctx, "carrier:+15550001111", "mobile", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := v.Get(ctx, "carrier:+15550001111")
	if err != nil || got != "mobile" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := v.Get(ctx, "carrier:absent"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}
