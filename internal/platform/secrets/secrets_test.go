package secrets

import (
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func generateTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestNewSealer(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		s, err := NewSealer(generateTestKey(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !s.Enabled() {
			t.Fatal("expected enabled sealer")
		}
	})

	t.Run("nil key is pass-through", func(t *testing.T) {
		s, err := NewSealer(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Enabled() {
			t.Fatal("expected pass-through sealer")
		}
	})

	t.Run("key too short", func(t *testing.T) {
		if _, err := NewSealer(make([]byte, 16)); err == nil {
			t.Fatal("expected error for 16-byte key")
		}
	})
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(generateTestKey(t))
	if err != nil {
		t.Fatalf("create sealer: %v", err)
	}

	for _, plaintext := range []string{"AC0123456789abcdef", "secret-key-value", "ünïcødé"} {
		t.Run(plaintext, func(t *testing.T) {
			sealed, err := s.Seal(plaintext)
			if err != nil {
				t.Fatalf("seal: %v", err)
			}
			if !strings.HasPrefix(sealed, sealedPrefix) {
				t.Fatalf("sealed value missing prefix: %q", sealed)
			}
			if strings.Contains(sealed, plaintext) {
				t.Fatal("sealed value leaks plaintext")
			}

			opened, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if opened != plaintext {
				t.Errorf("got %q, want %q", opened, plaintext)
			}
		})
	}
}

func TestSeal_EmptyStaysEmpty(t *testing.T) {
	s, _ := NewSealer(generateTestKey(t))
	got, err := s.Seal("")
	if err != nil || got != "" {
		t.Fatalf("expected empty result, got %q, %v", got, err)
	}
}

func TestOpen_PlainValuePassesThrough(t *testing.T) {
	s, _ := NewSealer(generateTestKey(t))
	got, err := s.Open("legacy-plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "legacy-plain" {
		t.Errorf("got %q", got)
	}
}

func TestOpen_SealedWithoutKey(t *testing.T) {
	keyed, _ := NewSealer(generateTestKey(t))
	sealed, _ := keyed.Seal("token")

	plain, _ := NewSealer(nil)
	if _, err := plain.Open(sealed); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	a, _ := NewSealer(generateTestKey(t))
	b, _ := NewSealer(generateTestKey(t))
	sealed, _ := a.Seal("token")
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("expected error opening with a different key")
	}
}

func TestMask(t *testing.T) {
	if got := Mask("ACabcdef"); got != "ACab..." {
		t.Errorf("Mask = %q", got)
	}
	if got := Mask("abc"); got != "***" {
		t.Errorf("Mask short = %q", got)
	}
}
