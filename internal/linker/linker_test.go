// internal/linker/linker_test.go
package linker

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateDeepLink(t *testing.T) {
	l := New("taskrelay_bot")
	token, link := l.Generate()
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	want := "https://t.me/taskrelay_bot?start=" + string(token)
	if link != want {
		t.Errorf("expected %q, got %q", want, link)
	}
}

func TestGenerateWithoutUsername(t *testing.T) {
	l := New("")
	token, link := l.Generate()
	if !strings.HasPrefix(link, "start=") || !strings.Contains(link, string(token)) {
		t.Errorf("expected bare start parameter, got %q", link)
	}
}

func TestConsumeSingleUse(t *testing.T) {
	l := New("bot")
	token, _ := l.Generate()

	if err := l.Consume(token); err != nil {
		t.Fatal(err)
	}
	if err := l.Consume(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken on second use, got %v", err)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	l := New("bot")
	if err := l.Validate("nope"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	l := New("bot")
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	token, _ := l.Generate()
	now = now.Add(14 * time.Minute)
	if err := l.Validate(token); err != nil {
		t.Errorf("token should still be valid at 14 minutes: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := l.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	l := New("bot")
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	l.Generate()
	l.Generate()
	now = now.Add(20 * time.Minute)
	fresh, _ := l.Generate()

	if removed := l.sweep(); removed != 2 {
		t.Errorf("expected 2 expired tokens removed, got %d", removed)
	}
	if err := l.Validate(fresh); err != nil {
		t.Errorf("fresh token should survive sweep: %v", err)
	}
}
