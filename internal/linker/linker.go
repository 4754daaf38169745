// internal/linker/linker.go

// Package linker issues and validates the single-use tokens that tie a
// Telegram chat to this daemon. Tokens live for 15 minutes and are handed
// to the bot via a deep link.
package linker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/taskrelay/internal/types"
)

const tokenTTL = 15 * time.Minute

var (
	ErrInvalidToken = errors.New("invalid link token")
	ErrTokenExpired = errors.New("link token expired")
)

type pendingToken struct {
	createdAt time.Time
}

// Linker tracks pending link tokens in memory. Tokens do not survive a
// restart; the web UI just generates a fresh one.
type Linker struct {
	botUsername string

	mu      sync.Mutex
	pending map[types.LinkToken]pendingToken
	cron    *cron.Cron
	now     func() time.Time
}

// New creates a Linker. botUsername may be empty when unknown; deep links
// then degrade to the bare start parameter.
func New(botUsername string) *Linker {
	return &Linker{
		botUsername: botUsername,
		pending:     make(map[types.LinkToken]pendingToken),
		cron:        cron.New(),
		now:         time.Now,
	}
}

// Start schedules the periodic sweep of expired tokens.
func (l *Linker) Start() error {
	_, err := l.cron.AddFunc("@every 5m", func() {
		if n := l.sweep(); n > 0 {
			slog.Debug("expired link tokens removed", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule token sweep: %w", err)
	}
	l.cron.Start()
	return nil
}

// Stop stops the sweep ticker.
func (l *Linker) Stop() {
	l.cron.Stop()
}

// Generate issues a new token and returns it with its deep link URL.
func (l *Linker) Generate() (types.LinkToken, string) {
	token := types.NewLinkToken()

	l.mu.Lock()
	l.pending[token] = pendingToken{createdAt: l.now()}
	l.mu.Unlock()

	if l.botUsername != "" {
		return token, fmt.Sprintf("https://t.me/%s?start=%s", l.botUsername, token)
	}
	return token, fmt.Sprintf("start=%s", token)
}

// Validate checks that a token exists and has not expired, without
// consuming it.
func (l *Linker) Validate(token types.LinkToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending, ok := l.pending[token]
	if !ok {
		return ErrInvalidToken
	}
	if l.now().Sub(pending.createdAt) > tokenTTL {
		delete(l.pending, token)
		return ErrTokenExpired
	}
	return nil
}

// Consume validates and removes a token. Single use.
func (l *Linker) Consume(token types.LinkToken) error {
	if err := l.Validate(token); err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.pending, token)
	l.mu.Unlock()
	return nil
}

// sweep removes expired tokens and returns how many were dropped.
func (l *Linker) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for token, pending := range l.pending {
		if l.now().Sub(pending.createdAt) > tokenTTL {
			delete(l.pending, token)
			removed++
		}
	}
	return removed
}
