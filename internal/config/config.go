package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Listen   string `json:"listen"`
	Relay    struct {
		DebounceMS         int    `json:"debounce_ms"`
		MaxMessageLength   int    `json:"max_message_length"`
		LengthMargin       int    `json:"length_margin"`
		ThinkingPreviewLen int    `json:"thinking_preview_len"`
		CompletionMarker   string `json:"completion_marker"`
	} `json:"relay"`
	Telegram struct {
		Token       string `json:"token"`
		BotUsername string `json:"bot_username"`

		// Link state, written when an account links or unlinks.
		ChatID   int64  `json:"chat_id,omitempty"`
		UserID   int64  `json:"user_id,omitempty"`
		Username string `json:"username,omitempty"`

		NotificationsEnabled bool `json:"notifications_enabled"`
		NotifyOnTaskDone     bool `json:"notify_on_task_done"`
		IncludeSummary       bool `json:"include_summary"`
		StreamEnabled        bool `json:"stream_enabled"`
	} `json:"telegram"`
}

// Linked reports whether a Telegram account is linked.
func (c Config) Linked() bool {
	return c.Telegram.ChatID != 0
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".taskrelay"),
		LogLevel: "info",
		Listen:   ":8090",
	}
	cfg.Relay.DebounceMS = 500
	cfg.Relay.MaxMessageLength = 4096
	cfg.Relay.LengthMargin = 200
	cfg.Relay.ThinkingPreviewLen = 200
	cfg.Relay.CompletionMarker = "✅ done"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := write(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if username := os.Getenv("TELEGRAM_BOT_USERNAME"); username != "" {
		cfg.Telegram.BotUsername = username
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}

	return cfg, nil
}

// write marshals the config and writes it atomically.
func write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Store holds the live config behind a lock so the webhook handlers, the
// relay manager and the notifier can share it. Mutations are persisted to
// the backing file.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewStore wraps an already-loaded config.
func NewStore(path string, cfg *Config) *Store {
	return &Store{path: path, cfg: cfg}
}

// Get returns a copy of the current config.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Update applies fn to the config and saves the result to disk.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
	return write(s.path, s.cfg)
}
