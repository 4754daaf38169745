package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/taskrelay/internal/config"
	"github.com/user/taskrelay/internal/delivery"
	"github.com/user/taskrelay/internal/execlog"
	"github.com/user/taskrelay/internal/linker"
	"github.com/user/taskrelay/internal/relay"
	"github.com/user/taskrelay/internal/state"
	"github.com/user/taskrelay/internal/telegram"
	"github.com/user/taskrelay/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskrelay daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "taskrelay.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func relayOptions(cfg *config.Config) relay.Options {
	opts := relay.DefaultOptions()
	if cfg.Relay.DebounceMS > 0 {
		opts.Debounce = time.Duration(cfg.Relay.DebounceMS) * time.Millisecond
	}
	if cfg.Relay.MaxMessageLength > 0 {
		opts.MaxMessageLength = cfg.Relay.MaxMessageLength
	}
	if cfg.Relay.LengthMargin > 0 {
		opts.LengthMargin = cfg.Relay.LengthMargin
	}
	if cfg.Relay.ThinkingPreviewLen > 0 {
		opts.ThinkingPreviewLen = cfg.Relay.ThinkingPreviewLen
	}
	if cfg.Relay.CompletionMarker != "" {
		opts.CompletionMarker = cfg.Relay.CompletionMarker
	}
	return opts
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	cfgStore := config.NewStore(cfgPath, cfg)

	// Stores
	log, err := execlog.Open(filepath.Join(cfg.DataDir, "events.db"))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer log.Close()
	tasks := state.NewTaskStore(filepath.Join(cfg.DataDir, "tasks.json"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telegram client, when a bot token is configured. Without one the HTTP
	// API still runs: events can be ingested and link tokens generated, but
	// nothing is delivered.
	var (
		client   *telegram.Client
		commands *telegram.Commands
		notifier *telegram.Notifier
		sender   telegram.Sender
		manager  *relay.Manager
	)

	botUsername := cfg.Telegram.BotUsername
	if cfg.Telegram.Token != "" {
		client, err = telegram.NewClient(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram client: %w", err)
		}
		if client.Username() != "" {
			botUsername = client.Username()
		}
	}

	lk := linker.New(botUsername)
	if err := lk.Start(); err != nil {
		return fmt.Errorf("start linker: %w", err)
	}
	defer lk.Stop()

	channels := delivery.NewRegistry()
	if client != nil {
		channels.Register("telegram", client)
		ch, err := channels.Get("telegram")
		if err != nil {
			return fmt.Errorf("resolve delivery channel: %w", err)
		}

		manager = relay.NewManager(log, ch, relayOptions(cfg))
		defer manager.Shutdown()

		commands = telegram.NewCommands(ctx, cfgStore, lk, tasks, manager)
		notifier = telegram.NewNotifier(cfgStore, client)
		sender = client
	}

	srv := webhook.NewServer(cfgStore, lk, commands, sender, tasks, log, notifier)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv,
	}

	slog.Info("taskrelay started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"listen", cfg.Listen,
		"bot_configured", client != nil,
		"pid_file", pidPath,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if client != nil {
		g.Go(func() error {
			adapter := telegram.NewAdapter(client, commands)
			adapter.Start(ctx)
			return nil
		})
	}

	err = g.Wait()
	slog.Info("shutting down")
	return err
}
