package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, statusCmd)
}

// readPID reads the PID from the taskrelay.pid file and validates the
// process exists by sending signal 0.
func readPID(dataDir string) (int, error) {
	pidPath := filepath.Join(dataDir, "taskrelay.pid")

	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no running daemon (PID file not found)")
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, fmt.Errorf("no running daemon (process %d not found)", pid)
	}

	return pid, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		pid, err := readPID(cfg.DataDir)
		if err != nil {
			return err
		}

		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process: %w", err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Sent SIGTERM to daemon (PID %d).\n", pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and Telegram link status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		if pid, err := readPID(cfg.DataDir); err == nil {
			fmt.Fprintf(os.Stdout, "Daemon:   running (PID %d)\n", pid)
		} else {
			fmt.Fprintln(os.Stdout, "Daemon:   not running")
		}

		if cfg.Telegram.Token != "" {
			fmt.Fprintln(os.Stdout, "Bot:      configured")
		} else {
			fmt.Fprintln(os.Stdout, "Bot:      no token")
		}

		if cfg.Linked() {
			fmt.Fprintf(os.Stdout, "Link:     @%s (chat %d)\n", cfg.Telegram.Username, cfg.Telegram.ChatID)
			fmt.Fprintf(os.Stdout, "Notify:   enabled=%v on_task_done=%v include_summary=%v\n",
				cfg.Telegram.NotificationsEnabled, cfg.Telegram.NotifyOnTaskDone, cfg.Telegram.IncludeSummary)
			fmt.Fprintf(os.Stdout, "Stream:   enabled=%v\n", cfg.Telegram.StreamEnabled)
		} else {
			fmt.Fprintln(os.Stdout, "Link:     not linked")
		}
		return nil
	},
}
