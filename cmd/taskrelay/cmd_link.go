package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(linkCmd, unlinkCmd)
}

// apiBase builds the daemon's base URL from the configured listen address.
func apiBase(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Generate a Telegram account-linking deep link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(apiBase(cfg.Listen) + "/api/telegram/link")
		if err != nil {
			return fmt.Errorf("contact daemon (is it running?): %w", err)
		}
		defer resp.Body.Close()

		var body struct {
			Token         string `json:"token"`
			DeepLink      string `json:"deep_link"`
			BotConfigured bool   `json:"bot_configured"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		if !body.BotConfigured {
			fmt.Fprintln(os.Stdout, "Warning: no bot token configured; the link cannot be completed.")
		}
		if strings.HasPrefix(body.DeepLink, "https://") {
			fmt.Fprintf(os.Stdout, "Open this link to connect your Telegram account:\n%s\n", body.DeepLink)
		} else {
			fmt.Fprintf(os.Stdout, "Send this to your bot to connect your account:\n/start %s\n", body.Token)
		}
		fmt.Fprintln(os.Stdout, "The link expires in 15 minutes and can be used once.")
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Disconnect the linked Telegram account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, apiBase(cfg.Listen)+"/api/telegram/unlink", nil)
		if err != nil {
			return err
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("contact daemon (is it running?): %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("unlink failed: status %d", resp.StatusCode)
		}
		fmt.Fprintln(os.Stdout, "Telegram account unlinked.")
		return nil
	},
}
