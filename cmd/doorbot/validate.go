package main

import (
	"fmt"

	"doorbot/internal/config"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a config file (plus the environment overlay) without starting
the bot.

Exit codes:
  0 - config is valid
  1 - config is invalid (error details printed to stderr)`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
	cmd.Flags().Bool("offline", false, "do not require a Telegram token")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	offline, _ := cmd.Flags().GetBool("offline")

	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Validate(cfg, !offline); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Door URL:      %s\n", cfg.Door.URL)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.Door.PollInterval)
	fmt.Fprintf(out, "  Storage:       %s\n", cfg.Storage.Driver)
	fmt.Fprintf(out, "  Metrics:       %v\n", cfg.Metrics.Enabled)
	fmt.Fprintf(out, "  NATS relay:    %v\n", cfg.NATS.Enabled)
	return nil
}
