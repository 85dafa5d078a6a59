package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doorbot/internal/app"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 20 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot (default)",
		Long: `Run the bot until SIGINT or SIGTERM.

The Telegram token comes from telegram.token, DOORBOT_TELEGRAM_TOKEN or
TELEGRAM_BOT_TOKEN. Startup fails without one.`,
		Args: cobra.NoArgs,
		RunE: runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(path)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	if err := a.Start(context.Background()); err != nil {
		stopApp(a, app.StopFatalError)
		return fmt.Errorf("fatal start: %w", err)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	stopApp(a, reason)

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			return fmt.Errorf("fatal: %w", err)
		}
	}
	return nil
}

func stopApp(a *app.App, reason app.StopReason) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = a.Stop(ctx, reason)
}
