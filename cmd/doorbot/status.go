package main

import (
	"context"
	"fmt"
	"time"

	"doorbot/internal/door"
	logx "doorbot/pkg/logx"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch the door status once",
		Long: `Fetch the door status once and print it. The reason is printed when
the result is unknown. Nothing is written to history.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cmd.Flags().String("url", "", "status endpoint base URL (overrides door.url)")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url := cfg.Door.URL
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		url = u
	}
	timeout, err := cfg.Door.FetchTimeoutOrDefault()
	if err != nil {
		return err
	}
	f := door.New(url, door.WithTimeout(timeout), door.WithLogger(logx.Nop()))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout+time.Second)
	defer cancel()
	st, ferr := f.FetchDetail(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", st)
	if ferr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "  reason: %v\n", ferr)
	}
	return nil
}
