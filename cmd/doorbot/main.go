// Command doorbot polls the cafe door status endpoint and tells Telegram
// subscribers when the door opens or closes.
//
// Usage:
//
//	doorbot -c config.yaml                     # run the bot (same as "run")
//	doorbot status                             # one-shot fetch
//	doorbot subscribers list|add|remove <id>   # manage subscribers offline
//	doorbot history -n 20                      # recent samples
//	doorbot validate -c config.yaml            # check a config file
package main

import (
	"fmt"
	"os"

	"doorbot/internal/app"
	"doorbot/internal/config"
	"doorbot/internal/storage"
	logx "doorbot/pkg/logx"

	"github.com/spf13/cobra"
)

// Set via -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "./config.json"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "doorbot",
		Short: "Telegram notifications for the cafe door",
		Long: `doorbot polls <url>/api/status and tells subscribed Telegram users
when the door opens or closes. Without a subcommand it runs the bot.`,
		SilenceUsage: true,
		RunE:         runBot,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to config file (JSON or YAML)")

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newSubscribersCmd(),
		newHistoryCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "doorbot %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// loadConfig reads and validates the config for offline subcommands,
// which never need a Telegram token.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg, false); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	sc, err := app.MapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, logx.NewConsole("WARN").With(logx.String("comp", "storage")))
}
