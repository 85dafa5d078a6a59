package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent door samples, oldest first",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().IntP("count", "n", 20, "number of samples")
	cmd.Flags().Bool("json", false, "print samples as a JSON array")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("count")
	if n <= 0 {
		return fmt.Errorf("-n must be > 0")
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	samples, err := st.History().Recent(cmd.Context(), n)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(samples)
	}
	for _, s := range samples {
		fmt.Fprintf(out, "%s  %s\n", s.Timestamp.UTC().Format(time.RFC3339), s.Status.Upper())
	}
	total, err := st.History().Count(cmd.Context())
	if err == nil {
		fmt.Fprintf(out, "(%d of %d samples)\n", len(samples), total)
	}
	return nil
}
