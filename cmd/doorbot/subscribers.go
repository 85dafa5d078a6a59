package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSubscribersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscribers",
		Aliases: []string{"subs"},
		Short:   "List or edit subscribers without the bot running",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print subscriber ids, one per line",
			Args:  cobra.NoArgs,
			RunE:  runSubscribersList,
		},
		&cobra.Command{
			Use:   "add <id>",
			Short: "Add a subscriber",
			Args:  cobra.ExactArgs(1),
			RunE:  runSubscribersEdit(true),
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Remove a subscriber",
			Args:  cobra.ExactArgs(1),
			RunE:  runSubscribersEdit(false),
		},
	)
	return cmd
}

func runSubscribersList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.Subscribers().List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func runSubscribersEdit(add bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		var changed bool
		if add {
			changed, err = st.Subscribers().Add(cmd.Context(), id)
		} else {
			changed, err = st.Subscribers().Remove(cmd.Context(), id)
		}
		if err != nil {
			return err
		}
		verb := map[bool]string{true: "added", false: "removed"}[add]
		if !changed {
			verb = "unchanged"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", id, verb)
		return nil
	}
}
