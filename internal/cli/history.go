package cli

import (
	"fmt"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/history"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command with subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and roll back profile syncs",
	}

	cmd.AddCommand(
		newHistoryShowCmd(),
		newHistoryRollbackCmd(),
		newHistoryClearCmd(),
	)

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var (
		limit   int
		entryID string
	)

	cmd := &cobra.Command{
		Use:   "show HUB PROFILE",
		Short: "Show the sync history of a profile",
		Long:  "List the sync history of a profile, newest first, or show one entry in detail with --entry",
		Args:  cobra.ExactArgs(setCommandArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, args[0], args[1], entryID, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", DefaultHistoryLimit, "Maximum number of entries to list (0 = all)")
	cmd.Flags().StringVar(&entryID, "entry", "", "Show the entry with this id")

	return cmd
}

func newHistoryRollbackCmd() *cobra.Command {
	var noReinstall bool

	cmd := &cobra.Command{
		Use:   "rollback HUB PROFILE ENTRY",
		Short: "Restore the bundles a profile had before a sync",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryRollback(cmd, args[0], args[1], args[2], history.RollbackOptions{Reinstall: !noReinstall})
		},
	}

	cmd.Flags().BoolVar(&noReinstall, "no-reinstall", false, "Only rewrite the activation state; do not install or remove bundles")

	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear HUB PROFILE",
		Short: "Delete the sync history of a profile",
		Args:  cobra.ExactArgs(setCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			return runHistoryClear(args[0], args[1])
		},
	}
}

func runHistoryShow(cmd *cobra.Command, hubID, profileID, entryID string, limit int) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if entryID != "" {
		entry, err := a.history.GetEntry(hubID, profileID, entryID)
		if err != nil {
			return err
		}
		if useJSON(a.cfg) {
			return writeJSON(out, entry)
		}
		_, _ = fmt.Fprintln(out, history.FormatHistoryEntry(*entry))
		return nil
	}

	entries, err := a.history.GetHistory(hubID, profileID, limit)
	if err != nil {
		return err
	}
	if useJSON(a.cfg) {
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(out, "No history for %s/%s\n", hubID, profileID)
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "ENTRY\tSYNC\tCHANGES")
	for _, item := range history.QuickPickItems(entries) {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\n", item.Entry.ID, item.Label, item.Description)
	}
	return tabWriter.Flush()
}

func runHistoryRollback(cmd *cobra.Command, hubID, profileID, entryID string, opts history.RollbackOptions) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.history.GetEntry(hubID, profileID, entryID)
	if err != nil {
		return err
	}
	rollback, err := a.history.RollbackToEntry(cmd.Context(), hubID, profileID, *entry, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, rollback)
	}
	_, _ = fmt.Fprintln(out, history.FormatHistoryEntry(*rollback))
	return nil
}

func runHistoryClear(hubID, profileID string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.history.ClearHistory(hubID, profileID); err != nil {
		return err
	}
	logger.Success("History cleared", logger.Fields{"hub": hubID, "profile": profileID})
	return nil
}
