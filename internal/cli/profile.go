package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/hub"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/spf13/cobra"
)

// NewProfileCmd creates the profile command with subcommands.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Activate and sync hub profiles",
		Long: `Activate, deactivate and sync hub profiles.

At most one profile per hub is active. Activating a profile installs its
bundles and deactivates the previously active profile of the same hub.`,
	}

	cmd.AddCommand(
		newProfileActivateCmd(),
		newProfileDeactivateCmd(),
		newProfileActiveCmd(),
		newProfileSyncCmd(),
	)

	return cmd
}

func newProfileActivateCmd() *cobra.Command {
	var noInstall bool

	cmd := &cobra.Command{
		Use:   "activate HUB PROFILE",
		Short: "Activate a profile",
		Args:  cobra.ExactArgs(setCommandArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileActivate(cmd, args[0], args[1], hub.ActivateOptions{InstallBundles: !noInstall})
		},
	}

	cmd.Flags().BoolVar(&noInstall, "no-install", false, "Only record the activation; do not install bundles")

	return cmd
}

func newProfileDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate HUB PROFILE",
		Short: "Deactivate a profile and uninstall its bundles",
		Args:  cobra.ExactArgs(setCommandArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileDeactivate(cmd, args[0], args[1])
		},
	}
}

func newProfileActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active [HUB]",
		Short: "Show active profiles",
		Long:  "Show the active profile of one hub, or the active profiles of every hub",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileActive(cmd, args)
		},
	}
}

func newProfileSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync HUB PROFILE",
		Short: "Sync an active profile with its hub",
		Long: `Apply the bundles added, updated or removed in the hub since the profile was
activated or last synced, and record the sync in the history.`,
		Args: cobra.ExactArgs(setCommandArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileSync(cmd, args[0], args[1])
		},
	}
}

func runProfileActivate(cmd *cobra.Command, hubID, profileID string, opts hub.ActivateOptions) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.hubs.ActivateProfile(cmd.Context(), hubID, profileID, opts)
	if err != nil {
		return err
	}
	if useJSON(a.cfg) {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	if !result.Success {
		return fmt.Errorf("failed to activate profile %s/%s: %s", hubID, profileID, result.Error)
	}
	if useJSON(a.cfg) {
		return nil
	}

	out := cmd.OutOrStdout()
	if result.Deactivated != "" {
		_, _ = fmt.Fprintf(out, "Deactivated %s/%s\n", hubID, result.Deactivated)
	}
	_, _ = fmt.Fprintf(out, "Activated %s/%s", hubID, profileID)
	if len(result.Installed) > 0 {
		_, _ = fmt.Fprintf(out, ": installed %s", strings.Join(result.Installed, ", "))
	}
	_, _ = fmt.Fprintln(out)
	return nil
}

func runProfileDeactivate(cmd *cobra.Command, hubID, profileID string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.hubs.DeactivateProfile(cmd.Context(), hubID, profileID)
	if err != nil {
		return err
	}
	logger.Success("Profile deactivated", logger.Fields{"hub": hubID, "profile": profileID, "removed": len(removed)})
	return nil
}

func runProfileActive(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var states []model.ProfileActivationState
	if len(args) == 1 {
		st, err := a.hubs.GetActiveProfile(args[0])
		if err != nil {
			return err
		}
		if st != nil {
			states = append(states, *st)
		}
	} else {
		states, err = a.hubs.ListAllActiveProfiles()
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, states)
	}
	if len(states) == 0 {
		_, _ = fmt.Fprintln(out, "No active profiles")
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "HUB\tPROFILE\tBUNDLES\tACTIVATED")
	for _, st := range states {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%d\t%s\n", st.HubID, st.ProfileID, len(st.SyncedBundles), st.ActivatedAt.Format("2006-01-02 15:04"))
	}
	return tabWriter.Flush()
}

func runProfileSync(cmd *cobra.Command, hubID, profileID string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.hubs.SyncProfile(cmd.Context(), hubID, profileID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, result)
	}
	if result.Changes.Empty() {
		_, _ = fmt.Fprintf(out, "%s/%s is up to date\n", hubID, profileID)
		return nil
	}
	printChanges(out, result.Changes)
	return nil
}

func printChanges(out io.Writer, c model.Changes) {
	for _, b := range c.Added {
		_, _ = fmt.Fprintf(out, "+ %s %s\n", b.ID, b.Version)
	}
	for _, u := range c.Updated {
		_, _ = fmt.Fprintf(out, "~ %s %s -> %s\n", u.ID, u.OldVersion, u.NewVersion)
	}
	for _, id := range c.Removed {
		_, _ = fmt.Fprintf(out, "- %s\n", id)
	}
}
