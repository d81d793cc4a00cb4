package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/hub"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/spf13/cobra"
)

// NewHubCmd creates the hub command with subcommands.
func NewHubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Manage hubs",
		Long:  "Import, sync, inspect and delete hubs: shared documents of sources and profiles",
	}

	cmd.AddCommand(
		newHubImportCmd(),
		newHubSyncCmd(),
		newHubListCmd(),
		newHubInfoCmd(),
		newHubDeleteCmd(),
		newHubProfilesCmd(),
	)

	return cmd
}

func newHubImportCmd() *cobra.Command {
	var (
		refType string
		ref     string
		id      string
	)

	cmd := &cobra.Command{
		Use:   "import LOCATION",
		Short: "Import a hub",
		Long: `Import a hub from a GitHub repository (owner/name), a URL or a local path.

The reference type is inferred from LOCATION unless --type is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference := model.HubReference{
				Type:     model.HubReferenceType(refType),
				Location: args[0],
				Ref:      ref,
			}
			if reference.Type == "" {
				reference.Type = inferReferenceType(args[0])
			}
			return runHubImport(cmd, reference, id)
		},
	}

	cmd.Flags().StringVar(&refType, "type", "", "Reference type (github, url or local)")
	cmd.Flags().StringVar(&ref, "ref", "", "Git ref for github references (default main)")
	cmd.Flags().StringVar(&id, "id", "", "Hub id (defaults to the slugified hub name)")

	return cmd
}

func newHubSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync ID",
		Short: "Refetch a hub document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHubSync(cmd, args[0])
		},
	}
}

func newHubListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported hubs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHubList(cmd)
		},
	}
}

func newHubInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info ID",
		Short: "Show a hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHubInfo(cmd, args[0])
		},
	}
}

func newHubDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an imported hub",
		Long:  "Delete a hub and its activation states. Installed bundles are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runHubDelete(args[0])
		},
	}
}

func newHubProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [HUB]",
		Short: "List hub profiles",
		Long:  "List the profiles of one hub, or of every imported hub",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHubProfiles(cmd, args)
		},
	}
}

func inferReferenceType(location string) model.HubReferenceType {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return model.HubReferenceURL
	case strings.HasPrefix(location, "file://"):
		return model.HubReferenceLocal
	}
	if _, err := os.Stat(location); err == nil {
		return model.HubReferenceLocal
	}
	return model.HubReferenceGitHub
}

func runHubImport(cmd *cobra.Command, ref model.HubReference, id string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	hubID, err := a.hubs.ImportHub(cmd.Context(), ref, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported hub %s\n", hubID)
	return nil
}

func runHubSync(cmd *cobra.Command, id string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.hubs.SyncHub(cmd.Context(), id)
	if err != nil {
		return err
	}
	logger.Success("Hub synced", logger.Fields{"id": id, "profiles": len(info.Hub.Profiles)})
	return nil
}

func runHubList(cmd *cobra.Command) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	hubs, err := a.hubs.ListHubs()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, hubs)
	}
	if len(hubs) == 0 {
		_, _ = fmt.Fprintln(out, "No hubs imported")
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "ID\tNAME\tREFERENCE\tPROFILES\tLAST SYNC")
	for _, h := range hubs {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s:%s\t%d\t%s\n",
			h.ID, h.Hub.Metadata.Name, h.Reference.Type, h.Reference.Location, len(h.Hub.Profiles), h.LastSync.Format("2006-01-02 15:04"))
	}
	return tabWriter.Flush()
}

func runHubInfo(cmd *cobra.Command, id string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.hubs.GetHubInfo(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, info)
	}

	h := info.Hub
	_, _ = fmt.Fprintf(out, "Hub:         %s (%s)\n", h.Metadata.Name, info.ID)
	_, _ = fmt.Fprintf(out, "Description: %s\n", h.Metadata.Description)
	_, _ = fmt.Fprintf(out, "Maintainer:  %s\n", h.Metadata.Maintainer)
	_, _ = fmt.Fprintf(out, "Reference:   %s:%s\n", info.Reference.Type, info.Reference.Location)
	_, _ = fmt.Fprintf(out, "Last sync:   %s\n", info.LastSync.Format("2006-01-02 15:04:05"))

	_, _ = fmt.Fprintf(out, "\nSources (%d):\n", len(h.Sources))
	for _, s := range h.Sources {
		_, _ = fmt.Fprintf(out, "  %s: %s %s\n", s.ID, s.Type, s.URL)
	}
	_, _ = fmt.Fprintf(out, "\nProfiles (%d):\n", len(h.Profiles))
	for _, p := range h.Profiles {
		marker := ""
		if p.Active {
			marker = " [active]"
		}
		_, _ = fmt.Fprintf(out, "  %s: %s, %d bundles%s\n", p.ID, p.Name, len(p.Bundles), marker)
	}
	return nil
}

func runHubDelete(id string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.hubs.DeleteHub(id); err != nil {
		return err
	}
	logger.Success("Hub deleted", logger.Fields{"id": id})
	return nil
}

func runHubProfiles(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var profiles []hub.HubProfile
	if len(args) == 1 {
		hubProfiles, err := a.hubs.ListProfilesFromHub(args[0])
		if err != nil {
			return err
		}
		for _, p := range hubProfiles {
			profiles = append(profiles, hub.HubProfile{HubID: args[0], Profile: p})
		}
	} else {
		profiles, err = a.hubs.ListAllHubProfiles()
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, profiles)
	}
	if len(profiles) == 0 {
		_, _ = fmt.Fprintln(out, "No profiles found")
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "HUB\tPROFILE\tNAME\tBUNDLES\tACTIVE")
	for _, hp := range profiles {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%d\t%t\n", hp.HubID, hp.Profile.ID, hp.Profile.Name, len(hp.Profile.Bundles), hp.Profile.Active)
	}
	return tabWriter.Flush()
}
