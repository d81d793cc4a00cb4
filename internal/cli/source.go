package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/spf13/cobra"
)

// NewSourceCmd creates the source command with subcommands.
func NewSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage bundle sources",
		Long:  "Add, remove, list, validate and sync the sources bundles are installed from",
	}

	cmd.AddCommand(
		newSourceAddCmd(),
		newSourceListCmd(),
		newSourceRemoveCmd(),
		newSourceValidateCmd(),
		newSourceSyncCmd(),
		newSourceWatchCmd(),
	)

	return cmd
}

func newSourceAddCmd() *cobra.Command {
	var (
		sourceType      string
		name            string
		priority        int
		branch          string
		collectionsPath string
		disabled        bool
	)

	cmd := &cobra.Command{
		Use:   "add ID URL",
		Short: "Add a new source",
		Long: `Add a new bundle source.

Supported types: ` + strings.Join(sourceTypeNames(), ", "),
		Args: cobra.ExactArgs(setCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSourceAdd(model.Source{
				ID:       args[0],
				Name:     name,
				Type:     model.SourceType(sourceType),
				URL:      args[1],
				Enabled:  !disabled,
				Priority: priority,
				Config: model.SourceConfig{
					Branch:          branch,
					CollectionsPath: collectionsPath,
				},
			})
		},
	}

	cmd.Flags().StringVar(&sourceType, "type", string(model.SourceTypeGitHub), "Source type")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the id)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Source priority (higher numbers win when bundle ids collide)")
	cmd.Flags().StringVar(&branch, "branch", "", "Git branch for git-hosted sources")
	cmd.Flags().StringVar(&collectionsPath, "collections-path", "", "Collections directory for awesome-copilot sources")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the source disabled")

	return cmd
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSourceList(cmd)
		},
	}
}

func newSourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSourceRemove(args[0])
		},
	}
}

func newSourceValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate ID",
		Short: "Validate a source",
		Long:  "Check that a source is reachable and lists at least one bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceValidate(cmd, args[0])
		},
	}
}

func newSourceSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [ID]",
		Short: "Refresh source catalogs",
		Long:  "Refresh the bundle catalog of one source, or of every enabled source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceSync(cmd, args)
		},
	}
}

func newSourceWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch local sources for changes",
		Long:  "Watch the directories of local sources and report catalog invalidations until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSourceWatch(cmd)
		},
	}
}

func sourceTypeNames() []string {
	types := model.SourceTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

func runSourceAdd(s model.Source) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if s.Name == "" {
		s.Name = s.ID
	}
	if err := a.registry.AddSource(s); err != nil {
		return fmt.Errorf("failed to add source '%s': %w", s.ID, err)
	}
	logger.Success("Source added", logger.Fields{"id": s.ID, "type": string(s.Type)})
	return nil
}

func runSourceList(cmd *cobra.Command) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sources := a.registry.Sources()
	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, sources)
	}
	if len(sources) == 0 {
		_, _ = fmt.Fprintln(out, "No sources configured")
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "ID\tTYPE\tURL\tPRIORITY\tENABLED")
	for _, s := range sources {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%d\t%t\n", s.ID, s.Type, s.URL, s.Priority, s.Enabled)
	}
	return tabWriter.Flush()
}

func runSourceRemove(id string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.RemoveSource(id); err != nil {
		return fmt.Errorf("failed to remove source '%s': %w", id, err)
	}
	logger.Success("Source removed", logger.Fields{"id": id})
	return nil
}

func runSourceValidate(cmd *cobra.Command, id string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.registry.ValidateSource(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printValidation(cmd, id, result)
	}
	if !result.Valid {
		return fmt.Errorf("source '%s' failed validation", id)
	}
	return nil
}

func printValidation(cmd *cobra.Command, subject string, result model.ValidationResult) {
	out := cmd.OutOrStdout()
	if result.Valid {
		_, _ = fmt.Fprintf(out, "%s: valid", subject)
		if result.BundlesFound > 0 {
			_, _ = fmt.Fprintf(out, " (%d bundles)", result.BundlesFound)
		}
		_, _ = fmt.Fprintln(out)
		return
	}
	_, _ = fmt.Fprintf(out, "%s: invalid\n", subject)
	for _, e := range result.Errors {
		_, _ = fmt.Fprintf(out, "  - %s\n", e)
	}
}

func runSourceSync(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		count, err := a.registry.SyncSource(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "%s: %d bundles\n", args[0], count)
		return nil
	}

	counts, err := a.registry.SyncAll(cmd.Context())
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, _ = fmt.Fprintf(out, "%s: %d bundles\n", id, counts[id])
	}
	return err
}

func runSourceWatch(cmd *cobra.Command) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Watching local sources, press Ctrl+C to stop")
	return a.registry.WatchLocalSources(cmd.Context(), func(sourceID string) {
		_, _ = fmt.Fprintf(out, "%s: catalog changed\n", sourceID)
	})
}
