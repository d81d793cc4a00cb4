package cli

import (
	"bytes"
	"fmt"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/archive"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/registry"
	"github.com/spf13/cobra"
)

// NewBundleCmd creates the bundle command with subcommands.
func NewBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Search, install and remove bundles",
		Long:  "Search the merged catalog of every enabled source and manage installed bundles",
	}

	cmd.AddCommand(
		newBundleSearchCmd(),
		newBundleInstallCmd(),
		newBundleUninstallCmd(),
		newBundleListCmd(),
		newBundleMigrateCmd(),
		newBundlePackCmd(),
	)

	return cmd
}

func newBundleSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search for bundles",
		Long: `Search bundles across all enabled sources.

Matches the query against id, name, description, tags and author. Without a
query the whole merged catalog is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runBundleSearch(cmd, query)
		},
	}
}

func newBundleInstallCmd() *cobra.Command {
	var (
		scopeFlag  string
		version    string
		sourceID   string
		commitMode string
	)

	cmd := &cobra.Command{
		Use:   "install ID",
		Short: "Install a bundle",
		Long: `Install a bundle at user, workspace or repository scope.

Installing a bundle already present at another scope is refused; use
"bundle migrate" to move it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseScope(scopeFlag)
			if err != nil {
				return err
			}
			return runBundleInstall(cmd, args[0], registry.InstallOptions{
				Scope:      s,
				Version:    version,
				SourceID:   sourceID,
				CommitMode: model.CommitMode(commitMode),
			})
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Install scope (defaults to config default_scope)")
	cmd.Flags().StringVar(&version, "version", "", "Bundle version to install (defaults to the catalog version)")
	cmd.Flags().StringVar(&sourceID, "source", "", "Install from this source only")
	cmd.Flags().StringVar(&commitMode, "commit-mode", "", "Repository scope commit mode (commit or local-only)")

	return cmd
}

func newBundleUninstallCmd() *cobra.Command {
	var scopeFlag string

	cmd := &cobra.Command{
		Use:   "uninstall ID",
		Short: "Uninstall a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseScope(scopeFlag)
			if err != nil {
				return err
			}
			return runBundleUninstall(cmd, args[0], s)
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Scope to uninstall from (defaults to config default_scope)")

	return cmd
}

func newBundleListCmd() *cobra.Command {
	var scopeFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed bundles",
		Long:  "List installed bundles of one scope, or of every scope",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := parseScope(scopeFlag)
			if err != nil {
				return err
			}
			return runBundleList(cmd, s)
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Only list this scope")

	return cmd
}

func newBundleMigrateCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "migrate ID",
		Short: "Move an installed bundle to another scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromScope, err := parseScope(from)
			if err != nil {
				return err
			}
			toScope, err := parseScope(to)
			if err != nil {
				return err
			}
			return runBundleMigrate(cmd, args[0], fromScope, toScope)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Scope the bundle is installed at")
	cmd.Flags().StringVar(&to, "to", "", "Target scope")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func newBundlePackCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pack ID",
		Short: "Pack a bundle into a zip archive",
		Long: `Download a bundle from its source and write its content, including the
generated deployment manifest, to a zip archive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundlePack(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "file", "f", "", "Archive path (defaults to ID-VERSION.zip)")

	return cmd
}

func runBundleSearch(cmd *cobra.Command, query string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	bundles, err := a.registry.SearchBundles(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("failed to search bundles: %w", err)
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, bundles)
	}
	if len(bundles) == 0 {
		_, _ = fmt.Fprintln(out, "No bundles found")
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "ID\tVERSION\tSOURCE\tDESCRIPTION")
	for _, b := range bundles {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\n", b.ID, b.Version, b.SourceID, truncate(b.Description, MaxDescriptionLength))
	}
	return tabWriter.Flush()
}

func runBundleInstall(cmd *cobra.Command, id string, opts registry.InstallOptions) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.registry.InstallBundle(cmd.Context(), id, opts)
	if err != nil {
		return fmt.Errorf("failed to install bundle '%s': %w", id, err)
	}
	if result.Conflict != nil {
		return fmt.Errorf("%s; use 'bundle migrate %s --from %s --to %s' to move it",
			result.Conflict, id, result.Conflict.ExistingScope, result.Conflict.TargetScope)
	}

	rec := result.Installed
	if useJSON(a.cfg) {
		return writeJSON(cmd.OutOrStdout(), rec)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s at %s scope (%d files)\n", rec.BundleID, rec.Version, rec.Scope, len(rec.Files))
	return nil
}

func runBundleUninstall(cmd *cobra.Command, id string, s model.Scope) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if s == "" {
		s = a.registry.Preferences().DefaultScope
	}
	if err := a.registry.UninstallBundle(cmd.Context(), id, s); err != nil {
		return fmt.Errorf("failed to uninstall bundle '%s': %w", id, err)
	}
	logger.Success("Bundle uninstalled", logger.Fields{"id": id, "scope": string(s)})
	return nil
}

func runBundleList(cmd *cobra.Command, s model.Scope) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	installed, err := a.registry.Installed(s)
	if err != nil {
		return fmt.Errorf("failed to list installed bundles: %w", err)
	}

	out := cmd.OutOrStdout()
	if useJSON(a.cfg) {
		return writeJSON(out, installed)
	}
	if len(installed) == 0 {
		_, _ = fmt.Fprintln(out, "No bundles installed")
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "ID\tVERSION\tSCOPE\tSOURCE\tINSTALLED")
	for _, b := range installed {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\t%s\n", b.BundleID, b.Version, b.Scope, b.SourceID, b.InstalledAt.Format("2006-01-02 15:04"))
	}
	return tabWriter.Flush()
}

func runBundleMigrate(cmd *cobra.Command, id string, from, to model.Scope) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.registry.MigrateBundle(cmd.Context(), id, from, to)
	if !result.Success {
		if result.InstalledNowhere {
			return fmt.Errorf("bundle '%s' was removed from %s scope but could not be installed at %s scope: %w", id, from, to, result.Err)
		}
		return fmt.Errorf("failed to migrate bundle '%s': %w", id, result.Err)
	}
	logger.Success("Bundle migrated", logger.Fields{"id": id, "from": string(from), "to": string(to)})
	return nil
}

func runBundlePack(cmd *cobra.Command, id, output string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	bundle, err := a.registry.GetBundle(ctx, id)
	if err != nil {
		return err
	}
	src, err := a.registry.Adapter(bundle.SourceID)
	if err != nil {
		return err
	}
	arc, err := src.DownloadBundle(ctx, bundle)
	if err != nil {
		return fmt.Errorf("failed to download bundle '%s': %w", id, err)
	}

	var buf bytes.Buffer
	if err := archive.WriteZip(ctx, &buf, arc); err != nil {
		return fmt.Errorf("failed to pack bundle '%s': %w", id, err)
	}
	if output == "" {
		output = fmt.Sprintf("%s-%s.zip", bundle.ID, bundle.Version)
	}
	if err := fsutil.WriteFileAtomic(output, buf.Bytes(), fsutil.FileModeDefault); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Packed %s %s (%d files) to %s\n", bundle.ID, bundle.Version, len(arc.Entries), output)
	return nil
}
