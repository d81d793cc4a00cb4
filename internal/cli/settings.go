package cli

import (
	"fmt"
	"os"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/spf13/cobra"
)

// NewSettingsCmd creates the settings command with subcommands.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Export and import registry settings",
		Long:  "Export the configured sources and scope preferences as JSON, or import them on another machine",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export [FILE]",
			Short: "Export settings (to stdout when FILE is omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSettingsExport(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Import settings",
			Long:  "Import sources and preferences. Sources with an already configured id are replaced.",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return runSettingsImport(args[0])
			},
		},
	)

	return cmd
}

func runSettingsExport(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := a.registry.ExportSettings()
	if err != nil {
		return fmt.Errorf("failed to export settings: %w", err)
	}
	if len(args) == 0 {
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := fsutil.WriteFileAtomic(args[0], data, fsutil.FileModeDefault); err != nil {
		return err
	}
	logger.Success("Settings exported", logger.Fields{"path": args[0]})
	return nil
}

func runSettingsImport(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.ImportSettings(data); err != nil {
		return fmt.Errorf("failed to import settings: %w", err)
	}

	prefs := a.registry.Preferences()
	a.cfg.Settings.DefaultScope = prefs.DefaultScope
	a.cfg.Settings.CommitMode = prefs.CommitMode
	if err := a.cfg.SaveConfig(a.configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	logger.Success("Settings imported", logger.Fields{"path": path, "sources": len(a.registry.Sources())})
	return nil
}
