package cli

import "github.com/spf13/cobra"

// NewRootCmd creates the promptreg command tree. The global flags are bound to
// the package variables read by loadConfig.
func NewRootCmd() *cobra.Command {
	var (
		configPath   string
		logLevel     string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "promptreg",
		Short: "A package manager for prompt bundles",
		Long: `promptreg installs versioned bundles of prompts, instructions, chat modes,
agents and skills from configurable sources:
- Sources: GitHub releases, HTTP catalogs, local directories, awesome-copilot and APM repositories
- Scopes: user, workspace and repository (tracked in a lockfile)
- Hubs: shared profiles of bundles that can be activated, synced and rolled back`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/promptreg/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (text, json)")

	ConfigPath = &configPath
	LogLevel = &logLevel
	OutputFormat = &outputFormat

	cmd.AddCommand(
		NewSourceCmd(),
		NewBundleCmd(),
		NewLockfileCmd(),
		NewHubCmd(),
		NewProfileCmd(),
		NewHistoryCmd(),
		NewSettingsCmd(),
		NewCacheCmd(),
		NewConfigCmd(),
		NewVersionCmd(),
	)

	return cmd
}
