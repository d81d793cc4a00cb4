package cli

import (
	"fmt"
	"sort"

	"github.com/glorpus-work/promptreg/pkg/lockfile"
	"github.com/spf13/cobra"
)

type bundleDrift struct {
	BundleID string                  `json:"bundleId"`
	Files    []lockfile.ModifiedFile `json:"files"`
}

// NewLockfileCmd creates the lockfile command with subcommands.
func NewLockfileCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "lockfile",
		Short: "Inspect the repository lockfile",
		Long:  "Validate the repository lockfile and detect drift of installed repository files",
	}
	cmd.PersistentFlags().StringVar(&root, "root", "", "Repository root (defaults to config repository_root)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the lockfile",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runLockfileValidate(cmd, root)
			},
		},
		&cobra.Command{
			Use:   "drift [BUNDLE...]",
			Short: "Report modified or missing repository files",
			Long: `Compare the checksums recorded in the lockfile with the files on disk and list
every file that was modified or deleted since installation.`,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLockfileDrift(cmd, root, args)
			},
		},
	)

	return cmd
}

func loadLockfileManager(rootFlag string) (*lockfile.Manager, bool, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, false, err
	}
	root, err := repositoryRoot(cfg, rootFlag)
	if err != nil {
		return nil, false, err
	}
	m, err := newLockfileProvider().Get(root)
	if err != nil {
		return nil, false, err
	}
	return m, useJSON(cfg), nil
}

func runLockfileValidate(cmd *cobra.Command, rootFlag string) error {
	m, asJSON, err := loadLockfileManager(rootFlag)
	if err != nil {
		return err
	}

	result := m.Validate()
	if asJSON {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		printValidation(cmd, m.Path(), result)
	}
	if !result.Valid {
		return fmt.Errorf("lockfile %s failed validation", m.Path())
	}
	return nil
}

func runLockfileDrift(cmd *cobra.Command, rootFlag string, ids []string) error {
	m, asJSON, err := loadLockfileManager(rootFlag)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		installed, err := m.InstalledBundles()
		if err != nil {
			return err
		}
		for id := range installed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	var report []bundleDrift
	for _, id := range ids {
		files, err := m.DetectModifiedFiles(id)
		if err != nil {
			return fmt.Errorf("failed to check bundle '%s': %w", id, err)
		}
		if len(files) > 0 {
			report = append(report, bundleDrift{BundleID: id, Files: files})
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, report)
	}
	if len(report) == 0 {
		_, _ = fmt.Fprintln(out, "No drift detected")
		return nil
	}

	tabWriter := newTabWriter(out)
	_, _ = fmt.Fprintln(tabWriter, "BUNDLE\tFILE\tSTATE")
	for _, d := range report {
		for _, f := range d.Files {
			_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\n", d.BundleID, f.Path, f.ModificationType)
		}
	}
	return tabWriter.Flush()
}
