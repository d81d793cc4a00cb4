package cli

import (
	"fmt"

	"github.com/glorpus-work/promptreg/pkg/cache"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command with subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the download cache",
		Long:  "Inspect and clean the bundle archives downloaded from remote sources",
	}

	cmd.AddCommand(
		newCacheInfoCmd(),
		newCacheCleanCmd(),
	)

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display the size and file count of the cached archives per source",
		Args:  cobra.NoArgs,
		RunE:  runCacheInfo,
	}
}

func newCacheCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [SOURCE...]",
		Short: "Clean the cache",
		Long:  "Remove the cached archives of the given sources, or of all sources when none is given",
		RunE:  runCacheClean,
	}
}

func loadCacheManager() (*cache.Manager, bool, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, false, err
	}
	mgr, err := cache.NewManager(cfg.DownloadCacheDir())
	if err != nil {
		return nil, false, err
	}
	return mgr, useJSON(cfg), nil
}

func runCacheInfo(cmd *cobra.Command, _ []string) error {
	mgr, jsonOut, err := loadCacheManager()
	if err != nil {
		return err
	}
	info, err := mgr.GetInfo()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(out, info)
	}

	fmt.Fprintf(out, "Cache directory: %s\n", info.Directory)
	fmt.Fprintf(out, "Total: %s in %d files\n", cache.FormatBytes(info.TotalSize), info.TotalFiles)
	if len(info.Sources) == 0 {
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "\nSOURCE\tSIZE\tFILES")
	for _, s := range info.Sources {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.SourceID, cache.FormatBytes(s.Size), s.Files)
	}
	return w.Flush()
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	mgr, jsonOut, err := loadCacheManager()
	if err != nil {
		return err
	}
	result, err := mgr.Clean(cache.CleanOptions{Sources: args})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "Removed %d files, freed %s\n", result.FilesRemoved, cache.FormatBytes(result.TotalFreed))
	return nil
}
