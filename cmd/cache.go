package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/pkg/cache"
	"github.com/agpm-dev/agpm/pkg/config"
	"github.com/agpm-dev/agpm/pkg/fsutil"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the repository cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the cache location and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		dir, err := config.CacheDir(cfg)
		if err != nil {
			return err
		}
		size, err := fsutil.DirSize(dir)
		if err != nil {
			size = 0
		}
		fmt.Printf("Cache directory: %s\n", dir)
		fmt.Printf("Cache size: %.1f MB\n", float64(size)/(1024*1024))
		return nil
	},
}

var cacheCleanAll bool

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached worktrees, or the whole cache with --all",
	Long: `Remove every cached worktree and prune worktree metadata in all bare
repositories. Bare clones are kept; the next install recreates worktrees
from them without re-fetching.

With --all, the bare clones and lock files are removed too, so the next
install starts from a cold cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		dir, err := config.CacheDir(cfg)
		if err != nil {
			return err
		}
		c, err := cache.New(dir)
		if err != nil {
			return err
		}
		if err := c.CleanupAllWorktrees(context.Background()); err != nil {
			return err
		}
		if !cacheCleanAll {
			fmt.Println("Cache worktrees removed")
			return nil
		}
		for _, sub := range []string{"sources", ".locks"} {
			if err := fsutil.RemoveDirAll(filepath.Join(dir, sub)); err != nil {
				return err
			}
		}
		fmt.Println("Cache removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheCleanCmd)

	cacheCleanCmd.Flags().BoolVar(&cacheCleanAll, "all", false, "Also remove bare clones and lock files")
}
