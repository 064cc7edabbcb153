package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/pkg/cache"
	"github.com/agpm-dev/agpm/pkg/config"
	"github.com/agpm-dev/agpm/pkg/installer"
	"github.com/agpm-dev/agpm/pkg/lockfile"
	"github.com/agpm-dev/agpm/pkg/logging"
	"github.com/agpm-dev/agpm/pkg/manifest"
	"github.com/agpm-dev/agpm/pkg/progress"
	"github.com/agpm-dev/agpm/pkg/template"
)

var (
	installForceRefresh   bool
	installMaxConcurrency int
	installOnly           []string
	installVerbose        bool
	installProjectDir     string
	installLogLevel       string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install resources pinned by the lockfile",
	Long: `Install every resource recorded in agpm.lock into the project tree.

Unchanged resources are skipped: a resource is reinstalled only when its
pinned commit, variant inputs, patches, or on-disk content changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall()
	},
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().BoolVar(&installForceRefresh, "force-refresh", false, "Recreate cached worktrees and reinstall everything")
	installCmd.Flags().IntVar(&installMaxConcurrency, "max-concurrency", 0, "Maximum parallel installs (default: 2x CPU count)")
	installCmd.Flags().StringSliceVar(&installOnly, "only", nil, "Restrict to resources matching these name patterns")
	installCmd.Flags().BoolVar(&installVerbose, "verbose", false, "Verbose output")
	installCmd.Flags().StringVar(&installProjectDir, "project", ".", "Project directory")
	installCmd.Flags().StringVar(&installLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func runInstall() error {
	projectDir, err := filepath.Abs(installProjectDir)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}

	cfg, err := config.LoadGlobal()
	if err != nil {
		return err
	}

	cacheDir, err := config.CacheDir(cfg)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(installLogLevel)
	if err != nil {
		return err
	}
	if _, err := logging.Setup(cacheDir, level); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: logging disabled:", err)
	}

	lockPath := filepath.Join(projectDir, manifest.LockFileName)
	lf, err := lockfile.Load(lockPath)
	if err != nil {
		return err
	}
	if len(lf.AllResources()) == 0 {
		fmt.Println("Nothing to install (empty lockfile)")
		return nil
	}

	// The previous lockfile doubles as the early-exit reference and the
	// cleanup baseline.
	oldLockfile, err := lockfile.Load(lockPath)
	if err != nil {
		oldLockfile = nil
	}

	projectManifest, err := manifest.LoadOptional(filepath.Join(projectDir, manifest.FileName))
	if err != nil {
		return err
	}
	privateManifest, err := manifest.LoadOptional(filepath.Join(projectDir, manifest.PrivateFileName))
	if err != nil {
		return err
	}

	c, err := cache.New(cacheDir)
	if err != nil {
		return err
	}

	maxConcurrency := installMaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = cfg.MaxConcurrency()
	}

	ic := &installer.Context{
		ProjectDir:         projectDir,
		Cache:              c,
		ForceRefresh:       installForceRefresh,
		OldLockfile:        oldLockfile,
		Lockfile:           lf,
		ProjectPatches:     projectManifest.Patches,
		PrivatePatches:     privateManifest.Patches,
		GitignoreMu:        &sync.Mutex{},
		ContextBuilder:     template.NewDefaultContextBuilder(projectDir),
		Renderer:           template.NewRenderer(projectDir, installer.DefaultMaxContentFileSize),
		MaxContentFileSize: installer.DefaultMaxContentFileSize,
		Verbose:            installVerbose,
	}

	result, err := installer.InstallResources(context.Background(), installer.Filter{Only: installOnly}, ic, maxConcurrency, progress.New())
	if err != nil {
		return err
	}

	// Stamp outcomes back into the lockfile so the saved file reflects
	// exactly what is on disk.
	for _, entry := range lf.AllResources() {
		id := entry.ID().String()
		if sum, ok := result.Checksums[id]; ok {
			entry.Checksum = sum
		}
		if ctxSum, ok := result.ContextChecksums[id]; ok {
			entry.ContextChecksum = ctxSum
		}
		if patches, ok := result.AppliedPatches[id]; ok {
			entry.AppliedPatches = patches
		}
	}

	if err := lf.Save(lockPath); err != nil {
		return err
	}

	cleaned, err := installer.CleanupRemovedArtifacts(projectDir, oldLockfile, lf)
	if err != nil {
		return err
	}

	slog.Info("install finished", "installed", result.InstalledCount, "cleaned", cleaned)
	color.New(color.FgGreen).Fprintf(os.Stdout, "✓ %d installed, %d unchanged", result.InstalledCount, len(result.Checksums)-result.InstalledCount)
	if cleaned > 0 {
		fmt.Printf(", %d stale file(s) removed", cleaned)
	}
	fmt.Println()
	return nil
}
