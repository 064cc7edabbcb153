package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/pkg/lockfile"
	"github.com/agpm-dev/agpm/pkg/manifest"
)

var listProjectDir string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources pinned by the lockfile",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := filepath.Abs(listProjectDir)
		if err != nil {
			return fmt.Errorf("resolving project directory: %w", err)
		}

		lf, err := lockfile.Load(filepath.Join(projectDir, manifest.LockFileName))
		if err != nil {
			return err
		}

		entries := lf.AllResources()
		if len(entries) == 0 {
			fmt.Println("No resources in lockfile")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Name", "Type", "Source", "Version", "Commit", "Installed At")
		for _, r := range entries {
			commit := r.ResolvedCommit
			if len(commit) > 8 {
				commit = commit[:8]
			}
			if err := table.Append(r.Name, r.ResourceType.String(), r.Source, r.Version, commit, r.InstalledAt); err != nil {
				return fmt.Errorf("rendering table: %w", err)
			}
		}
		return table.Render()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listProjectDir, "project", ".", "Project directory")
}
