package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agpm-dev/agpm/pkg/errors"
	"github.com/agpm-dev/agpm/pkg/version"
)

var (
	cfgFile     string
	versionFlag bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agpm",
	Short: "Package manager for AI-assistant resources",
	Long: `agpm installs agents, snippets, commands, scripts, hooks, and
MCP-server configs from Git sources into your project, reproducibly.

A declarative manifest names the sources and resources; the lockfile pins
exact commits and content checksums so every install is byte-identical.`,
	Run: func(cmd *cobra.Command, args []string) {
		if versionFlag {
			fmt.Println(version.GetVersion())
			os.Exit(0)
		}
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// The exit code reflects the error category: 2 for validation failures,
// 3 for possible deadlocks (lock timeouts), 1 for everything else.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var te *errors.TypedError
		if stderrors.As(err, &te) {
			switch te.Category {
			case errors.CategoryLockTimeout:
				os.Exit(3)
			case errors.CategoryValidation:
				os.Exit(2)
			}
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/agpm/agpm.yaml)")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "Show version information")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "Warning: cannot read config file:", err)
		}
	}
	viper.AutomaticEnv()
}
