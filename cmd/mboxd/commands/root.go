// Package commands implements the CLI commands for mboxd.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/rarestuff/mboxd/internal/logger"
	"github.com/rarestuff/mboxd/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mboxd",
	Short: "mboxd - mbox mailbox lock manager",
	Long: `mboxd manages the composite locking protocol for mbox mailbox files.

It acquires mailbox locks using an ordered combination of backends
(dotlock, fcntl, flock, lockf) so that every program touching the same
spool stays consistent, whatever locking primitives those programs use.

Use "mboxd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return cfgFile
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/mboxd/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(holdCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads the configuration honoring --config and initializes
// logging from it. Commands that operate on mailboxes call this first.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}
