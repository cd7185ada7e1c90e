// Package commands implements the stashfs CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	envFile string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "stashfs",
	Short: "StashFS - Multi-tenant content store",
	Long: `StashFS is a multi-tenant content store with per-repository quotas,
TTL expiry, and a sandboxed read-only command surface. Bytes live on the
local filesystem; metadata lives in an in-memory catalog made durable by a
write-ahead log and periodic snapshots.

Use "stashfs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file loaded before reading the environment")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}
