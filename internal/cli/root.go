// Package cli holds the djwillex command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	AppName = "djwillex"
	Version = "0.4.0"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: "Multi-guild Discord music bot",
		Long: `djwillex plays music in Discord voice channels across many guilds at once.

Run "djwillex run" to start the bot. Settings are read from the environment
and from a .env file in the working directory.`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newAutoplaylistCmd())

	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
