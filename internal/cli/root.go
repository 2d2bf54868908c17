// Package cli wires the alerts-sync commands.
package cli

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/abelzeko/alerts-sync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the alertsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "alertsync",
		Short: "Keep a git-hosted CSV of alerts in sync with the alert history feed",
		Long: `alertsync appends alerts published by the alert history feed to a CSV
dataset kept in a git repository, committing and pushing only when new
alerts were found.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Configure logging
			log.SetOutput(os.Stdout)
			log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every stage transition")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewBotCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
