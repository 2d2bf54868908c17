package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abelzeko/alerts-sync/internal/usecases"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single sync run and exit",
		Long: `Execute a single sync run: refresh the local working copy, fetch the
alerts published after the newest known alert, and commit and push them
when there are any.

Example:
  alertsync run
  alertsync run --config alertsync.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, rootOpts)
		},
	}
	return cmd
}

func runOnce(cmd *cobra.Command, opts *RootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if a.cfg.Server.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.RunTimeout)
		defer cancel()
	}

	run, err := a.sync.Run(ctx)
	fmt.Fprint(cmd.OutOrStdout(), usecases.FormatRun(run))
	return err
}
