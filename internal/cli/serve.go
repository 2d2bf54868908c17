package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/abelzeko/alerts-sync/internal/api"
)

const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	SkipInitialRun bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger and run scheduled syncs",
		Long: `Serve the HTTP trigger. Every request to / executes a sync run; /status
reports the last recorded run and /metrics exposes Prometheus metrics.

When a schedule is configured (schedule in the config file or the
ALERTS_SCHEDULE environment variable) runs are also started by cron.

Example:
  PORT=8080 alertsync serve
  ALERTS_SCHEDULE="*/5 * * * *" alertsync serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipInitialRun, "skip-initial-run", false, "do not run a sync on startup")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trigger := api.NewHTTPTrigger(a.sync, a.cfg.Server.RunTimeout, a.metrics.Handler())
	srv := &http.Server{
		Addr:         a.cfg.Server.ListenAddress,
		Handler:      trigger.Routes(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	// Run immediately on startup
	if !opts.SkipInitialRun {
		go a.scheduledRun(ctx, "Initial")
	}

	c, err := a.newScheduler(ctx)
	if err != nil {
		return err
	}
	c.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err := <-errCh:
		<-c.Stop().Done()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	<-c.Stop().Done()
	log.Println("Stopped")
	return nil
}

// newScheduler sets up the cron jobs: scheduled runs when a schedule is
// configured, and daily pruning of the run ledger when retention is set.
func (a *app) newScheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()

	if a.cfg.Schedule != "" {
		if _, err := c.AddFunc(a.cfg.Schedule, func() { a.scheduledRun(ctx, "Scheduled") }); err != nil {
			return nil, fmt.Errorf("failed to set up cron job %q: %v", a.cfg.Schedule, err)
		}
		log.Printf("Sync has been scheduled with %q", a.cfg.Schedule)
	}

	if a.ledger != nil && a.cfg.Ledger.Retention > 0 {
		retention := a.cfg.Ledger.Retention
		if _, err := c.AddFunc("@daily", func() {
			n, err := a.ledger.PruneRuns(time.Now().Add(-retention))
			if err != nil {
				log.Printf("Run ledger pruning failed: %v", err)
				return
			}
			log.Printf("Pruned %d runs older than %s", n, retention)
		}); err != nil {
			return nil, fmt.Errorf("failed to set up pruning job: %v", err)
		}
	}

	return c, nil
}

func (a *app) scheduledRun(ctx context.Context, kind string) {
	if ctx.Err() != nil {
		return
	}
	if a.cfg.Server.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.RunTimeout)
		defer cancel()
	}
	if _, err := a.sync.Run(ctx); err != nil {
		log.Printf("%s sync failed: %v", kind, err)
	}
}
