// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/abelzeko/alerts-sync/internal/entities"
	"github.com/abelzeko/alerts-sync/internal/integration"
	"github.com/abelzeko/alerts-sync/internal/metrics"
	"github.com/abelzeko/alerts-sync/internal/repository"
)

// Stage names a step of the sync state machine
type Stage string

const (
	StageStart            Stage = "start"
	StageEnsureStore      Stage = "ensure_store"
	StageLoad             Stage = "load"
	StageResolveWatermark Stage = "resolve_watermark"
	StageFetch            Stage = "fetch"
	StageReconcile        Stage = "reconcile"
	StagePublish          Stage = "publish"
	StageDone             Stage = "done"
)

// StageError carries the originating error of a failed run and the stage it failed in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage a run failed in, or "" when err carries none
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// SyncOptions configures a SyncUseCase
type SyncOptions struct {
	Location   *time.Location // Zone of the dataset's date/time fields
	RunTimeout time.Duration  // Deadline of a single run, 0 for none
	Verbose    bool
}

// SyncUseCase sequences one incremental sync of the alert dataset
type SyncUseCase struct {
	store    repository.DatasetStore
	feed     integration.AlertSource
	runs     repository.RunRepository // optional
	notifier integration.Notifier     // optional
	metrics  *metrics.Metrics         // optional
	opts     SyncOptions

	group singleflight.Group
	now   func() time.Time
}

// NewSyncUseCase creates a new sync use case. runs, notifier and m may be nil.
func NewSyncUseCase(store repository.DatasetStore, feed integration.AlertSource, runs repository.RunRepository, notifier integration.Notifier, m *metrics.Metrics, opts SyncOptions) *SyncUseCase {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &SyncUseCase{
		store:    store,
		feed:     feed,
		runs:     runs,
		notifier: notifier,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
	}
}

// Run executes a sync run. Concurrent calls against the same dataset
// location share a single in-flight run and receive its result. The shared
// run is detached from the caller's cancellation and bounded by
// SyncOptions.RunTimeout instead; a caller whose ctx ends stops waiting and
// gets ctx.Err() while the run carries on for the others.
func (uc *SyncUseCase) Run(ctx context.Context) (*entities.SyncRun, error) {
	runCtx := context.WithoutCancel(ctx)
	ch := uc.group.DoChan(uc.store.Location(), func() (interface{}, error) {
		if uc.opts.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, uc.opts.RunTimeout)
			defer cancel()
		}
		return uc.run(runCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			log.Printf("Shared sync run result for %s", uc.store.Location())
		}
		run, _ := res.Val.(*entities.SyncRun)
		return run, res.Err
	case <-ctx.Done():
		log.Printf("Stopped waiting for sync run on %s: %v", uc.store.Location(), ctx.Err())
		return nil, ctx.Err()
	}
}

func (uc *SyncUseCase) run(ctx context.Context) (*entities.SyncRun, error) {
	run := &entities.SyncRun{
		ID:        uuid.NewString(),
		StartedAt: uc.now(),
		Stage:     string(StageStart),
	}
	log.Printf("Starting sync run %s", run.ID)

	err := uc.execute(ctx, run)

	run.FinishedAt = uc.now()
	if err != nil {
		run.Status = entities.RunFailed
		run.Error = err.Error()
		log.Printf("Sync run %s failed at %s: %v", run.ID, FailedStage(err), err)
	} else {
		run.Stage = string(StageDone)
		run.Status = entities.RunSucceeded
		log.Printf("Sync run %s finished in %s: %d new alerts", run.ID, run.Duration().Truncate(time.Millisecond), run.Added)
	}

	uc.record(run)
	return run, err
}

// execute walks the state machine. Each stage either advances or returns a
// StageError; there are no retries or compensating actions.
func (uc *SyncUseCase) execute(ctx context.Context, run *entities.SyncRun) error {
	fail := func(stage Stage, err error) error {
		run.Stage = string(stage)
		return &StageError{Stage: stage, Err: err}
	}
	enter := func(stage Stage) time.Time {
		run.Stage = string(stage)
		if uc.opts.Verbose {
			log.Printf("Entering stage %s", stage)
		}
		return uc.now()
	}
	leave := func(stage Stage, started time.Time) {
		if uc.opts.Verbose {
			log.Printf("Stage %s took %s", stage, uc.now().Sub(started).Truncate(time.Millisecond))
		}
	}

	// Fetch known alerts
	t := enter(StageEnsureStore)
	wc, err := uc.store.Ensure(ctx)
	if err != nil {
		return fail(StageEnsureStore, err)
	}
	leave(StageEnsureStore, t)

	t = enter(StageLoad)
	known, err := wc.Load()
	if err != nil {
		return fail(StageLoad, err)
	}
	run.Known = known.Len()
	log.Printf("Known alerts: %d", run.Known)
	leave(StageLoad, t)

	t = enter(StageResolveWatermark)
	watermark, err := ResolveWatermark(known, uc.opts.Location)
	if err != nil {
		return fail(StageResolveWatermark, err)
	}
	run.Watermark = watermark
	if watermark.IsZero() {
		log.Printf("Dataset is empty, fetching all alerts")
	} else {
		log.Printf("Fetching alerts from %s", watermark.Format(time.RFC3339))
	}
	leave(StageResolveWatermark, t)

	// Fetch new alerts
	t = enter(StageFetch)
	fetched, err := uc.feed.FetchAlerts(ctx, watermark, time.Time{})
	if err != nil {
		return fail(StageFetch, err)
	}
	run.Fetched = len(fetched)
	log.Printf("Latest alerts: %d", run.Fetched)
	leave(StageFetch, t)

	// Merge
	t = enter(StageReconcile)
	merged, added, err := Reconcile(known, fetched)
	if err != nil {
		return fail(StageReconcile, err)
	}
	run.Added = added
	log.Printf("Merged alerts: %d", merged.Len())
	log.Printf("New alerts: %d", added)
	leave(StageReconcile, t)

	if added <= 0 {
		return nil
	}

	// Commit and push changes
	t = enter(StagePublish)
	run.Message = CommitMessage(added)
	if err := wc.Publish(ctx, merged, run.Message); err != nil {
		run.Message = ""
		return fail(StagePublish, err)
	}
	run.Published = true
	leave(StagePublish, t)

	uc.notify(ctx, run.Message, NewAlerts(known, merged))
	return nil
}

func (uc *SyncUseCase) notify(ctx context.Context, message string, added []entities.Alert) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.NotifyPublished(ctx, message, added); err != nil {
		log.Printf("Warning: failed to send publish notification: %v", err)
	}
}

func (uc *SyncUseCase) record(run *entities.SyncRun) {
	uc.metrics.ObserveRun(run)
	if uc.runs == nil {
		return
	}
	if err := uc.runs.SaveRun(run); err != nil {
		log.Printf("Warning: failed to record sync run %s: %v", run.ID, err)
	}
}

// GetLastRun returns the most recent run from the ledger, or nil when there is none
func (uc *SyncUseCase) GetLastRun() (*entities.SyncRun, error) {
	if uc.runs == nil {
		return nil, nil
	}
	return uc.runs.GetLastRun()
}

// GetRecentRuns returns up to limit runs from the ledger, newest first
func (uc *SyncUseCase) GetRecentRuns(limit int) ([]entities.SyncRun, error) {
	if uc.runs == nil {
		return nil, nil
	}
	return uc.runs.GetRecentRuns(limit)
}

// FormatRun formats a run for display
func FormatRun(run *entities.SyncRun) string {
	if run == nil {
		return "No sync runs recorded yet."
	}

	status := "✅ Succeeded"
	if !run.Succeeded() {
		status = "❌ Failed at " + run.Stage
	}

	result := fmt.Sprintf("%s\n", status)
	result += fmt.Sprintf("🕒 Started: %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"), run.Duration().Truncate(time.Millisecond))
	result += fmt.Sprintf("📚 Known: %d, fetched: %d, added: %d\n", run.Known, run.Fetched, run.Added)
	if !run.Watermark.IsZero() {
		result += fmt.Sprintf("⏱ Watermark: %s\n", run.Watermark.Format(time.RFC3339))
	}
	if run.Published {
		result += fmt.Sprintf("📤 Published: %s\n", run.Message)
	}
	if run.Error != "" {
		result += fmt.Sprintf("⚠️ Error: %s\n", run.Error)
	}
	return result
}
