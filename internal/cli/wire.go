package cli

import (
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/abelzeko/alerts-sync/internal/config"
	"github.com/abelzeko/alerts-sync/internal/integration"
	"github.com/abelzeko/alerts-sync/internal/metrics"
	"github.com/abelzeko/alerts-sync/internal/repository"
	"github.com/abelzeko/alerts-sync/internal/usecases"
)

// app bundles the components shared by every command
type app struct {
	cfg     config.Config
	sync    *usecases.SyncUseCase
	ledger  *repository.SQLiteRunRepository // nil when the ledger is disabled
	metrics *metrics.Metrics
}

func newApp(opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Initialize dataset store
	store, err := repository.NewGitDatasetStore(repository.GitDatasetOptions{
		RemoteURL:   cfg.Dataset.RemoteURL,
		Branch:      cfg.Dataset.Branch,
		Dir:         cfg.Dataset.WorkDir,
		FileName:    cfg.Dataset.FileName,
		Depth:       cfg.Dataset.CloneDepth,
		AccessToken: cfg.Dataset.AccessToken,
		AuthorName:  cfg.Dataset.AuthorName,
		AuthorEmail: cfg.Dataset.AuthorEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dataset store: %v", err)
	}

	// Initialize feed client
	feed, err := integration.NewAlertFeed(integration.AlertFeedOptions{
		URL:       cfg.Feed.URL,
		Lang:      cfg.Feed.Lang,
		Mode:      cfg.Feed.Mode,
		ProxyURL:  cfg.Feed.ProxyURL,
		UserAgent: cfg.Feed.UserAgent,
		Timeout:   cfg.Feed.Timeout,
		Location:  loc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize alert feed: %v", err)
	}

	a := &app{cfg: cfg}

	// Optional collaborators stay untyped nil when disabled
	var runs repository.RunRepository
	if cfg.Ledger.Path != "" {
		a.ledger, err = repository.NewSQLiteRunRepository(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize run ledger: %v", err)
		}
		runs = a.ledger
	} else {
		log.Println("Run ledger disabled")
	}

	var notifier integration.Notifier
	if cfg.Telegram.ChatID != 0 {
		tn, err := integration.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint, cfg.Telegram.ChatID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize notifier: %v", err)
		}
		notifier = tn
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	a.sync = usecases.NewSyncUseCase(store, feed, runs, notifier, a.metrics, usecases.SyncOptions{
		Location:   loc,
		RunTimeout: cfg.Server.RunTimeout,
		Verbose:    opts.Verbose,
	})
	log.Printf("Syncing %s with %s", store.Location(), feed.Endpoint())
	return a, nil
}

// Close releases the run ledger
func (a *app) Close() {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.Close(); err != nil {
		log.Printf("Error closing run ledger: %v", err)
	}
}
