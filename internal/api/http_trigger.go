// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

// SyncRunner is the part of the sync use case the trigger surfaces depend on
type SyncRunner interface {
	Run(ctx context.Context) (*entities.SyncRun, error)
	GetLastRun() (*entities.SyncRun, error)
}

// HTTPTrigger runs a sync on every request to its root path
type HTTPTrigger struct {
	runner     SyncRunner
	runTimeout time.Duration
	metrics    http.Handler
}

// NewHTTPTrigger creates the HTTP trigger. metricsHandler may be nil.
func NewHTTPTrigger(runner SyncRunner, runTimeout time.Duration, metricsHandler http.Handler) *HTTPTrigger {
	return &HTTPTrigger{
		runner:     runner,
		runTimeout: runTimeout,
		metrics:    metricsHandler,
	}
}

// Routes returns the trigger's request multiplexer
func (h *HTTPTrigger) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleSync)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}

// handleSync executes a full run and greets the caller when it succeeded
func (h *HTTPTrigger) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	log.Printf("Sync triggered by %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

	ctx := r.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	run, err := h.runner.Run(ctx)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "sync failed: %v\n", err)
		return
	}

	if run != nil {
		w.Header().Set("X-Alerts-Added", strconv.Itoa(run.Added))
	}
	fmt.Fprintf(w, "Hello %s!", greetingName(r))
}

func greetingName(r *http.Request) string {
	if name := r.URL.Query().Get("name"); name != "" {
		return name
	}
	if r.Method == http.MethodPost {
		if name := r.PostFormValue("name"); name != "" {
			return name
		}
		var body struct {
			Name string `json:"name"`
		}
		if r.Header.Get("Content-Type") == "application/json" && json.NewDecoder(r.Body).Decode(&body) == nil && body.Name != "" {
			return body.Name
		}
	}
	return "World"
}

type runStatus struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Known      int       `json:"known"`
	Fetched    int       `json:"fetched"`
	Added      int       `json:"added"`
	Published  bool      `json:"published"`
	Watermark  string    `json:"watermark,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// handleStatus reports the last recorded run
func (h *HTTPTrigger) handleStatus(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.GetLastRun()
	if err != nil {
		log.Printf("Error fetching last run: %v", err)
		http.Error(w, "failed to read run ledger", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "no sync runs recorded yet", http.StatusNotFound)
		return
	}

	status := runStatus{
		ID:         run.ID,
		Status:     run.Status,
		Stage:      run.Stage,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Known:      run.Known,
		Fetched:    run.Fetched,
		Added:      run.Added,
		Published:  run.Published,
		Message:    run.Message,
		Error:      run.Error,
	}
	if !run.Watermark.IsZero() {
		status.Watermark = run.Watermark.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("Error encoding status: %v", err)
	}
}
