package repository

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/alerts-sync/internal/entities"
	_ "github.com/mattn/go-sqlite3"
)

// RunRepository defines the interface for sync run ledger operations
type RunRepository interface {
	SaveRun(run *entities.SyncRun) error
	GetLastRun() (*entities.SyncRun, error)
	GetRecentRuns(limit int) ([]entities.SyncRun, error)
	Close() error
}

// SQLiteRunRepository implements RunRepository using SQLite
type SQLiteRunRepository struct {
	db     *sql.DB
	DBPath string
}

// NewSQLiteRunRepository creates and initializes a new SQLite run ledger
func NewSQLiteRunRepository(dbPath string) (*SQLiteRunRepository, error) {
	if dbPath == "" {
		// Set default path if not specified
		dbPath = filepath.Join("data", "runs.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	log.Printf("Opening run ledger at %s", dbPath)
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		known INTEGER NOT NULL DEFAULT 0,
		fetched INTEGER NOT NULL DEFAULT 0,
		added INTEGER NOT NULL DEFAULT 0,
		published INTEGER NOT NULL DEFAULT 0,
		watermark DATETIME,
		message TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON sync_runs(started_at);`

	_, err = db.Exec(createTableSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &SQLiteRunRepository{
		db:     db,
		DBPath: dbPath,
	}, nil
}

// Close closes the database connection
func (r *SQLiteRunRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveRun stores a run, replacing any earlier record with the same id
func (r *SQLiteRunRepository) SaveRun(run *entities.SyncRun) error {
	var watermark sql.NullTime
	if !run.Watermark.IsZero() {
		watermark = sql.NullTime{Time: run.Watermark.UTC(), Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO sync_runs(id, started_at, finished_at, stage, status, known, fetched, added, published, watermark, message, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		finished_at=excluded.finished_at,
		stage=excluded.stage,
		status=excluded.status,
		known=excluded.known,
		fetched=excluded.fetched,
		added=excluded.added,
		published=excluded.published,
		watermark=excluded.watermark,
		message=excluded.message,
		error=excluded.error
	`,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Stage,
		run.Status,
		run.Known,
		run.Fetched,
		run.Added,
		run.Published,
		watermark,
		run.Message,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %v", run.ID, err)
	}
	return nil
}

// GetLastRun returns the most recently started run, or nil when the ledger is empty
func (r *SQLiteRunRepository) GetLastRun() (*entities.SyncRun, error) {
	runs, err := r.GetRecentRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// GetRecentRuns returns up to limit runs, newest first
func (r *SQLiteRunRepository) GetRecentRuns(limit int) ([]entities.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(`
		SELECT id, started_at, finished_at, stage, status, known, fetched, added, published, watermark, message, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %v", err)
	}
	defer rows.Close()

	var result []entities.SyncRun
	for rows.Next() {
		var (
			run       entities.SyncRun
			watermark sql.NullTime
			message   sql.NullString
			errText   sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Stage,
			&run.Status,
			&run.Known,
			&run.Fetched,
			&run.Added,
			&run.Published,
			&watermark,
			&message,
			&errText,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		if watermark.Valid {
			run.Watermark = watermark.Time
		}
		run.Message = message.String
		run.Error = errText.String
		result = append(result, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}

	return result, nil
}

// PruneRuns deletes runs that started before the cutoff and returns how many were removed
func (r *SQLiteRunRepository) PruneRuns(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM sync_runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %v", err)
	}
	return res.RowsAffected()
}
