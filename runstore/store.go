// Package runstore records pipeline runs and their per-epoch losses in SQLite
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run has the requested id
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Status is the lifecycle state of a run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one recorded pipeline execution
type Run struct {
	ID         string
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time
	Device     string
	LatentDim  int
	ConfigTOML string
	F1         *float64
	Error      string
	Epochs     int
}

// Epoch is one stored epoch loss pair
type Epoch struct {
	Epoch     int // 0-based
	TrainLoss float64
	ValLoss   float64
	Duration  time.Duration
}

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run database and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps the per-connection pragmas in force
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Start inserts a new running run and returns it
func (s *Store) Start(ctx context.Context, device string, latentDim int, configTOML string) (*Run, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at, device, latent_dim, config_toml)
        VALUES (?, ?, ?, ?, ?, ?)`,
		id, StatusRunning, now.Format(timeLayout), device, latentDim, configTOML,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.Get(ctx, id)
}

// RecordEpoch stores the losses of one epoch
func (s *Store) RecordEpoch(ctx context.Context, runID string, e Epoch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO epoch_losses (run_id, epoch, train_loss, val_loss, duration_ms)
        VALUES (?, ?, ?, ?, ?)`,
		runID, e.Epoch, e.TrainLoss, e.ValLoss, e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert epoch %d: %w", e.Epoch, err)
	}
	return nil
}

// Complete marks a run finished with its downstream F1 score
func (s *Store) Complete(ctx context.Context, runID string, f1 float64) error {
	return s.finish(ctx, runID, StatusCompleted, f1, "")
}

// Fail marks a run aborted with cause
func (s *Store) Fail(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, runID, StatusFailed, nil, msg)
}

func (s *Store) finish(ctx context.Context, runID string, status Status, f1 any, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, f1_score = ?, error_message = ? WHERE id = ?`,
		status, time.Now().UTC().Format(timeLayout), f1, nullableString(msg), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}

const runColumns = `r.id, r.status, r.started_at, r.finished_at, r.device, r.latent_dim,
        r.config_toml, r.f1_score, r.error_message,
        (SELECT COUNT(1) FROM epoch_losses e WHERE e.run_id = r.id)`

// Get fetches a run by id
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// List returns the most recent runs first; limit <= 0 returns all
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs r ORDER BY r.started_at DESC, r.rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Epochs returns a run's epoch losses in epoch order
func (s *Store) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT epoch, train_loss, val_loss, duration_ms FROM epoch_losses WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var e Epoch
		var ms int64
		if err := rows.Scan(&e.Epoch, &e.TrainLoss, &e.ValLoss, &ms); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
		f1       sql.NullFloat64
		errMsg   sql.NullString
	)
	if err := row.Scan(&run.ID, &status, &started, &finished, &run.Device, &run.LatentDim,
		&run.ConfigTOML, &f1, &errMsg, &run.Epochs); err != nil {
		return nil, err
	}

	run.Status = Status(status)
	t, err := parseTimeString(started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = t
	if finished.Valid {
		ft, err := parseTimeString(finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &ft
	}
	if f1.Valid {
		v := f1.Float64
		run.F1 = &v
	}
	run.Error = errMsg.String
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
