// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists run state so that interrupted runs can be
// resumed from the last completed phase. The whole ResearchRun is stored
// as a single JSON blob keyed by run ID; a checkpoint is written after
// every phase transition, so a resumed run never repeats completed work.
// Implements: prd001-orchestration (checkpointing);
//
//	docs/ARCHITECTURE § Checkpoint Store.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/meshintel/deepresearch/pkg/types"
)

// ErrNotFound is returned when no checkpoint exists for a run ID.
var ErrNotFound = errors.New("checkpoint: run not found")

// Store persists and recovers run state.
type Store interface {
	// Save writes the run's current state, replacing any prior checkpoint.
	Save(ctx context.Context, run *types.ResearchRun) error

	// Load returns the checkpointed state for a run, or ErrNotFound.
	Load(ctx context.Context, runID string) (*types.ResearchRun, error)

	// Pending returns every checkpointed run that has not reached a
	// terminal phase, oldest first. Used to resume after a restart.
	Pending(ctx context.Context) ([]*types.ResearchRun, error)

	// Delete removes a run's checkpoint. Deleting a missing run is not an
	// error.
	Delete(ctx context.Context, runID string) error

	// Close releases the store's resources.
	Close() error
}

// SQLiteStore is the durable Store backed by a single-table SQLite
// database.
type SQLiteStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the checkpoint database at path,
// creating parent directories and the schema as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		state BLOB NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("executing schema statement: %w", err)
	}
	return nil
}

// Save upserts the run's full state as a JSON blob.
func (s *SQLiteStore) Save(ctx context.Context, run *types.ResearchRun) error {
	state, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", run.RunID, err)
	}

	query, args, err := s.builder.
		Insert("runs").
		Columns("run_id", "phase", "updated_at", "state").
		Values(run.RunID, string(run.CurrentPhase), time.Now().UTC().Format(time.RFC3339Nano), state).
		Suffix("ON CONFLICT(run_id) DO UPDATE SET phase=excluded.phase, updated_at=excluded.updated_at, state=excluded.state").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving checkpoint for run %s: %w", run.RunID, err)
	}
	return nil
}

// Load returns the checkpointed run, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*types.ResearchRun, error) {
	query, args, err := s.builder.
		Select("state").
		From("runs").
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var state []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading checkpoint for run %s: %w", runID, err)
	}
	return decodeRun(state)
}

// Pending returns non-terminal runs in checkpoint order, oldest first.
func (s *SQLiteStore) Pending(ctx context.Context) ([]*types.ResearchRun, error) {
	query, args, err := s.builder.
		Select("state").
		From("runs").
		Where(sq.NotEq{"phase": []string{string(types.PhaseDone), string(types.PhaseFailed)}}).
		OrderBy("updated_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing pending runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.ResearchRun
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scanning pending run: %w", err)
		}
		run, err := decodeRun(state)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending runs: %w", err)
	}
	return runs, nil
}

// Delete removes the run's checkpoint.
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	query, args, err := s.builder.
		Delete("runs").
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting checkpoint for run %s: %w", runID, err)
	}
	return nil
}

func decodeRun(state []byte) (*types.ResearchRun, error) {
	var run types.ResearchRun
	if err := json.Unmarshal(state, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint: %w", err)
	}
	return &run, nil
}
