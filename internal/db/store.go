// internal/db/store.go
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rpchat/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

// Store is the local journal of send interactions
type Store struct {
	db *sql.DB
}

// Open opens the journal in the XDG data directory
func Open() (*Store, error) {
	dataDir, err := dataDir()
	if err != nil {
		return nil, err
	}
	return OpenPath(filepath.Join(dataDir, "journal.db"))
}

// OpenPath opens or creates the journal at path
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func dataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "rpchat"), nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session_id INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		phase TEXT NOT NULL DEFAULT 'sending',
		content TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		user_message_id INTEGER,
		ai_message_id INTEGER,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunStarted records a new interaction
func (s *Store) RunStarted(run models.Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, session_id, prompt, phase, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Prompt, run.Phase, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RunFinished stores the outcome of an interaction. A run that was never
// started is inserted whole.
func (s *Store) RunFinished(run models.Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, session_id, prompt, phase, content, error, user_message_id, ai_message_id, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			content = excluded.content,
			error = excluded.error,
			user_message_id = excluded.user_message_id,
			ai_message_id = excluded.ai_message_id,
			finished_at = excluded.finished_at`,
		run.ID, run.SessionID, run.Prompt, run.Phase, run.Content, run.Error,
		nullInt(run.UserMessageID), nullInt(run.AIMessageID), run.StartedAt, nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run result: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, prompt, phase, content, error, user_message_id, ai_message_id, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns the newest runs first. sessionID 0 lists every session.
func (s *Store) ListRuns(sessionID int64, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session_id, prompt, phase, content, error, user_message_id, ai_message_id, started_at, finished_at
		 FROM runs`
	args := []any{}
	if sessionID != 0 {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// PhaseCounts tallies runs by final phase. sessionID 0 counts every session.
func (s *Store) PhaseCounts(sessionID int64) (map[string]int, error) {
	query := `SELECT phase, COUNT(*) FROM runs`
	args := []any{}
	if sessionID != 0 {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY phase`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, err
		}
		counts[phase] = n
	}
	return counts, rows.Err()
}

// Prune deletes finished runs started before cutoff
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE started_at < ? AND finished_at IS NOT NULL`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var r models.Run
	var userID, aiID sql.NullInt64
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.SessionID, &r.Prompt, &r.Phase, &r.Content, &r.Error, &userID, &aiID, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		r.UserMessageID = &userID.Int64
	}
	if aiID.Valid {
		r.AIMessageID = &aiID.Int64
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
