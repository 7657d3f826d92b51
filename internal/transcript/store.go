// Package transcript persists a per-run audit trail of solving steps.
//
// The transcript is a log, not session memory: the in-memory session memory
// remains the only context source for prompting. Rows are kept so finished
// runs can be inspected after the fact.
package transcript

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/agent"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	problem    TEXT NOT NULL,
	category   TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS steps (
	run_id      TEXT NOT NULL,
	step        INTEGER NOT NULL,
	purpose     TEXT NOT NULL,
	content     TEXT NOT NULL,
	output      TEXT NOT NULL,
	analysis    TEXT NOT NULL,
	success     INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, step)
);
CREATE TABLE IF NOT EXISTS flag_events (
	run_id      TEXT NOT NULL,
	step        INTEGER NOT NULL,
	candidate   TEXT NOT NULL,
	confirmed   INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);
`

// Store writes run, step, and flag rows to SQLite. All methods are nil-safe
// so callers can pass a disabled store without guarding each call.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	runID string
}

// Open creates or opens the transcript database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// BeginRun opens a new run row and remembers its identifier for subsequent
// step and flag rows.
func (s *Store) BeginRun(problem, category string) {
	if s == nil || s.db == nil {
		return
	}
	s.runID = uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, problem, category, started_at) VALUES (?, ?, ?, ?)`,
		s.runID, problem, category, time.Now(),
	)
	if err != nil {
		s.log.Warn("Transcript run insert failed", "error", err)
	}
}

// RecordStep appends one completed turn.
func (s *Store) RecordStep(rec agent.StepRecord) {
	if s == nil || s.db == nil || s.runID == "" {
		return
	}
	success := 0
	if rec.Analysis.Success {
		success = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO steps (run_id, step, purpose, content, output, analysis, success, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, rec.Step, rec.Purpose, rec.Content, rec.Output, rec.Analysis.Analysis, success, time.Now(),
	)
	if err != nil {
		s.log.Warn("Transcript step insert failed", "step", rec.Step, "error", err)
	}
}

// RecordFlag appends a flag candidate event, confirmed or rejected.
func (s *Store) RecordFlag(step int, candidate string, confirmed bool) {
	if s == nil || s.db == nil || s.runID == "" {
		return
	}
	conf := 0
	if confirmed {
		conf = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO flag_events (run_id, step, candidate, confirmed, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		s.runID, step, candidate, conf, time.Now(),
	)
	if err != nil {
		s.log.Warn("Transcript flag insert failed", "error", err)
	}
}

// RunSummary describes one recorded run.
type RunSummary struct {
	RunID     string
	Category  string
	Problem   string
	StartedAt time.Time
	Steps     int
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT r.run_id, r.category, r.problem, r.started_at,
		        (SELECT COUNT(*) FROM steps st WHERE st.run_id = r.run_id)
		 FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Category, &r.Problem, &r.StartedAt, &r.Steps); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
