package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// RunRecord is one scan run's summary, kept across runs so risk and
// coverage trends are visible over time.
type RunRecord struct {
	RunID      string
	Ticket     string
	Timestamp  time.Time
	Duration   time.Duration
	Stages     int
	Completed  int
	Failed     int
	Skipped    int
	CacheHits  int
	Candidates int
	Clusters   int
	RiskScore  int
}

// Store persists run records in SQLite.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when runs overlap.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	ticket      TEXT NOT NULL,
	ts_utc      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	stages      INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	cache_hits  INTEGER NOT NULL,
	candidates  INTEGER NOT NULL,
	clusters    INTEGER NOT NULL,
	risk_score  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs (ts_utc)
`)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveRun upserts one run record; re-saving the same run ID overwrites.
func (s *Store) SaveRun(record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.RunID == "" {
		return fmt.Errorf("run record requires a run ID")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	return s.withRetry("save run", func() error {
		_, err := s.db.Exec(`
INSERT INTO runs (
  run_id, ticket, ts_utc, duration_ms, stages, completed, failed, skipped,
  cache_hits, candidates, clusters, risk_score
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  ticket=excluded.ticket,
  ts_utc=excluded.ts_utc,
  duration_ms=excluded.duration_ms,
  stages=excluded.stages,
  completed=excluded.completed,
  failed=excluded.failed,
  skipped=excluded.skipped,
  cache_hits=excluded.cache_hits,
  candidates=excluded.candidates,
  clusters=excluded.clusters,
  risk_score=excluded.risk_score
`,
			record.RunID,
			record.Ticket,
			record.Timestamp.UTC().Format(time.RFC3339Nano),
			record.Duration.Milliseconds(),
			record.Stages,
			record.Completed,
			record.Failed,
			record.Skipped,
			record.CacheHits,
			record.Candidates,
			record.Clusters,
			record.RiskScore,
		)
		return err
	})
}

// LoadRuns returns records at or after since, oldest first. A zero since
// loads everything.
func (s *Store) LoadRuns(since time.Time) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT run_id, ticket, ts_utc, duration_ms, stages, completed, failed, skipped,
       cache_hits, candidates, clusters, risk_score
FROM runs
`
	args := make([]any, 0, 1)
	if !since.IsZero() {
		query += " WHERE ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY ts_utc ASC, run_id ASC"

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]RunRecord, 0)
	for rows.Next() {
		var (
			record     RunRecord
			tsRaw      string
			durationMS int64
		)
		if err := rows.Scan(
			&record.RunID,
			&record.Ticket,
			&tsRaw,
			&durationMS,
			&record.Stages,
			&record.Completed,
			&record.Failed,
			&record.Skipped,
			&record.CacheHits,
			&record.Candidates,
			&record.Clusters,
			&record.RiskScore,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		record.Timestamp = ts.UTC()
		record.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return records, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
