package capture

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vsignal/vsm/internal/policy"
)

//go:embed schema.sql
var schemaSQL string

// TraceStore persists complete signal traces to SQLite so past runs can be
// inspected offline with the trace command.
//
// SQLite runs in WAL mode with a single-writer connection pool: the driver
// loop is the only writer, readers (the trace command) open their own
// store.
type TraceStore struct {
	db *sql.DB
}

// OpenTraceStore creates or opens a trace database at the given path.
// Idempotent: pragmas and schema apply on every open.
func OpenTraceStore(path string) (*TraceStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect trace store: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}

	return &TraceStore{db: db}, nil
}

// Close closes the database connection.
func (s *TraceStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun registers a new run and returns its identifier.
func (s *TraceStore) BeginRun(ctx context.Context, rulesPath string) (string, error) {
	runID := uuid.Must(uuid.NewV7()).String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, rules_path, started_at) VALUES (?, ?, ?)`,
		runID, rulesPath, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return runID, nil
}

// WriteRecord appends one signal record to a run.
func (s *TraceStore) WriteRecord(ctx context.Context, runID string, seq int64, rec policy.Record) error {
	direction := "in"
	if rec.Dir == policy.Outgoing {
		direction = "out"
	}
	var signum any
	if rec.HasNum {
		signum = int64(rec.Num)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (run_id, seq, ts_ms, direction, name, signum, value)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, rec.Time, direction, rec.Name, signum, rec.Value.Repr())
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// RunInfo summarizes one recorded run.
type RunInfo struct {
	ID        string
	RulesPath string
	StartedAt string
	Records   int64
}

// Runs lists recorded runs, newest first.
func (s *TraceStore) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.rules_path, r.started_at, COUNT(rec.seq)
		FROM runs r
		LEFT JOIN records rec ON rec.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		if err := rows.Scan(&info.ID, &info.RulesPath, &info.StartedAt, &info.Records); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// TraceRow is one stored signal record.
type TraceRow struct {
	Seq       int64
	TimeMs    int64
	Direction string
	Name      string
	Signum    sql.NullInt64
	Value     string
}

// Records returns a run's records in sequence order.
func (s *TraceStore) Records(ctx context.Context, runID string) ([]TraceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts_ms, direction, name, signum, value
		FROM records WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	defer rows.Close()

	var out []TraceRow
	for rows.Next() {
		var row TraceRow
		if err := rows.Scan(&row.Seq, &row.TimeMs, &row.Direction, &row.Name, &row.Signum, &row.Value); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TraceSink streams a run's records into a trace store.
// Implements policy.Sink; write failures are logged and dropped, never
// propagated into the engine.
type TraceSink struct {
	store *TraceStore
	runID string
	seq   int64
	log   *slog.Logger
}

// NewTraceSink begins a run and returns its sink.
func NewTraceSink(ctx context.Context, store *TraceStore, rulesPath string, log *slog.Logger) (*TraceSink, error) {
	runID, err := store.BeginRun(ctx, rulesPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	log.Info("trace run started", "run_id", runID)
	return &TraceSink{store: store, runID: runID, log: log}, nil
}

// RunID returns the sink's run identifier.
func (s *TraceSink) RunID() string { return s.runID }

// Record implements policy.Sink.
func (s *TraceSink) Record(rec policy.Record) {
	s.seq++
	if err := s.store.WriteRecord(context.Background(), s.runID, s.seq, rec); err != nil {
		s.log.Error("trace write failed", "error", err, "signal", rec.Name)
	}
}
