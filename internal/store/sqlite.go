package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/kthreads/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// dsn adds the per-connection pragmas to a file path. A pragma run through
// db.Exec only reaches one pooled connection.
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Session CRUD ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	s.logger.Debug("sql", "op", "insert", "table", "sessions", "id", sess.ID)

	statsJSON, err := json.Marshal(sess.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	failuresJSON, err := marshalFailures(sess.Failures)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, scenario, state, ticks, error, failures, stats, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Scenario, string(sess.State), sess.Ticks, sess.Error,
		failuresJSON, string(statsJSON),
		sess.StartedAt.Format(time.RFC3339Nano), formatTimePtr(sess.FinishedAt),
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.logger.Debug("sql", "op", "select", "table", "sessions", "id", id)

	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, scenario, state, ticks, error, failures, stats, started_at, finished_at
		 FROM sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, opts model.ListOptions) ([]*model.Session, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "sessions", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var countArgs []any
	if opts.State != "" {
		whereSQL = " WHERE state = ?"
		countArgs = append(countArgs, string(opts.State))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT id, scenario, state, ticks, error, failures, stats, started_at, finished_at
		FROM sessions` + whereSQL + ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	s.logger.Debug("sql", "op", "update", "table", "sessions", "id", sess.ID, "state", sess.State)

	statsJSON, err := json.Marshal(sess.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	failuresJSON, err := marshalFailures(sess.Failures)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, ticks = ?, error = ?, failures = ?, stats = ?, finished_at = ?
		 WHERE id = ?`,
		string(sess.State), sess.Ticks, sess.Error, failuresJSON, string(statsJSON),
		formatTimePtr(sess.FinishedAt), sess.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "session", sess.ID)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "sessions", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Child rows go explicitly so the delete does not depend on the
	// connection's foreign_keys setting.
	for _, table := range []string{"events", "threads"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectOneRow(res, "session", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Trace data ---

// AppendEvents inserts events for a session in one transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, sessionID string, events []model.Event) error {
	s.logger.Debug("sql", "op", "insert", "table", "events", "session_id", sessionID, "count", len(events))
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (session_id, seq, tick, kind, thread_id, thread, priority, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, sessionID, ev.Seq, ev.Tick, string(ev.Kind),
			ev.ThreadID, ev.Thread, ev.Priority, ev.Detail); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

// ListEvents returns one page of a session's events in sequence order and
// the number of events matching the filters.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string, opts model.ListOptions) ([]model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "session_id", sessionID,
		"kind", opts.Kind, "thread", opts.Thread, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereClauses := []string{"session_id = ?"}
	countArgs := []any{sessionID}
	if opts.Kind != "" {
		whereClauses = append(whereClauses, "kind = ?")
		countArgs = append(countArgs, string(opts.Kind))
	}
	if opts.Thread != 0 {
		whereClauses = append(whereClauses, "thread_id = ?")
		countArgs = append(countArgs, opts.Thread)
	}
	whereSQL := " WHERE " + strings.Join(whereClauses, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT seq, tick, kind, thread_id, thread, priority, detail
		FROM events` + whereSQL + ` ORDER BY seq LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, listQuery, append(countArgs, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var kind string
		if err := rows.Scan(&ev.Seq, &ev.Tick, &kind, &ev.ThreadID, &ev.Thread, &ev.Priority, &ev.Detail); err != nil {
			return nil, 0, err
		}
		ev.Kind = model.EventKind(kind)
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// SaveThreads replaces the stored thread snapshot of a session.
func (s *SQLiteStore) SaveThreads(ctx context.Context, sessionID string, threads []model.ThreadInfo) error {
	s.logger.Debug("sql", "op", "replace", "table", "threads", "session_id", sessionID, "count", len(threads))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	for _, th := range threads {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO threads (session_id, tid, name, status, base_priority, effective_priority, wake_tick, run_ticks, idle)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, th.ID, th.Name, th.Status.String(), th.BasePriority, th.EffectivePriority,
			th.WakeTick, int64(th.RunTicks), boolToInt(th.Idle))
		if err != nil {
			return fmt.Errorf("insert thread %d: %w", th.ID, err)
		}
	}
	return tx.Commit()
}

// ListThreads returns a session's thread snapshot ordered by thread ID.
func (s *SQLiteStore) ListThreads(ctx context.Context, sessionID string) ([]model.ThreadInfo, error) {
	s.logger.Debug("sql", "op", "list", "table", "threads", "session_id", sessionID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT tid, name, status, base_priority, effective_priority, wake_tick, run_ticks, idle
		 FROM threads WHERE session_id = ? ORDER BY tid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []model.ThreadInfo
	for rows.Next() {
		var th model.ThreadInfo
		var status string
		var runTicks int64
		var idle int
		if err := rows.Scan(&th.ID, &th.Name, &status, &th.BasePriority, &th.EffectivePriority,
			&th.WakeTick, &runTicks, &idle); err != nil {
			return nil, err
		}
		th.Status = model.ThreadStatus(status)
		th.RunTicks = uint64(runTicks)
		th.Idle = idle != 0
		threads = append(threads, th)
	}
	return threads, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var sess model.Session
	var state, failuresJSON, statsJSON, startedAt string
	var finishedAt *string

	if err := row.Scan(&sess.ID, &sess.Scenario, &state, &sess.Ticks, &sess.Error,
		&failuresJSON, &statsJSON, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	sess.State = model.SessionState(state)
	if err := json.Unmarshal([]byte(failuresJSON), &sess.Failures); err != nil {
		return nil, fmt.Errorf("unmarshal failures: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &sess.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		sess.FinishedAt = &t
	}
	return &sess, nil
}

func marshalFailures(failures []string) (string, error) {
	if failures == nil {
		failures = []string{}
	}
	b, err := json.Marshal(failures)
	if err != nil {
		return "", fmt.Errorf("marshal failures: %w", err)
	}
	return string(b), nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", entity, id)
	}
	return nil
}
