package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/kthreads/internal/config"
	"github.com/me/kthreads/internal/server"
	"github.com/me/kthreads/internal/store"
	"github.com/me/kthreads/pkg/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// openTestStore opens and migrates a store at path.
func openTestStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(path, quietLogger())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// startTestServer serves st and returns the URL.
func startTestServer(t *testing.T, st store.Store) string {
	t.Helper()
	srv := server.New(config.DefaultSimConfig(), st, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func seedSession(t *testing.T, st store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	sess := &model.Session{
		ID: id, Scenario: "priority-sema", State: model.SessionCompleted,
		Ticks: 7, StartedAt: now, FinishedAt: &now,
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	events := []model.Event{
		{Seq: 1, Kind: model.EventCreate, ThreadID: 3, Thread: "high", Priority: 40},
		{Seq: 2, Kind: model.EventSwitch, ThreadID: 3, Thread: "high", Priority: 40, Detail: "from main"},
		{Seq: 3, Kind: model.EventBlock, ThreadID: 3, Thread: "high", Priority: 40},
	}
	if err := st.AppendEvents(ctx, id, events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	threads := []model.ThreadInfo{
		{ID: 1, Name: "main", Status: model.ThreadRunning, BasePriority: 31, EffectivePriority: 31},
		{ID: 3, Name: "high", Status: model.ThreadDying, BasePriority: 40, EffectivePriority: 40, RunTicks: 2},
	}
	if err := st.SaveThreads(ctx, id, threads); err != nil {
		t.Fatalf("SaveThreads: %v", err)
	}
}

func scenarioPath(name string) string {
	return filepath.Join("..", "..", "scenarios", name+".yaml")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRunCommand_Records(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	output, err := runCLI(t, "--db", dbPath, "run", scenarioPath("priority-donate-one"), scenarioPath("alarm-simultaneous"))
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, output)
	}
	if got := strings.Count(output, "PASS"); got != 2 {
		t.Errorf("PASS lines = %d, want 2\noutput: %s", got, output)
	}
	if !strings.Contains(output, "session sess_") {
		t.Errorf("expected session ID in output, got: %s", output)
	}

	st := openTestStore(t, dbPath)
	sessions, total, err := st.ListSessions(context.Background(), model.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if total != 2 {
		t.Fatalf("sessions = %d, want 2", total)
	}
	for _, s := range sessions {
		if s.State != model.SessionCompleted {
			t.Errorf("session %s state = %s, want COMPLETED", s.Scenario, s.State)
		}
		if s.FinishedAt == nil {
			t.Errorf("session %s has no finish time", s.Scenario)
		}
		events, n, err := st.ListEvents(context.Background(), s.ID, model.ListOptions{Limit: 1})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if n == 0 || len(events) != 1 {
			t.Errorf("session %s recorded no events", s.Scenario)
		}
	}
}

func TestRunCommand_NoRecordWithStats(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	output, err := runCLI(t, "--db", dbPath, "run", "--no-record", "--stats", "--events", scenarioPath("round-robin"))
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, output)
	}
	for _, want := range []string{"PASS", "Timer:", "context switches", "KIND"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "session sess_") {
		t.Errorf("--no-record still recorded a session: %s", output)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("database created with --no-record (stat err %v)", err)
	}
}

func TestRunCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unmet.yaml")
	doc := `name: unmet
threads:
  - name: a
    steps: [yield]
expect:
  - 'ticks < 0'
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := runCLI(t, "--db", filepath.Join(dir, "trace.db"), "run", path)
	if err == nil {
		t.Fatalf("expected error for failing scenario, output: %s", output)
	}
	if !strings.Contains(output, "FAIL") || !strings.Contains(output, "ticks < 0") {
		t.Errorf("expected FAIL with the unmet expectation, got: %s", output)
	}

	st := openTestStore(t, filepath.Join(dir, "trace.db"))
	sessions, _, err := st.ListSessions(context.Background(), model.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].State != model.SessionFailed {
		t.Fatalf("sessions = %+v, want one FAILED", sessions)
	}
	if len(sessions[0].Failures) != 1 {
		t.Errorf("failures = %v, want 1", sessions[0].Failures)
	}
}

func TestRunCommand_MissingFile(t *testing.T) {
	_, err := runCLI(t, "run", "--no-record", "nonexistent.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSelfTestCommand(t *testing.T) {
	output, err := runCLI(t, "selftest")
	if err != nil {
		t.Fatalf("selftest error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Testing semaphores...done.") {
		t.Errorf("expected self test banner, got: %s", output)
	}
	if !strings.Contains(output, "Threads: 3 created") {
		t.Errorf("expected main, idle and the helper in stats, got: %s", output)
	}
}

func TestSessionsCommand(t *testing.T) {
	st := openTestStore(t, ":memory:")
	seedSession(t, st, "sess_one")
	url := startTestServer(t, st)

	output, err := runCLI(t, "--server", url, "sessions")
	if err != nil {
		t.Fatalf("sessions error: %v", err)
	}
	for _, want := range []string{"ID", "sess_one", "COMPLETED", "priority-sema"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}

	output, err = runCLI(t, "--server", url, "sessions", "--state", "FAILED")
	if err != nil {
		t.Fatalf("sessions --state error: %v", err)
	}
	if !strings.Contains(output, "No sessions found.") {
		t.Errorf("expected empty listing, got: %s", output)
	}
}

func TestSessionsCommand_Detail(t *testing.T) {
	st := openTestStore(t, ":memory:")
	seedSession(t, st, "sess_one")
	url := startTestServer(t, st)

	output, err := runCLI(t, "--server", url, "sessions", "sess_one")
	if err != nil {
		t.Fatalf("sessions detail error: %v", err)
	}
	for _, want := range []string{"Session:  sess_one", "Timer: 0 ticks", "TID", "high", "DYING"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}

	if _, err := runCLI(t, "--server", url, "sessions", "sess_missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestEventsCommand(t *testing.T) {
	st := openTestStore(t, ":memory:")
	seedSession(t, st, "sess_one")
	url := startTestServer(t, st)

	output, err := runCLI(t, "--server", url, "events", "sess_one")
	if err != nil {
		t.Fatalf("events error: %v", err)
	}
	if got := strings.Count(output, "high(3)"); got != 3 {
		t.Errorf("event lines = %d, want 3\noutput: %s", got, output)
	}

	output, err = runCLI(t, "--server", url, "events", "sess_one", "--kind", "switch")
	if err != nil {
		t.Fatalf("events --kind error: %v", err)
	}
	if !strings.Contains(output, "from main") || strings.Contains(output, "block") {
		t.Errorf("expected only the switch event, got: %s", output)
	}

	output, err = runCLI(t, "--server", url, "events", "sess_one", "--limit", "1")
	if err != nil {
		t.Fatalf("events --limit error: %v", err)
	}
	if !strings.Contains(output, "next --offset 1") {
		t.Errorf("expected pagination hint, got: %s", output)
	}
}

func TestRunCommand_TimeoutIsRecorded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spin.yaml")
	doc := `name: spin-forever
threads:
  - name: spinner
    steps:
      - run: 100000000
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "trace.db")

	output, err := runCLI(t, "--db", dbPath, "run", "--timeout", "50ms", path)
	if err == nil {
		t.Fatalf("expected a timed-out scenario to fail, output: %s", output)
	}
	if !strings.Contains(output, "FAIL") {
		t.Errorf("expected FAIL line, got: %s", output)
	}

	st := openTestStore(t, dbPath)
	sessions, _, err := st.ListSessions(context.Background(), model.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	sess := sessions[0]
	if sess.State != model.SessionFailed || sess.FinishedAt == nil {
		t.Fatalf("session state=%s finished=%v, want FAILED with a finish time", sess.State, sess.FinishedAt)
	}
	if !strings.Contains(sess.Error, "shut down") {
		t.Errorf("session error = %q, want the kernel shutdown", sess.Error)
	}
	if _, total, err := st.ListEvents(context.Background(), sess.ID, model.ListOptions{Limit: 1}); err != nil || total == 0 {
		t.Errorf("events of the timed-out run were not recorded (total %d, err %v)", total, err)
	}
}
