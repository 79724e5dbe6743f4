package ui

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/kthreads/internal/store"
	"github.com/me/kthreads/pkg/model"
)

func testUI(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r := chi.NewRouter()
	r.Route(Prefix, New(st, logger).RegisterRoutes)
	return r, st
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	sess := &model.Session{
		ID: "sess_ui", Scenario: "deadlock", State: model.SessionFailed,
		Error: "DEADLOCK: every thread is blocked", Failures: []string{"expect[0] ticks > 5: false"},
		StartedAt: now, FinishedAt: &now,
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	var events []model.Event
	for i := 1; i <= eventsPerPage+5; i++ {
		kind := model.EventYield
		if i%2 == 0 {
			kind = model.EventSwitch
		}
		events = append(events, model.Event{Seq: uint64(i), Tick: int64(i / 4), Kind: kind, ThreadID: 3, Thread: "spinner", Priority: 31})
	}
	if err := st.AppendEvents(ctx, sess.ID, events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	threads := []model.ThreadInfo{
		{ID: 1, Name: "main", Status: model.ThreadBlocked, BasePriority: 31, EffectivePriority: 31},
		{ID: 2, Name: "idle", Status: model.ThreadRunning, Idle: true},
		{ID: 3, Name: "spinner", Status: model.ThreadBlocked, BasePriority: 31, EffectivePriority: 31, RunTicks: 1234},
	}
	if err := st.SaveThreads(ctx, sess.ID, threads); err != nil {
		t.Fatalf("SaveThreads: %v", err)
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSessionList(t *testing.T) {
	h, st := testUI(t)

	rec := get(t, h, "/ui/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No sessions recorded yet") {
		t.Errorf("expected empty state, got: %s", rec.Body.String())
	}

	seed(t, st)
	rec = get(t, h, "/ui/")
	body := rec.Body.String()
	for _, want := range []string{"sess_ui", "deadlock", "FAILED", "/ui/sessions/sess_ui"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in page", want)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = get(t, h, "/ui/?state=COMPLETED")
	if strings.Contains(rec.Body.String(), "/ui/sessions/sess_ui") {
		t.Error("state filter did not exclude the failed session")
	}
}

func TestSessionDetail(t *testing.T) {
	h, st := testUI(t)
	seed(t, st)

	rec := get(t, h, "/ui/sessions/sess_ui")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"DEADLOCK: every thread is blocked", "expect[0] ticks &gt; 5: false", "spinner", "1,234", "(idle)", "Next"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in page", want)
		}
	}
	if strings.Contains(body, "Previous") {
		t.Error("first page links to a previous page")
	}
}

func TestSessionDetail_Filters(t *testing.T) {
	h, st := testUI(t)
	seed(t, st)

	tests := []struct {
		name     string
		query    string
		wantRows int
		wantNext bool
		wantPrev bool
	}{
		{"first page", "", eventsPerPage, true, false},
		{"second page", "?offset=200", 5, false, true},
		{"kind", "?kind=switch", (eventsPerPage + 5) / 2, false, false},
		{"thread without events", "?thread=1", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := get(t, h, "/ui/sessions/sess_ui"+tt.query).Body.String()
			if got := strings.Count(body, "spinner(3)"); got != tt.wantRows {
				t.Errorf("event rows = %d, want %d", got, tt.wantRows)
			}
			if got := strings.Contains(body, ">Next<"); got != tt.wantNext {
				t.Errorf("next link = %v, want %v", got, tt.wantNext)
			}
			if got := strings.Contains(body, ">Previous<"); got != tt.wantPrev {
				t.Errorf("previous link = %v, want %v", got, tt.wantPrev)
			}
		})
	}
}

func TestSessionDetail_NotFound(t *testing.T) {
	h, _ := testUI(t)
	rec := get(t, h, "/ui/sessions/sess_nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Session not found") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRenderTemplate_Unknown(t *testing.T) {
	var buf bytes.Buffer
	if err := renderTemplate(&buf, "nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}
