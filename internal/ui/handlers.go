package ui

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/kthreads/internal/store"
	"github.com/me/kthreads/pkg/model"
)

// eventsPerPage is the number of events a session page shows at once.
const eventsPerPage = 200

// UI serves read-only HTML pages over the recorded sessions.
type UI struct {
	store     store.Store
	logger    *slog.Logger
	startTime time.Time
}

// New creates a new UI handler.
func New(st store.Store, logger *slog.Logger) *UI {
	return &UI{
		store:     st,
		logger:    logger.With("component", "ui"),
		startTime: time.Now(),
	}
}

// HandleSessionList renders the recorded sessions, newest first.
func (ui *UI) HandleSessionList(w http.ResponseWriter, r *http.Request) {
	opts := model.ListOptions{Limit: 100}
	if state := r.URL.Query().Get("state"); state != "" {
		opts.State = model.SessionState(state)
	}

	sessions, total, err := ui.store.ListSessions(r.Context(), opts)
	if err != nil {
		ui.renderError(w, "Failed to load sessions", err)
		return
	}

	data := map[string]any{
		"Title":    "Sessions - kthreads",
		"Sessions": sessions,
		"Total":    total,
		"State":    string(opts.State),
		"States":   []model.SessionState{model.SessionRunning, model.SessionCompleted, model.SessionFailed},
		"Uptime":   time.Since(ui.startTime).Round(time.Second).String(),
	}
	ui.render(w, http.StatusOK, "sessions/list", data)
}

// HandleSessionDetail renders one session with its thread table and a page
// of its events.
func (ui *UI) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	sess, err := ui.store.GetSession(ctx, id)
	if err != nil {
		ui.renderError(w, "Failed to load session", err)
		return
	}
	if sess == nil {
		ui.renderNotFound(w, "Session not found")
		return
	}

	threads, err := ui.store.ListThreads(ctx, id)
	if err != nil {
		ui.renderError(w, "Failed to load threads", err)
		return
	}

	q := r.URL.Query()
	opts := model.ListOptions{Limit: eventsPerPage, Kind: model.EventKind(q.Get("kind"))}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		opts.Offset = v
	}
	if v, err := strconv.Atoi(q.Get("thread")); err == nil && v > 0 {
		opts.Thread = int32(v)
	}
	events, total, err := ui.store.ListEvents(ctx, id, opts)
	if err != nil {
		ui.renderError(w, "Failed to load events", err)
		return
	}

	data := map[string]any{
		"Title":       fmt.Sprintf("Session %s - kthreads", sess.ID),
		"Session":     sess,
		"Threads":     threads,
		"Events":      events,
		"EventTotal":  total,
		"Kind":        string(opts.Kind),
		"Kinds":       model.AllEventKinds,
		"Thread":      opts.Thread,
		"Offset":      opts.Offset,
		"NextOffset":  opts.Offset + len(events),
		"HasMore":     opts.Offset+len(events) < total,
		"HasPrevious": opts.Offset > 0,
		"PrevOffset":  max(opts.Offset-eventsPerPage, 0),
	}
	ui.render(w, http.StatusOK, "sessions/detail", data)
}

func (ui *UI) render(w http.ResponseWriter, status int, template string, data map[string]any) {
	var buf bytes.Buffer
	if err := renderTemplate(&buf, template, data); err != nil {
		ui.logger.Error("template render failed", "template", template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (ui *UI) renderError(w http.ResponseWriter, message string, err error) {
	ui.logger.Error(message, "error", err)
	data := map[string]any{
		"Title":   "Error - kthreads",
		"Message": message,
	}
	ui.render(w, http.StatusInternalServerError, "error", data)
}

func (ui *UI) renderNotFound(w http.ResponseWriter, message string) {
	data := map[string]any{
		"Title":   "Not Found - kthreads",
		"Message": message,
	}
	ui.render(w, http.StatusNotFound, "error", data)
}
