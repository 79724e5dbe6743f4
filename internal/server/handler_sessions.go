package server

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/kthreads/pkg/model"
)

// parseListOptions reads paging and filter parameters.
func parseListOptions(q url.Values) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	var details []model.FieldError

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			details = append(details, model.FieldError{Field: "limit", Message: "must be a positive integer"})
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, model.FieldError{Field: "offset", Message: "must be a non-negative integer"})
		}
		opts.Offset = n
	}
	if v := q.Get("state"); v != "" {
		opts.State = model.SessionState(v)
		switch opts.State {
		case model.SessionRunning, model.SessionCompleted, model.SessionFailed:
		default:
			details = append(details, model.FieldError{Field: "state", Message: "unknown session state " + v})
		}
	}
	if v := q.Get("kind"); v != "" {
		opts.Kind = model.EventKind(v)
		if !opts.Kind.Valid() {
			details = append(details, model.FieldError{Field: "kind", Message: "unknown event kind " + v})
		}
	}
	if v := q.Get("thread"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 1 {
			details = append(details, model.FieldError{Field: "thread", Message: "must be a thread ID"})
		}
		opts.Thread = int32(n)
	}

	if len(details) > 0 {
		return opts, model.NewValidationError("invalid query parameters", details...)
	}
	opts.Clamp()
	return opts, nil
}

func pagination(opts model.ListOptions, total int) *model.Pagination {
	return &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := parseListOptions(r.URL.Query())
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	sessions, total, err := s.store.ListSessions(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	respondList(w, reqID, sessions, pagination(opts, total))
}

// loadSession writes a 404 or 500 and returns nil when the session cannot
// be served.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) *model.Session {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return nil
	}
	if sess == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("session", id))
		return nil
	}
	return sess
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if sess := s.loadSession(w, r); sess != nil {
		respondOK(w, RequestIDFromContext(r.Context()), sess)
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	if !sess.State.IsTerminal() {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.ErrValidation,
			Message: "cannot delete session in state " + string(sess.State),
		})
		return
	}
	if err := s.store.DeleteSession(r.Context(), sess.ID); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	s.logger.Info("session deleted", "id", sess.ID)
	respondOK(w, reqID, map[string]any{"id": sess.ID, "deleted": true})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := parseListOptions(r.URL.Query())
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), sess.ID, opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondList(w, reqID, events, pagination(opts, total))
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}

	threads, err := s.store.ListThreads(r.Context(), sess.ID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if threads == nil {
		threads = []model.ThreadInfo{}
	}
	respondOK(w, reqID, threads)
}
