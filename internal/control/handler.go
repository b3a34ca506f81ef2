// Package control exposes the player engine over HTTP: sessions are created
// around a media path, started, reset, inspected, and deleted. Each session
// runs its own message loop, so the API never blocks on playback.
package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"stream-player/internal/platform/metrics"
)

// Handler exposes the session endpoints using go-chi.
type Handler struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	audio   string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHandler returns a Handler. audio selects the sink backend ("oto" or
// "null"). Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(log *slog.Logger, m *metrics.Metrics, audio string) *Handler {
	return &Handler{
		log:      log,
		metrics:  m,
		audio:    audio,
		sessions: make(map[string]*Session),
	}
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/start", h.StartSession)
			r.Post("/reset", h.ResetSession)
			r.Delete("/", h.DeleteSession)
		})
	})
}

// SessionCount returns the number of live sessions. Used for metrics.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// StopAll tears every session down; called on daemon shutdown.
func (h *Handler) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.Stop()
		delete(h.sessions, id)
	}
}

type createSessionRequest struct {
	Path string `json:"path"`
}

type sessionResponse struct {
	ID     string         `json:"id"`
	Path   string         `json:"path"`
	Events []eventPayload `json:"events"`
}

type eventPayload struct {
	Kind string `json:"kind"`
	Ext1 int    `json:"ext1"`
	Ext2 int    `json:"ext2"`
}

// CreateSession handles POST /sessions.
// Body: { "path": "/media/stream.ts" }.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		h.log.Debug("invalid create session body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s, err := newSession(req.Path, h.audio, h.log, h.metrics)
	if err != nil {
		h.log.Info("session rejected",
			slog.String("path", req.Path),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	h.log.Info("session created",
		slog.String("session", s.ID),
		slog.String("path", s.Path))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(h.sessionPayload(s))
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.sessionPayload(s))
}

// StartSession handles POST /sessions/{session_id}/start.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.Start()
	h.log.Info("session started", slog.String("session", s.ID))
	w.WriteHeader(http.StatusAccepted)
}

// ResetSession handles POST /sessions/{session_id}/reset.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.Reset()
	h.log.Info("session reset requested", slog.String("session", s.ID))
	w.WriteHeader(http.StatusAccepted)
}

// DeleteSession handles DELETE /sessions/{session_id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")

	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.Stop()
	h.log.Info("session deleted", slog.String("session", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(r *http.Request) (*Session, bool) {
	id := chi.URLParam(r, "session_id")
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Handler) sessionPayload(s *Session) sessionResponse {
	events := s.Events()
	payload := sessionResponse{
		ID:     s.ID,
		Path:   s.Path,
		Events: make([]eventPayload, 0, len(events)),
	}
	for _, ev := range events {
		payload.Events = append(payload.Events, eventPayload{
			Kind: ev.Kind.String(),
			Ext1: ev.Ext1,
			Ext2: ev.Ext2,
		})
	}
	return payload
}
