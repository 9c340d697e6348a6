// Package api provides HTTP handlers for the interview session API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/interview"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/reconnect"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/repo"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/session"
	"github.com/go-chi/chi/v5"
)

// Handler serves the session lifecycle endpoints.
type Handler struct {
	repo      *repo.Repository
	coord     *reconnect.Coordinator
	generator interview.Generator // optional; nil disables interviewer turns
}

// NewHandler creates a new Handler.
func NewHandler(r *repo.Repository, coord *reconnect.Coordinator, generator interview.Generator) *Handler {
	return &Handler{repo: r, coord: coord, generator: generator}
}

// RegisterRoutes attaches all session endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{sessionID}", h.handleGet)
		r.Post("/{sessionID}/turns", h.handleAppendTurn)
		r.Post("/{sessionID}/pause", h.handlePause)
		r.Post("/{sessionID}/complete", h.handleComplete)
	})
	r.Post("/api/resume", h.handleResume)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// domainError maps the error taxonomy onto HTTP statuses. Invalid tokens and
// unknown sessions both answer 404 so the token namespace cannot be probed.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidToken):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrStaleWrite):
		Error(w, http.StatusConflict, "stale version: re-fetch session state and retry")
	case errors.Is(err, domain.ErrIllegalTransition):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		Error(w, http.StatusServiceUnavailable, "storage temporarily unavailable, retry with backoff")
	default:
		slog.Error("unhandled API error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Create(r.Context())
	if err != nil {
		domainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, s)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.repo.Get(r.Context(), sessionID)
	if err != nil {
		domainError(w, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

type appendTurnRequest struct {
	Role            domain.Role `json:"role"`
	Content         string      `json:"content"`
	ExpectedVersion int64       `json:"expected_version"`
}

type appendTurnResponse struct {
	Session *domain.Session `json:"session"`
	Next    *domain.Turn    `json:"next,omitempty"`
}

func (h *Handler) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req appendTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		Error(w, http.StatusBadRequest, "content cannot be empty")
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleCandidate
	}

	s, err := h.repo.AppendTurn(r.Context(), sessionID, domain.Turn{Role: req.Role, Content: req.Content}, req.ExpectedVersion)
	if err != nil {
		domainError(w, err)
		return
	}

	resp := appendTurnResponse{Session: s}

	// Ask the interviewer backend for the next question. A backend failure
	// is transient: the candidate's turn is already committed, so we reply
	// with what we have and the client retries the question fetch.
	if h.generator != nil && req.Role == domain.RoleCandidate {
		next, err := h.generator.GenerateNextTurn(r.Context(), s.Dialogue)
		if err != nil {
			slog.Warn("interviewer turn generation failed", "session_id", sessionID, "error", err)
		} else {
			updated, err := h.repo.AppendTurn(r.Context(), sessionID, next, s.Version)
			if err != nil {
				slog.Warn("interviewer turn append failed", "session_id", sessionID, "error", err)
			} else {
				resp.Session = updated
				resp.Next = &updated.Dialogue[len(updated.Dialogue)-1]
			}
		}
	}

	JSON(w, http.StatusOK, resp)
}

type transitionRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, session.EventPause)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, session.EventComplete)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, event session.Event) {
	sessionID := chi.URLParam(r, "sessionID")

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.repo.Transition(r.Context(), sessionID, event, req.ExpectedVersion)
	if err != nil {
		domainError(w, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	var req reconnect.ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResumeToken == "" {
		Error(w, http.StatusBadRequest, "resume_token is required")
		return
	}

	resp, err := h.coord.Resume(r.Context(), req)
	if err != nil {
		domainError(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}
