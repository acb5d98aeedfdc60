// Package api provides HTTP handlers for the Acharya API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samueljohnsiby/acharya-backend/internal/chat"
	"github.com/samueljohnsiby/acharya-backend/internal/domain"
	"github.com/samueljohnsiby/acharya-backend/internal/identity"
	"github.com/samueljohnsiby/acharya-backend/internal/session"
	"github.com/samueljohnsiby/acharya-backend/internal/store"
)

// Fixed user-facing failure details. Upstream internals are logged, never
// forwarded to callers.
const (
	detailInvalidToken   = "Invalid token"
	detailSignupFailed   = "User creation failed"
	detailNotOwner       = "Session does not belong to caller"
	detailUpstreamFailed = "Chat service unavailable"
)

// Handler serves the chat, login, signup, and history endpoints.
type Handler struct {
	svc      *chat.Service
	provider identity.Provider
	repo     store.Repository
}

// NewHandler creates a new Handler with its collaborators.
func NewHandler(svc *chat.Service, provider identity.Provider, repo store.Repository) *Handler {
	return &Handler{
		svc:      svc,
		provider: provider,
		repo:     repo,
	}
}

// RegisterRoutes attaches the API endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Post("/login", h.Login)
	r.Post("/signup", h.Signup)
	r.Get("/history", h.History)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error envelope.
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, map[string]string{"detail": detail})
}

// credential extracts the caller's bearer token. The Authorization header is
// preferred; the legacy X-API-Key header is accepted as an alias for the
// same identity-provider token.
func credential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return strings.TrimSpace(auth)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// authenticate resolves the request credential to a subject id.
func (h *Handler) authenticate(r *http.Request) (string, error) {
	return h.provider.VerifyToken(r.Context(), credential(r))
}

type chatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Chat handles one tutoring turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.authenticate(r)
	if err != nil {
		slog.Info("Chat rejected: credential verification failed", "error", err)
		Error(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		Error(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	result, err := h.svc.Chat(r.Context(), subjectID, req.SessionID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotOwner):
			Error(w, http.StatusForbidden, detailNotOwner)
		default:
			Error(w, http.StatusInternalServerError, detailUpstreamFailed)
		}
		return
	}

	JSON(w, http.StatusOK, chatResponse{Response: result.Reply, SessionID: result.SessionID})
}

// Login verifies the caller's token and returns the subject id.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.authenticate(r)
	if err != nil {
		slog.Info("Login rejected", "error", err)
		Error(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": "User logged in successfully",
		"uid":     subjectID,
	})
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup registers a new account with the identity provider.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	subjectID, err := h.provider.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("Signup rejected", "email", req.Email, "error", err)
		Error(w, http.StatusBadRequest, detailSignupFailed)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": "User created successfully",
		"uid":     subjectID,
	})
}

// History returns the caller's persisted chat records in append order.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.authenticate(r)
	if err != nil {
		Error(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}

	records, err := h.repo.History(r.Context(), subjectID)
	if err != nil {
		slog.Error("History query failed", "subject_id", subjectID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load chat history")
		return
	}
	if records == nil {
		records = []domain.ChatRecord{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"records": records})
}
