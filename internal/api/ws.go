package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/samueljohnsiby/acharya-backend/internal/chat"
	"github.com/samueljohnsiby/acharya-backend/internal/identity"
	"github.com/samueljohnsiby/acharya-backend/internal/ratelimit"
	"github.com/samueljohnsiby/acharya-backend/internal/session"
)

// ChatSocketHandler carries tutoring turns over a persistent WebSocket. Each
// inbound message is one turn; the credential is verified once at upgrade
// and each message is charged against the caller's rate window.
type ChatSocketHandler struct {
	svc      *chat.Service
	provider identity.Provider
	limiter  *ratelimit.Limiter
}

// NewChatSocketHandler creates a WebSocket chat handler.
func NewChatSocketHandler(svc *chat.Service, provider identity.Provider, limiter *ratelimit.Limiter) *ChatSocketHandler {
	return &ChatSocketHandler{
		svc:      svc,
		provider: provider,
		limiter:  limiter,
	}
}

type socketTurn struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

type socketReply struct {
	Response  string `json:"response,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// socketCredential accepts the token from the Authorization header or, for
// browser clients that cannot set WebSocket headers, a query parameter.
func socketCredential(r *http.Request) string {
	if token := credential(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.provider.VerifyToken(r.Context(), socketCredential(r))
	if err != nil {
		slog.Info("Chat socket rejected: credential verification failed", "error", err)
		Error(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}

	clientKey := ratelimit.ClientKey(r)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept chat socket", "error", err, "subject_id", subjectID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close chat socket", "error", closeErr, "subject_id", subjectID)
		}
	}()

	slog.Info("Chat socket opened", "subject_id", subjectID, "ip", r.RemoteAddr)

	ctx := r.Context()
	for {
		var turn socketTurn
		if err := readJSON(ctx, ws, &turn); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			slog.Debug("Chat socket read ended", "error", err, "subject_id", subjectID)
			return
		}

		if !h.limiter.Allow(clientKey, time.Now()) {
			if err := writeJSON(ctx, ws, socketReply{Detail: "Too Many Requests"}); err != nil {
				return
			}
			continue
		}

		if strings.TrimSpace(turn.Prompt) == "" {
			if err := writeJSON(ctx, ws, socketReply{Detail: "Prompt is required"}); err != nil {
				return
			}
			continue
		}

		result, err := h.svc.Chat(ctx, subjectID, turn.SessionID, turn.Prompt)
		if err != nil {
			reply := socketReply{Detail: detailUpstreamFailed}
			if errors.Is(err, session.ErrNotOwner) {
				reply.Detail = detailNotOwner
			}
			if err := writeJSON(ctx, ws, reply); err != nil {
				return
			}
			continue
		}

		if err := writeJSON(ctx, ws, socketReply{Response: result.Reply, SessionID: result.SessionID}); err != nil {
			return
		}
	}
}

func readJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
