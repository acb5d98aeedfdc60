// Package chat orchestrates one tutoring turn: session resolution, model
// generation, and best-effort history persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samueljohnsiby/acharya-backend/internal/domain"
	"github.com/samueljohnsiby/acharya-backend/internal/genai"
	"github.com/samueljohnsiby/acharya-backend/internal/session"
	"github.com/samueljohnsiby/acharya-backend/internal/store"
)

// ErrUpstream is returned when the model-generation collaborator fails.
var ErrUpstream = errors.New("chat: upstream generation failed")

// Result is one completed chat turn.
type Result struct {
	Reply     string
	SessionID string
}

// Service composes the session registry, the generation collaborator, and
// the persistence collaborator into one request cycle.
type Service struct {
	registry *session.Registry
	gen      genai.Generator
	repo     store.Repository

	generateTimeout time.Duration
	persistTimeout  time.Duration
}

// NewService creates a chat service.
func NewService(registry *session.Registry, gen genai.Generator, repo store.Repository, generateTimeout, persistTimeout time.Duration) (*Service, error) {
	if registry == nil {
		return nil, errors.New("chat: registry must not be nil")
	}
	if gen == nil {
		return nil, errors.New("chat: generator must not be nil")
	}
	if repo == nil {
		return nil, errors.New("chat: repository must not be nil")
	}
	if generateTimeout <= 0 {
		generateTimeout = 60 * time.Second
	}
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Service{
		registry:        registry,
		gen:             gen,
		repo:            repo,
		generateTimeout: generateTimeout,
		persistTimeout:  persistTimeout,
	}, nil
}

// Chat runs one turn for the authenticated subject. The session lock is held
// across the append+generate+append sequence so concurrent turns on the same
// session cannot interleave; turns on distinct sessions proceed in parallel.
//
// Persistence is best-effort: a reply that was already generated is returned
// even when the history append fails, and the failure is logged.
func (s *Service) Chat(ctx context.Context, subjectID, sessionID, prompt string) (Result, error) {
	sess, err := s.registry.Resolve(sessionID, subjectID)
	if err != nil {
		return Result{}, err
	}

	sess.Lock()
	sess.Append(domain.RoleUser, prompt)

	genCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	reply, err := s.gen.Generate(genCtx, genai.Request{
		SystemPrompt:   sess.SystemPrompt,
		History:        sess.History(),
		Config:         sess.Config,
		SafetySettings: sess.SafetySettings,
	})
	cancel()
	if err != nil {
		// Roll back the provisional user turn so the history never
		// holds an unanswered prompt.
		sess.TruncateLast()
		sess.Unlock()
		slog.Error("Model generation failed", "session_id", sess.ID(), "subject_id", subjectID, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	sess.Append(domain.RoleModel, reply)
	sess.Unlock()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	if err := s.repo.AppendRecord(persistCtx, domain.ChatRecord{
		SubjectID: subjectID,
		SessionID: sess.ID(),
		Prompt:    prompt,
		CreatedAt: time.Now(),
	}); err != nil {
		slog.Warn("Chat record persistence failed", "session_id", sess.ID(), "subject_id", subjectID, "error", err)
	}

	return Result{Reply: reply, SessionID: sess.ID()}, nil
}
