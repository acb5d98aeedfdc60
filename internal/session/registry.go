// Package session manages live conversational contexts for the tutoring
// chat.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samueljohnsiby/acharya-backend/internal/domain"
)

// ErrNotOwner is returned when a caller references a session created for a
// different subject.
var ErrNotOwner = errors.New("session: not owned by caller")

// Session is one ongoing tutoring conversation. Its turn history is mutated
// only while the session mutex is held; the registry hands the same *Session
// to every request that references its id.
type Session struct {
	mu sync.Mutex

	id        string
	subjectID string
	turns     []domain.Turn

	// Immutable after creation.
	SystemPrompt   string
	Config         domain.GenerationConfig
	SafetySettings []domain.SafetySetting

	createdAt time.Time
	lastUsed  time.Time
}

// ID returns the server-assigned session id.
func (s *Session) ID() string { return s.id }

// SubjectID returns the subject the session was created for.
func (s *Session) SubjectID() string { return s.subjectID }

// Lock serializes one chat turn on this session. The caller must hold the
// lock across the append+generate+append sequence so concurrent turns on the
// same session cannot interleave.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Append adds one turn to the history. Caller must hold the lock.
func (s *Session) Append(role, text string) {
	s.turns = append(s.turns, domain.Turn{Role: role, Text: text})
	s.lastUsed = time.Now()
}

// TruncateLast drops the most recent turn. Used to roll back a provisional
// user turn when generation fails. Caller must hold the lock.
func (s *Session) TruncateLast() {
	if len(s.turns) > 0 {
		s.turns = s.turns[:len(s.turns)-1]
	}
}

// History returns a copy of the turn history. Caller must hold the lock.
func (s *Session) History() []domain.Turn {
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of recorded turns. Caller must hold the lock.
func (s *Session) Len() int { return len(s.turns) }

// Registry maps session ids to live sessions and creates new ones on demand.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	systemPrompt string
	ttl          time.Duration
}

// NewRegistry creates a registry whose new sessions carry the given system
// prompt. Sessions idle longer than ttl are removed by Sweep.
func NewRegistry(systemPrompt string, ttl time.Duration) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
		ttl:          ttl,
	}
}

// Resolve returns the live session for sessionID, or creates a new one when
// the id is absent or unknown. Ids are always server-assigned: an unknown
// caller-supplied id is never registered verbatim, so callers cannot collide
// with or guess another session's id. A known id owned by a different
// subject fails with ErrNotOwner.
func (r *Registry) Resolve(sessionID, subjectID string) (*Session, error) {
	if sessionID != "" {
		r.mu.RLock()
		sess, ok := r.sessions[sessionID]
		r.mu.RUnlock()
		if ok {
			if sess.subjectID != subjectID {
				return nil, ErrNotOwner
			}
			return sess, nil
		}
	}

	now := time.Now()
	sess := &Session{
		id:             uuid.NewString(),
		subjectID:      subjectID,
		SystemPrompt:   r.systemPrompt,
		Config:         domain.DefaultGenerationConfig(),
		SafetySettings: domain.DefaultSafetySettings(),
		createdAt:      now,
		lastUsed:       now,
	}

	r.mu.Lock()
	r.sessions[sess.id] = sess
	r.mu.Unlock()

	slog.Info("Session created", "session_id", sess.id, "subject_id", subjectID)
	return sess, nil
}

// Get returns the live session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle longer than the registry TTL.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		sess.mu.Lock()
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions on the given interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := r.Sweep(now); removed > 0 {
					slog.Info("Idle sessions evicted", "removed", removed)
				}
			}
		}
	}()
}
