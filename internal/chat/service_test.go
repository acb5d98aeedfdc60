package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samueljohnsiby/acharya-backend/internal/domain"
	"github.com/samueljohnsiby/acharya-backend/internal/genai"
	"github.com/samueljohnsiby/acharya-backend/internal/session"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []genai.Request
	reply    string
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, req genai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeRepo struct {
	mu      sync.Mutex
	records []domain.ChatRecord
	err     error
}

func (f *fakeRepo) AppendRecord(_ context.Context, record domain.ChatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeRepo) History(_ context.Context, subjectID string) ([]domain.ChatRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatRecord
	for _, record := range f.records {
		if record.SubjectID == subjectID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

func newTestService(t *testing.T, gen *fakeGenerator, repo *fakeRepo) (*Service, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry("system prompt", time.Hour)
	svc, err := NewService(registry, gen, repo, time.Second, time.Second)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, registry
}

func TestChat_SuccessfulTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "What do you already know about sorting?"}
	repo := &fakeRepo{}
	svc, registry := newTestService(t, gen, repo)

	result, err := svc.Chat(context.Background(), "subject-1", "", "Tell me about algorithms.")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if result.Reply != gen.reply {
		t.Errorf("Unexpected reply: %q", result.Reply)
	}
	if result.SessionID == "" {
		t.Fatal("Expected a session id")
	}

	sess := registry.Get(result.SessionID)
	if sess == nil {
		t.Fatal("Session should be registered")
	}
	sess.Lock()
	turns := sess.History()
	sess.Unlock()
	if len(turns) != 2 {
		t.Fatalf("Expected exactly 2 turns (prompt, reply), got %d", len(turns))
	}
	if turns[0].Role != domain.RoleUser || turns[0].Text != "Tell me about algorithms." {
		t.Errorf("Unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != domain.RoleModel || turns[1].Text != gen.reply {
		t.Errorf("Unexpected second turn: %+v", turns[1])
	}

	if len(repo.records) != 1 {
		t.Fatalf("Expected exactly 1 persisted record, got %d", len(repo.records))
	}
	if repo.records[0].SessionID != result.SessionID || repo.records[0].Prompt != "Tell me about algorithms." {
		t.Errorf("Unexpected persisted record: %+v", repo.records[0])
	}
}

func TestChat_SecondTurnSeesPriorContext(t *testing.T) {
	gen := &fakeGenerator{reply: "reply"}
	repo := &fakeRepo{}
	svc, _ := newTestService(t, gen, repo)

	first, err := svc.Chat(context.Background(), "subject-1", "", "first prompt")
	if err != nil {
		t.Fatalf("First turn failed: %v", err)
	}

	second, err := svc.Chat(context.Background(), "subject-1", first.SessionID, "second prompt")
	if err != nil {
		t.Fatalf("Second turn failed: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("Expected the same session id, got %s and %s", first.SessionID, second.SessionID)
	}

	if len(gen.requests) != 2 {
		t.Fatalf("Expected 2 generation calls, got %d", len(gen.requests))
	}
	history := gen.requests[1].History
	if len(history) != 3 {
		t.Fatalf("Expected 3 turns in second call context, got %d", len(history))
	}
	if history[0].Text != "first prompt" || history[1].Text != "reply" || history[2].Text != "second prompt" {
		t.Errorf("Context sent to the model is out of order: %+v", history)
	}
	if gen.requests[1].SystemPrompt != "system prompt" {
		t.Errorf("Expected the session's system prompt, got %q", gen.requests[1].SystemPrompt)
	}
}

func TestChat_GenerationFailureRollsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	repo := &fakeRepo{}
	svc, registry := newTestService(t, gen, repo)

	sess, _ := registry.Resolve("", "subject-1")
	_, err := svc.Chat(context.Background(), "subject-1", sess.ID(), "prompt")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Expected ErrUpstream, got %v", err)
	}

	sess.Lock()
	turns := sess.Len()
	sess.Unlock()
	if turns != 0 {
		t.Errorf("Expected the provisional user turn to be rolled back, got %d turns", turns)
	}
	if len(repo.records) != 0 {
		t.Errorf("Expected no persisted record on failure, got %d", len(repo.records))
	}
}

func TestChat_PersistenceFailureStillReturnsReply(t *testing.T) {
	gen := &fakeGenerator{reply: "the reply"}
	repo := &fakeRepo{err: errors.New("store unavailable")}
	svc, registry := newTestService(t, gen, repo)

	result, err := svc.Chat(context.Background(), "subject-1", "", "prompt")
	if err != nil {
		t.Fatalf("Chat should not fail when only persistence fails: %v", err)
	}
	if result.Reply != "the reply" {
		t.Errorf("Unexpected reply: %q", result.Reply)
	}

	sess := registry.Get(result.SessionID)
	sess.Lock()
	turns := sess.Len()
	sess.Unlock()
	if turns != 2 {
		t.Errorf("Expected both turns recorded despite persistence failure, got %d", turns)
	}
}

func TestChat_OwnershipMismatch(t *testing.T) {
	gen := &fakeGenerator{reply: "reply"}
	repo := &fakeRepo{}
	svc, registry := newTestService(t, gen, repo)

	sess, _ := registry.Resolve("", "owner")
	_, err := svc.Chat(context.Background(), "intruder", sess.ID(), "prompt")
	if !errors.Is(err, session.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if len(gen.requests) != 0 {
		t.Error("Generator must not be called for a rejected session")
	}
}

func TestChat_ConcurrentTurnsSameSession(t *testing.T) {
	gen := &fakeGenerator{reply: "reply"}
	repo := &fakeRepo{}
	svc, registry := newTestService(t, gen, repo)

	sess, _ := registry.Resolve("", "subject-1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Chat(context.Background(), "subject-1", sess.ID(), "prompt"); err != nil {
				t.Errorf("Chat failed: %v", err)
			}
		}()
	}
	wg.Wait()

	sess.Lock()
	turns := sess.History()
	sess.Unlock()
	if len(turns) != 20 {
		t.Fatalf("Expected 20 turns for 10 concurrent turns, got %d", len(turns))
	}
	// Appends must not interleave: the history alternates user/model.
	for i, turn := range turns {
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleModel
		}
		if turn.Role != want {
			t.Fatalf("Turn %d has role %s, want %s", i, turn.Role, want)
		}
	}
}
