package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/samueljohnsiby/acharya-backend/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func TestSQLiteStore_AppendAndHistory(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	records := []domain.ChatRecord{
		{SubjectID: "subject-1", SessionID: "sess-1", Prompt: "first", CreatedAt: time.Now()},
		{SubjectID: "subject-1", SessionID: "sess-1", Prompt: "second", CreatedAt: time.Now()},
		{SubjectID: "subject-2", SessionID: "sess-2", Prompt: "other", CreatedAt: time.Now()},
	}
	for _, record := range records {
		if err := repo.AppendRecord(ctx, record); err != nil {
			t.Fatalf("AppendRecord failed: %v", err)
		}
	}

	got, err := repo.History(ctx, "subject-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records for subject-1, got %d", len(got))
	}
	if got[0].Prompt != "first" || got[1].Prompt != "second" {
		t.Errorf("Records out of append order: %+v", got)
	}
	if got[0].SessionID != "sess-1" {
		t.Errorf("Expected session id to round-trip, got %q", got[0].SessionID)
	}
}

func TestSQLiteStore_HistoryEmptySubject(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.History(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no records, got %d", len(got))
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	repo := newTestStore(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
