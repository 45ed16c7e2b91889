package memory

import (
	"context"
	"errors"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, err := store.Get(ctx, "quiz-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	session, err := store.Update(ctx, "quiz-1", func(s *domain.Session) error {
		if s.CurrentQuestionIndex != domain.NoQuestion {
			t.Fatalf("expected fresh session index -1, got %d", s.CurrentQuestionIndex)
		}
		s.Live = true
		s.SessionCode = "ABC123"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !session.Live || session.QuizID != "quiz-1" {
		t.Fatalf("unexpected session %+v", session)
	}

	found, err := store.FindLiveByCode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if found.QuizID != "quiz-1" {
		t.Fatalf("expected quiz-1, got %s", found.QuizID)
	}

	if _, err := store.Update(ctx, "quiz-1", func(s *domain.Session) error {
		s.Live = false
		s.SessionCode = ""
		return nil
	}); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := store.FindLiveByCode(ctx, "ABC123"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected code released, got %v", err)
	}
}

func TestSessionStoreRejectsCodeHeldByAnotherQuiz(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	goLive := func(s *domain.Session) error {
		s.Live = true
		s.SessionCode = "SAME01"
		return nil
	}
	if _, err := store.Update(ctx, "quiz-1", goLive); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := store.Update(ctx, "quiz-2", goLive); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := store.Get(ctx, "quiz-2"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected rejected write to leave no record, got %v", err)
	}
}

func TestSessionStoreFailedUpdateWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	boom := errors.New("boom")

	if _, err := store.Update(ctx, "quiz-1", func(s *domain.Session) error {
		s.Live = true
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.Get(ctx, "quiz-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}
}
