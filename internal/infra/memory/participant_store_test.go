package memory

import (
	"context"
	"errors"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestParticipantStoreKeepsJoinOrder(t *testing.T) {
	ctx := context.Background()
	store := NewParticipantStore()

	for i, name := range []string{"Alice", "Bob", "Carol"} {
		p := domain.Participant{ID: "id-" + name, Token: "tok-" + name, Name: name, QuizID: "quiz-1", JoinSeq: int64(i + 1)}
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if err := store.Create(ctx, domain.Participant{ID: "other", Token: "tok-other", QuizID: "quiz-2"}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	list, err := store.ListBySession(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Name != "Alice" || list[2].Name != "Carol" {
		t.Fatalf("unexpected order %+v", list)
	}

	if err := store.DeleteBySession(ctx, "quiz-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetByToken(ctx, "tok-Alice"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant removed, got %v", err)
	}
	if _, err := store.GetByToken(ctx, "tok-other"); err != nil {
		t.Fatalf("other session participant should survive: %v", err)
	}
}

func TestParticipantStoreUpdateIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewParticipantStore()
	if err := store.Create(ctx, domain.Participant{ID: "p1", Token: "t1", QuizID: "quiz-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.Update(ctx, "t1", func(p *domain.Participant) error {
		p.Answers = append(p.Answers, domain.Answer{QuestionIndex: 0, Points: 50})
		p.Score += 50
		p.Token = "hijacked"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Token != "t1" || updated.Score != 50 {
		t.Fatalf("unexpected update result %+v", updated)
	}

	updated.Answers[0].Points = 999
	stored, err := store.GetByToken(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Answers[0].Points != 50 {
		t.Fatalf("caller mutation leaked into store: %+v", stored.Answers)
	}

	if _, err := store.Update(ctx, "missing", func(*domain.Participant) error { return nil }); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
