package memory

import (
	"context"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestHubDeliversPerQuiz(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe("quiz-1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("quiz-2")
	defer cancel2()

	if err := hub.Publish(context.Background(), "quiz-1", domain.Event{Type: domain.EventNewQuestion}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ev := <-ch1
	if ev.Type != domain.EventNewQuestion {
		t.Fatalf("expected new-question, got %s", ev.Type)
	}
	select {
	case ev := <-ch2:
		t.Fatalf("quiz-2 subscriber received %s", ev.Type)
	default:
	}
}

func TestHubDropsOldestForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("quiz-1")
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		_ = hub.Publish(context.Background(), "quiz-1", domain.Event{
			Type:        domain.EventLeaderboardUpdate,
			Leaderboard: []domain.LeaderboardEntry{{Score: i}},
		})
	}

	var last domain.Event
	for i := 0; i < subscriberBuffer; i++ {
		last = <-ch
	}
	if got := last.Leaderboard[0].Score; got != subscriberBuffer+4 {
		t.Fatalf("expected newest update to survive, got %d", got)
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("quiz-1")
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if n := hub.subscribers("quiz-1"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}
