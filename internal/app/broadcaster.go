package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"live-quiz-service/internal/domain"
)

// Broadcaster delivers events to every subscriber of a quiz's channel.
// Implementations: in-process hub, Redis pub/sub.
type Broadcaster interface {
	Publish(ctx context.Context, quizID string, event domain.Event) error
}

const publishTimeout = time.Second

// publish sends events in order. It runs after the triggering write has been stored
// and never fails the caller: an event that cannot be delivered is handed to a
// background retry loop.
func (s *QuizService) publish(ctx context.Context, quizID string, events ...domain.Event) {
	for _, event := range events {
		if event.At.IsZero() {
			event.At = s.now()
		}
		event.QuizID = quizID

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := s.broadcaster.Publish(pctx, quizID, event)
		cancel()
		if err == nil {
			continue
		}
		s.logger.Warn("publish failed, scheduling retry", "quiz_id", quizID, "event", event.Type, "error", err)
		s.retryPublish(quizID, event)
	}
}

func (s *QuizService) retryPublish(quizID string, event domain.Event) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 50 * time.Millisecond
		policy.MaxElapsedTime = s.publishRetry
		attempt := 0
		err := backoff.Retry(func() error {
			attempt++
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			return s.broadcaster.Publish(ctx, quizID, event)
		}, policy)
		if err != nil {
			s.logger.Error("dropping event after retries", "quiz_id", quizID, "event", event.Type, "attempts", attempt, "error", err)
			return
		}
		s.logger.Info("event delivered after retry", "quiz_id", quizID, "event", event.Type, "attempts", attempt)
	}()
}

// Close waits for background publish retries to finish.
func (s *QuizService) Close() {
	s.inflight.Wait()
}
