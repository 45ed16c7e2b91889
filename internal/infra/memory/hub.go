package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

const subscriberBuffer = 16

// Hub is the in-process fan-out for session events. It implements app.Broadcaster
// and is also the delivery end of the Redis relay.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel of events for quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(quizID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[quizID] == nil {
		h.subs[quizID] = make(map[chan domain.Event]struct{})
	}
	h.subs[quizID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[quizID][ch]; ok {
				delete(h.subs[quizID], ch)
				close(ch)
			}
			if len(h.subs[quizID]) == 0 {
				delete(h.subs, quizID)
			}
		})
	}
	return ch, cancel
}

// Publish delivers event to every current subscriber of quizID. A subscriber whose
// buffer is full loses its oldest pending event rather than blocking the session.
func (h *Hub) Publish(_ context.Context, quizID string, event domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[quizID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

func (h *Hub) subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[quizID])
}
