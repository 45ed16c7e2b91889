package memory

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-service/internal/domain"
)

// ParticipantStore is an in-memory implementation of app.ParticipantRepository.
type ParticipantStore struct {
	mu        sync.RWMutex
	byToken   map[string]domain.Participant
	byID      map[string]string   // participant id -> token
	bySession map[string][]string // quiz id -> tokens in join order
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		byToken:   make(map[string]domain.Participant),
		byID:      make(map[string]string),
		bySession: make(map[string][]string),
	}
}

func (s *ParticipantStore) Create(ctx context.Context, p domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[p.Token]; exists {
		return fmt.Errorf("%w: participant token already registered", domain.ErrConflict)
	}
	if _, exists := s.byID[p.ID]; exists {
		return fmt.Errorf("%w: participant id already registered", domain.ErrConflict)
	}
	s.byToken[p.Token] = cloneParticipant(p)
	s.byID[p.ID] = p.Token
	s.bySession[p.QuizID] = append(s.bySession[p.QuizID], p.Token)
	return nil
}

func (s *ParticipantStore) GetByToken(ctx context.Context, token string) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byToken[token]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

func (s *ParticipantStore) Update(ctx context.Context, token string, fn func(*domain.Participant) error) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byToken[token]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	next := cloneParticipant(current)
	if err := fn(&next); err != nil {
		return domain.Participant{}, err
	}
	// Identity fields are owned by the store.
	next.ID, next.Token, next.QuizID = current.ID, current.Token, current.QuizID
	s.byToken[token] = next
	return cloneParticipant(next), nil
}

func (s *ParticipantStore) ListBySession(ctx context.Context, quizID string) ([]domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := s.bySession[quizID]
	out := make([]domain.Participant, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, cloneParticipant(s.byToken[token]))
	}
	return out, nil
}

func (s *ParticipantStore) DeleteBySession(ctx context.Context, quizID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.bySession[quizID] {
		delete(s.byID, s.byToken[token].ID)
		delete(s.byToken, token)
	}
	delete(s.bySession, quizID)
	return nil
}

func cloneParticipant(p domain.Participant) domain.Participant {
	if p.Answers != nil {
		answers := make([]domain.Answer, len(p.Answers))
		copy(answers, p.Answers)
		p.Answers = answers
	}
	return p
}
