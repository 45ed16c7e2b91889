package memory

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	codes    map[string]string // live session code -> quiz id
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Get(ctx context.Context, quizID string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[quizID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) Update(ctx context.Context, quizID string, fn func(*domain.Session) error) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[quizID]
	if !ok {
		current = domain.NewSession(quizID)
	}
	next := cloneSession(current)
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	next.QuizID = quizID

	if next.Live && next.SessionCode != "" {
		if owner, taken := s.codes[next.SessionCode]; taken && owner != quizID {
			return domain.Session{}, fmt.Errorf("%w: session code %s in use", domain.ErrConflict, next.SessionCode)
		}
	}
	if current.SessionCode != "" && s.codes[current.SessionCode] == quizID {
		delete(s.codes, current.SessionCode)
	}
	if next.Live && next.SessionCode != "" {
		s.codes[next.SessionCode] = quizID
	}
	s.sessions[quizID] = next
	return cloneSession(next), nil
}

func (s *SessionStore) FindLiveByCode(ctx context.Context, code string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	quizID, ok := s.codes[code]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: code %q", domain.ErrSessionNotFound, code)
	}
	session, ok := s.sessions[quizID]
	if !ok || !session.Live {
		return domain.Session{}, fmt.Errorf("%w: code %q", domain.ErrSessionNotFound, code)
	}
	return cloneSession(session), nil
}

func cloneSession(s domain.Session) domain.Session {
	if s.ArchivedResults != nil {
		results := make([]domain.ArchivedResult, len(s.ArchivedResults))
		copy(results, s.ArchivedResults)
		s.ArchivedResults = results
	}
	return s
}
