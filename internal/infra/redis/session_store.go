package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/domain"
)

const maxTxRetries = 8

// SessionStore is a Redis implementation of app.SessionRepository.
// Layout:
//
//	quiz:session:{quizID}      JSON session record, no expiry (holds the archive)
//	quiz:session:code:{CODE}   quiz id of the live session using CODE, expires with ttl
//
// Updates run as WATCH/MULTI transactions so that several service instances
// sharing one Redis cannot lose each other's writes.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, quizID string) (domain.Session, error) {
	return readSession(ctx, s.client, s.key(quizID))
}

func (s *SessionStore) Update(ctx context.Context, quizID string, fn func(*domain.Session) error) (domain.Session, error) {
	key := s.key(quizID)
	var (
		result domain.Session
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		fnErr = nil
		current, err := readSession(ctx, tx, key)
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			current = domain.NewSession(quizID)
		case err != nil:
			return err
		}

		next := current
		next.ArchivedResults = append([]domain.ArchivedResult(nil), current.ArchivedResults...)
		if err := fn(&next); err != nil {
			fnErr = err
			return err
		}
		next.QuizID = quizID

		claim := next.Live && next.SessionCode != "" && next.SessionCode != current.SessionCode
		if claim {
			codeKey := s.codeKey(next.SessionCode)
			if err := tx.Watch(ctx, codeKey).Err(); err != nil {
				return storeErr(err)
			}
			owner, err := tx.Get(ctx, codeKey).Result()
			switch {
			case err == nil && owner != quizID:
				return fmt.Errorf("%w: session code %s in use", domain.ErrConflict, next.SessionCode)
			case err != nil && !errors.Is(err, redis.Nil):
				return storeErr(err)
			}
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.SessionCode != "" && (!next.Live || next.SessionCode != current.SessionCode) {
				pipe.Del(ctx, s.codeKey(current.SessionCode))
			}
			if next.Live && next.SessionCode != "" {
				pipe.Set(ctx, s.codeKey(next.SessionCode), quizID, s.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return domain.Session{}, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		}
		return domain.Session{}, storeErr(err)
	}
	return domain.Session{}, fmt.Errorf("%w: session %s", domain.ErrConflict, quizID)
}

func (s *SessionStore) FindLiveByCode(ctx context.Context, code string) (domain.Session, error) {
	quizID, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, fmt.Errorf("%w: code %q", domain.ErrSessionNotFound, code)
	}
	if err != nil {
		return domain.Session{}, storeErr(err)
	}
	session, err := s.Get(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.Live || session.SessionCode != code {
		return domain.Session{}, fmt.Errorf("%w: code %q", domain.ErrSessionNotFound, code)
	}
	return session, nil
}

func (s *SessionStore) key(quizID string) string {
	return "quiz:session:" + quizID
}

func (s *SessionStore) codeKey(code string) string {
	return "quiz:session:code:" + code
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readSession(ctx context.Context, c getter, key string) (domain.Session, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, storeErr(err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

// storeErr classifies Redis failures. Context and domain errors pass through
// unchanged; anything else is a transient outage.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
