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

// ParticipantStore is a Redis implementation of app.ParticipantRepository.
//
//	quiz:participant:{token}        JSON participant record
//	quiz:participant:id:{id}        token of the participant with id
//	quiz:{quizID}:participants      tokens in join order
//
// All keys expire after ttl; each write refreshes it.
type ParticipantStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewParticipantStore(client *redis.Client, ttl time.Duration) *ParticipantStore {
	return &ParticipantStore{client: client, ttl: ttl}
}

// Create claims the participant id, then writes the record and appends its
// token to the session list in one transaction. A failed write releases the id.
func (s *ParticipantStore) Create(ctx context.Context, p domain.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}

	idKey := s.idKey(p.ID)
	ok, err := s.client.SetNX(ctx, idKey, p.Token, s.ttl).Result()
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return fmt.Errorf("%w: participant id already registered", domain.ErrConflict)
	}

	if err := s.insert(ctx, p, data); err != nil {
		if derr := s.client.Del(context.WithoutCancel(ctx), idKey).Err(); derr != nil {
			return errors.Join(err, fmt.Errorf("release participant id: %w", storeErr(derr)))
		}
		return err
	}
	return nil
}

func (s *ParticipantStore) insert(ctx context.Context, p domain.Participant, data []byte) error {
	key, listKey := s.key(p.Token), s.listKey(p.QuizID)
	var taken bool

	txf := func(tx *redis.Tx) error {
		taken = false
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			taken = true
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.RPush(ctx, listKey, p.Token)
			if s.ttl > 0 {
				pipe.Expire(ctx, listKey, s.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case taken:
			return fmt.Errorf("%w: participant token already registered", domain.ErrConflict)
		case errors.Is(err, redis.TxFailedErr):
			continue
		}
		return storeErr(err)
	}
	return fmt.Errorf("%w: participant create", domain.ErrConflict)
}

func (s *ParticipantStore) GetByToken(ctx context.Context, token string) (domain.Participant, error) {
	return readParticipant(ctx, s.client, s.key(token))
}

func (s *ParticipantStore) Update(ctx context.Context, token string, fn func(*domain.Participant) error) (domain.Participant, error) {
	key := s.key(token)
	var (
		result domain.Participant
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		fnErr = nil
		current, err := readParticipant(ctx, tx, key)
		if err != nil {
			fnErr = err
			return err
		}
		next := current
		next.Answers = append([]domain.Answer(nil), current.Answers...)
		if err := fn(&next); err != nil {
			fnErr = err
			return err
		}
		next.ID, next.Token, next.QuizID = current.ID, current.Token, current.QuizID

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal participant: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
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
			return domain.Participant{}, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		}
		return domain.Participant{}, storeErr(err)
	}
	return domain.Participant{}, fmt.Errorf("%w: participant update", domain.ErrConflict)
}

func (s *ParticipantStore) ListBySession(ctx context.Context, quizID string) ([]domain.Participant, error) {
	tokens, err := s.client.LRange(ctx, s.listKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]domain.Participant, 0, len(tokens))
	if len(tokens) == 0 {
		return out, nil
	}

	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = s.key(token)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Expired record; the list entry outlived it.
			continue
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal participant: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *ParticipantStore) DeleteBySession(ctx context.Context, quizID string) error {
	listKey := s.listKey(quizID)
	tokens, err := s.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return storeErr(err)
	}
	participants, err := s.ListBySession(ctx, quizID)
	if err != nil {
		return err
	}

	keys := []string{listKey}
	for _, token := range tokens {
		keys = append(keys, s.key(token))
	}
	for _, p := range participants {
		keys = append(keys, s.idKey(p.ID))
	}
	return storeErr(s.client.Del(ctx, keys...).Err())
}

func (s *ParticipantStore) key(token string) string {
	return "quiz:participant:" + token
}

func (s *ParticipantStore) idKey(id string) string {
	return "quiz:participant:id:" + id
}

func (s *ParticipantStore) listKey(quizID string) string {
	return "quiz:" + quizID + ":participants"
}

func readParticipant(ctx context.Context, c getter, key string) (domain.Participant, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, storeErr(err)
	}
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Participant{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	return p, nil
}
