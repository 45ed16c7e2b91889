package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/domain"
)

const eventChannelPrefix = "quiz:events:"

// Broadcaster publishes session events on quiz:events:{quizID} so that every
// service instance sharing the Redis can deliver them to its own clients.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

func (b *Broadcaster) Publish(ctx context.Context, quizID string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return storeErr(b.client.Publish(ctx, eventChannelPrefix+quizID, data).Err())
}

// Sink receives events relayed from Redis. memory.Hub satisfies it.
type Sink interface {
	Publish(ctx context.Context, quizID string, event domain.Event) error
}

// Relay forwards every event published on quiz:events:* to a local Sink.
type Relay struct {
	client *redis.Client
	sink   Sink
	logger *slog.Logger
	ready  chan struct{}
}

func NewRelay(client *redis.Client, sink Sink, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, sink: sink, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the pattern subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run blocks until ctx is cancelled or the subscription fails.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, eventChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to events: %w", err)
	}
	close(r.ready)
	r.logger.Info("event relay subscribed", "pattern", eventChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("event subscription closed")
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	quizID := strings.TrimPrefix(msg.Channel, eventChannelPrefix)
	var event domain.Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		r.logger.Warn("discarding malformed event", "channel", msg.Channel, "error", err)
		return
	}
	if err := r.sink.Publish(ctx, quizID, event); err != nil {
		r.logger.Warn("relay delivery failed", "quiz_id", quizID, "event", event.Type, "error", err)
	}
}
