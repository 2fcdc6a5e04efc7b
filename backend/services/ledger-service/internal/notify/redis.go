package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/models"
)

const DefaultChannel = "termledger:changes"

// RedisPublisher publishes events on a Redis channel behind a circuit breaker.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	breaker *gobreaker.CircuitBreaker
}

// NewRedisPublisher builds a publisher for channel.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-changes",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &RedisPublisher{client: client, channel: channel, breaker: breaker}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}
	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.client.Publish(ctx, p.channel, payload).Err()
	})
	if err != nil {
		return &TransportError{Op: "publish", Err: err}
	}
	return nil
}

// Broadcaster receives raw event payloads.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// RedisSubscriber relays the channel into a local Broadcaster. It resubscribes with
// exponential backoff while Redis is unreachable and only returns when ctx is done.
type RedisSubscriber struct {
	client     *redis.Client
	channel    string
	sink       Broadcaster
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewRedisSubscriber builds a subscriber for channel.
func NewRedisSubscriber(client *redis.Client, channel string, sink Broadcaster, logger *zap.Logger) *RedisSubscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSubscriber{
		client:     client,
		channel:    channel,
		sink:       sink,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run relays messages until ctx is done. Transport failures are logged and retried.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.minBackoff
	b.MaxInterval = s.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := s.relay(ctx, b.Reset)
		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		s.logger.Warn("change channel subscription lost, retrying",
			zap.String("channel", s.channel),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// relay subscribes once and forwards payloads until the subscription ends.
func (s *RedisSubscriber) relay(ctx context.Context, subscribed func()) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return &TransportError{Op: "subscribe", Err: err}
	}
	subscribed()
	s.logger.Info("subscribed to change channel", zap.String("channel", s.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return &TransportError{Op: "receive", Err: errors.New("subscription closed")}
			}
			s.sink.Broadcast([]byte(msg.Payload))
		}
	}
}
