package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
)

// messageBuffer bounds undelivered messages per subscriber. Job notifications
// only wake idle workers, so when the buffer is full a pending wake-up already
// covers the new one and the message is dropped.
const messageBuffer = 64

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type redisPubSub struct {
	client    *redis.Client
	pubsub    *redis.PubSub
	logger    *logger.CanonicalLogger
	messageCh chan Message
	cancel    context.CancelFunc
}

// NewRedisPubSub connects and pings Redis. Callers fall back to NewNop when it
// fails; the queue is polled either way.
func NewRedisPubSub(cfg RedisConfig, log *logger.CanonicalLogger) (PubSub, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: "heartbeat-pipeline",
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log = log.Component("redis")
	log.Info("redis client initialized", logger.String("addr", addr), logger.Int("db", cfg.DB))

	return &redisPubSub{
		client:    client,
		logger:    log,
		messageCh: make(chan Message, messageBuffer),
	}, nil
}

func (r *redisPubSub) Publish(ctx context.Context, channel string, message string) error {
	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		r.logger.Error("failed to publish message", logger.String("channel", channel), logger.Err(err))
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe starts one listener feeding the returned channel. A second call
// replaces the subscription.
func (r *redisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, nil
	}
	if r.cancel != nil {
		r.cancel()
		_ = r.pubsub.Close()
	}

	r.pubsub = r.client.Subscribe(ctx, channels...)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		r.pubsub = nil
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.listen(listenCtx)

	r.logger.Info("subscribed to redis channels", logger.Any("channels", channels))
	return r.messageCh, nil
}

func (r *redisPubSub) Unsubscribe(ctx context.Context, channels ...string) error {
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Unsubscribe(ctx, channels...)
}

func (r *redisPubSub) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	if err := r.client.Close(); err != nil {
		r.logger.Error("failed to close redis client", logger.Err(err))
		return err
	}
	return nil
}

func (r *redisPubSub) listen(ctx context.Context) {
	ch := r.pubsub.Channel()
	dropped := 0
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping redis listener", logger.Int("dropped", dropped))
			return
		case m, ok := <-ch:
			if !ok {
				r.logger.Info("redis subscription closed", logger.Int("dropped", dropped))
				return
			}
			select {
			case r.messageCh <- Message{Channel: m.Channel, Payload: m.Payload}:
			default:
				dropped++
			}
		}
	}
}
