package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBus は Redis Pub/Sub を使ったメッセージバスです。
type RedisBus struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisBus(rdb *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, log: logger.With(zap.String("component", "redis_bus"))}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	receivers, err := b.rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	b.log.Debug("Message published", zap.String("channel", channel), zap.Int64("subscribers", receivers), zap.Int("payload_size", len(payload)))
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so messages
// published after it returns are not missed.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan Message, 64), done: make(chan struct{})}
	go sub.forward(ps.Channel())
	return sub, nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) forward(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
