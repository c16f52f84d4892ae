// Package notify publishes room lifecycle notifications without blocking the caller.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"partyserver/internal/pubsub"
	"partyserver/models"
)

const (
	DefaultQueueSize = 256
	publishTimeout   = 5 * time.Second
)

type job struct {
	code    string
	payload []byte
}

// Broadcaster queues notifications and publishes them from a single worker.
// A full queue drops the notification; publish errors are logged and discarded.
type Broadcaster struct {
	pub   pubsub.Publisher
	log   *zap.Logger
	now   func() time.Time
	queue chan job

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewBroadcaster starts the publishing worker. Close stops it.
func NewBroadcaster(pub pubsub.Publisher, queueSize int, logger *zap.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Broadcaster{
		pub:   pub,
		log:   logger.With(zap.String("component", "notification_broadcaster")),
		now:   func() time.Time { return time.Now().UTC() },
		queue: make(chan job, queueSize),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Notify implements room.Notifier.
func (b *Broadcaster) Notify(code string, typ models.NotificationType, message string) {
	payload, err := json.Marshal(models.Notification{Type: typ, Message: message, Timestamp: b.now()})
	if err != nil {
		b.log.Error("通知のシリアライズに失敗しました", zap.String("room_code", code), zap.Error(err))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.Warn("Notification after close dropped", zap.String("room_code", code), zap.String("type", string(typ)))
		return
	}
	select {
	case b.queue <- job{code: code, payload: payload}:
	default:
		b.log.Warn("Notification queue full, dropping", zap.String("room_code", code), zap.String("type", string(typ)))
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	for j := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := b.pub.Publish(ctx, pubsub.RoomChannel(j.code), j.payload); err != nil {
			b.log.Error("通知の配信に失敗しました", zap.String("room_code", j.code), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting notifications and waits until queued ones are published.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	<-b.done
}
