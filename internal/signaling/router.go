package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"partyserver/internal/pubsub"
)

var ErrUnknownRoom = errors.New("signaling message for unknown room")

// RoomChecker reports whether a room code is live enough to relay for.
type RoomChecker interface {
	Exists(ctx context.Context, code string) bool
}

// Router は検証済みのシグナリングメッセージを pub/sub チャネルへ振り分けます。
// It keeps no state; delivery is at most once per current subscriber.
type Router struct {
	pub   pubsub.Publisher
	rooms RoomChecker
	log   *zap.Logger
}

// NewRouter returns a Router. rooms may be nil to skip the room check.
func NewRouter(pub pubsub.Publisher, rooms RoomChecker, logger *zap.Logger) *Router {
	return &Router{pub: pub, rooms: rooms, log: logger.With(zap.String("component", "signaling_router"))}
}

// Route publishes m on the room channel (join, leave) or on the recipient's
// targeted channel (offer, answer, ice-candidate). Invalid messages and
// targeted messages without a recipient are dropped and the reason returned.
func (r *Router) Route(ctx context.Context, m *Message) error {
	log := r.log.With(zap.String("room_code", m.RoomCode), zap.String("type", string(m.Type)), zap.String("from", m.From))

	if err := m.Validate(); err != nil {
		log.Warn("Dropping signaling message", zap.Error(err))
		return err
	}
	if r.rooms != nil && !r.rooms.Exists(ctx, m.RoomCode) {
		log.Warn("Dropping signaling message for unknown room")
		return ErrUnknownRoom
	}

	channel := pubsub.RoomChannel(m.RoomCode)
	if m.Type.Targeted() {
		to, err := m.Recipient()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		channel = pubsub.UserChannel(m.RoomCode, to)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode signaling message: %w", err)
	}
	if err := r.pub.Publish(ctx, channel, payload); err != nil {
		log.Error("シグナリングの配信に失敗しました", zap.String("channel", channel), zap.Error(err))
		return err
	}
	log.Debug("Signaling message routed", zap.String("channel", channel))
	return nil
}
