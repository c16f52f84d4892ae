// Package pubsub names the room channels and carries messages over Redis.
package pubsub

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RoomChannel is the room-wide broadcast channel: membership notifications and join/leave signals.
func RoomChannel(code string) string {
	return "room." + code
}

// UserChannel is the targeted channel for offer/answer/ice-candidate sent to one user.
func UserChannel(code string, userID uuid.UUID) string {
	return fmt.Sprintf("room.%s.to.%s", code, userID)
}

// ChatChannel carries chat messages for the room.
func ChatChannel(code string) string {
	return "room." + code + ".chat"
}

// Publisher delivers a payload to every current subscriber of channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Message is one payload received on a subscribed channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription streams messages until Close is called.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Subscriber opens subscriptions on one or more channels.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}
