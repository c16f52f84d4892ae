package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"partyserver/internal/pubsub"
)

const MaxChatLength = 2000

// ChatMessage is published on the room's chat channel. Chat is not stored.
type ChatMessage struct {
	Type      string    `json:"type"`
	From      string    `json:"from" validate:"required,uuid"`
	FromName  string    `json:"fromName,omitempty"`
	RoomCode  string    `json:"roomCode" validate:"required,len=8"`
	Message   string    `json:"message" validate:"required,max=2000"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRelay stamps chat text with its sender and the server time and publishes it.
type ChatRelay struct {
	pub pubsub.Publisher
	now func() time.Time
	log *zap.Logger
}

func NewChatRelay(pub pubsub.Publisher, logger *zap.Logger) *ChatRelay {
	return &ChatRelay{
		pub: pub,
		now: func() time.Time { return time.Now().UTC() },
		log: logger.With(zap.String("component", "chat_relay")),
	}
}

// Relay publishes text from sender to the room chat channel.
func (c *ChatRelay) Relay(ctx context.Context, code string, sender uuid.UUID, senderName, text string) error {
	msg := ChatMessage{
		Type:      "chat",
		From:      sender.String(),
		FromName:  senderName,
		RoomCode:  code,
		Message:   strings.TrimSpace(text),
		Timestamp: c.now(),
	}
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.pub.Publish(ctx, pubsub.ChatChannel(code), payload); err != nil {
		c.log.Error("チャットの配信に失敗しました", zap.String("room_code", code), zap.Error(err))
		return err
	}
	return nil
}
