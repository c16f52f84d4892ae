package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"partyserver/internal/pubsub"
	"partyserver/models"
)

const (
	pingPeriod     = 10 * time.Second // 10秒ごとにPingを送信
	pongWait       = 60 * time.Second // Pongが来なければ切断
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 16
)

const notMemberMessage = "you are no longer in this room"

// Client は1本のWebSocket接続です。
type Client struct {
	conn     *websocket.Conn
	UserID   uuid.UUID
	UserName string
	RoomCode string
	send     chan []byte
	log      *zap.Logger

	// isMember は現在もルームのACTIVEメンバーかどうかを確認します。
	isMember  func(ctx context.Context) bool
	evicted   chan struct{}
	evictOnce sync.Once
}

func newClient(conn *websocket.Conn, userID uuid.UUID, name, code string, isMember func(ctx context.Context) bool, logger *zap.Logger) *Client {
	return &Client{
		conn:     conn,
		UserID:   userID,
		UserName: name,
		RoomCode: code,
		send:     make(chan []byte, sendBuffer),
		log:      logger.With(zap.String("room_code", code), zap.String("user_id", userID.String())),
		isMember: isMember,
		evicted:  make(chan struct{}),
	}
}

// evict queues an error frame and asks the writer to close the connection.
func (c *Client) evict() {
	c.evictOnce.Do(func() {
		c.log.Info("Client is no longer a member, closing")
		c.sendErrorMessage(notMemberMessage)
		close(c.evicted)
	})
}

func (c *Client) isEvicted() bool {
	select {
	case <-c.evicted:
		return true
	default:
		return false
	}
}

// membershipEvents are the notifications after which a connection may have lost its seat.
var membershipEvents = map[models.NotificationType]bool{
	models.NotifyUserKicked: true,
	models.NotifyUserLeft:   true,
	models.NotifyRoomEnded:  true,
}

// lostMembership reports whether m is a membership notification after which
// this client is no longer an active member.
func (c *Client) lostMembership(ctx context.Context, m pubsub.Message) bool {
	if m.Channel != pubsub.RoomChannel(c.RoomCode) {
		return false
	}
	var n struct {
		Type models.NotificationType `json:"type"`
	}
	if err := json.Unmarshal(m.Payload, &n); err != nil || !membershipEvents[n.Type] {
		return false
	}
	return !c.isMember(ctx)
}

// sendErrorMessage queues an error frame for the client; it is dropped if the client is not keeping up.
func (c *Client) sendErrorMessage(message string) {
	frame, _ := json.Marshal(map[string]string{"type": "error", "message": message})
	select {
	case c.send <- frame:
	default:
		c.log.Warn("Client send buffer full, dropping error frame")
	}
}

// readPump はクライアントからのメッセージを読み取り handle に渡します。
// It returns when the connection fails or no pong arrives within pongWait.
func (c *Client) readPump(ctx context.Context, handle func(ctx context.Context, c *Client, data []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// Pongハンドラの設定: Pongメッセージを受信したら読み取りデッドラインを更新
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if c.isEvicted() {
			return
		}
		handle(ctx, c, message)
	}
}

// writePump is the only writer on the connection. It forwards subscription
// messages and queued frames and sends pings until ctx ends, a write fails or
// the client loses its seat in the room.
func (c *Client) writePump(ctx context.Context, sub pubsub.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.isEvicted() {
				c.flush()
				c.closeNotMember()
				return
			}
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m, ok := <-sub.Messages():
			if !ok {
				c.log.Warn("Subscription closed")
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
				return
			}
			if err := c.write(websocket.TextMessage, m.Payload); err != nil {
				return
			}
			if c.lostMembership(ctx, m) {
				c.closeNotMember()
				return
			}
		case <-c.evicted:
			c.flush()
			c.closeNotMember()
			return
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Info("Error sending ping", zap.Error(err))
				return
			}
		}
	}
}

// flush writes the frames already queued for the client.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) closeNotMember() {
	c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, notMemberMessage))
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
