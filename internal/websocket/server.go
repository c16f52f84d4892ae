// Package websocket bridges room members' websocket connections to the room pub/sub channels.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"partyserver/internal/pubsub"
	"partyserver/internal/room"
	"partyserver/internal/signaling"
	"partyserver/middlewares"
	"partyserver/models"
)

// Membership reports whether a user holds an active episode in a room.
type Membership interface {
	IsUserInRoom(ctx context.Context, code string, userID uuid.UUID) bool
}

// Gateway は /ws/rooms/:code への接続を受け付けます。
type Gateway struct {
	members  Membership
	bus      pubsub.Subscriber
	router   *signaling.Router
	chat     *signaling.ChatRelay
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewGateway builds a Gateway. An empty allowedOrigins accepts any origin.
func NewGateway(members Membership, bus pubsub.Subscriber, router *signaling.Router, chat *signaling.ChatRelay, allowedOrigins []string, logger *zap.Logger) *Gateway {
	return &Gateway{
		members: members,
		bus:     bus,
		router:  router,
		chat:    chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || lo.Contains(allowedOrigins, origin)
			},
		},
		log: logger.With(zap.String("component", "ws_gateway")),
	}
}

// HandleConnections upgrades the request after checking the caller is an
// active member, then relays until either side disconnects.
func (g *Gateway) HandleConnections(c *gin.Context) {
	userID, err := middlewares.CurrentUser(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.Response{Success: false, Message: "Unauthorized"})
		return
	}
	code, err := room.NormalizeCode(c.Param("code"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.Response{Success: false, Message: err.Error()})
		return
	}
	if !g.members.IsUserInRoom(c.Request.Context(), code, userID) {
		c.AbortWithStatusJSON(http.StatusForbidden, models.Response{Success: false, Message: "you are not in this room"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 接続前に購読しておくことで、接続直後のメッセージを取りこぼさない
	sub, err := g.bus.Subscribe(ctx, pubsub.RoomChannel(code), pubsub.UserChannel(code, userID), pubsub.ChatChannel(code))
	if err != nil {
		g.log.Error("Failed to subscribe", zap.String("room_code", code), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.Response{Success: false, Message: "failed to open room channel"})
		return
	}
	defer sub.Close()

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		g.log.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	isMember := func(ctx context.Context) bool { return g.members.IsUserInRoom(ctx, code, userID) }
	client := newClient(conn, userID, middlewares.DisplayName(c), code, isMember, g.log)
	client.log.Info("New client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.writePump(ctx, sub)
		// 書き込み側が終了したら読み取りも終わらせる
		conn.Close()
	}()
	client.readPump(ctx, g.handleMessage)
	cancel()
	<-done
	client.log.Info("Client removed")
}

type inbound struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// handleMessage dispatches one inbound frame. The sender and room are taken
// from the connection, never from the frame. A sender who has left or been
// removed since connecting is disconnected instead of relayed.
func (g *Gateway) handleMessage(ctx context.Context, c *Client, data []byte) {
	if !c.isMember(ctx) {
		c.evict()
		return
	}

	var head inbound
	if err := json.Unmarshal(data, &head); err != nil {
		c.sendErrorMessage("invalid message")
		return
	}

	if head.Type == "chat" {
		if err := g.chat.Relay(ctx, c.RoomCode, c.UserID, c.UserName, head.Message); err != nil {
			c.sendErrorMessage(clientError(err))
		}
		return
	}

	msg, err := signaling.Decode(data)
	if err != nil {
		c.sendErrorMessage("invalid message")
		return
	}
	msg.From = c.UserID.String()
	msg.RoomCode = c.RoomCode
	if err := g.router.Route(ctx, msg); err != nil {
		c.sendErrorMessage(clientError(err))
	}
}

func clientError(err error) string {
	switch {
	case errors.Is(err, signaling.ErrMissingRecipient):
		return signaling.ErrMissingRecipient.Error()
	case errors.Is(err, signaling.ErrInvalidPayload), errors.Is(err, signaling.ErrInvalidMessage):
		return err.Error()
	case errors.Is(err, signaling.ErrUnknownRoom):
		return "room not found"
	default:
		return "message could not be delivered"
	}
}
