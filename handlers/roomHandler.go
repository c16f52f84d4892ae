package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"partyserver/internal/room"
	"partyserver/middlewares"
	"partyserver/models"
)

// RoomHandler は /api/rooms 以下のエンドポイントを処理します。
type RoomHandler struct {
	registry     *room.Registry
	service      *room.Service
	shareBaseURL string
	logger       *zap.Logger
}

func NewRoomHandler(registry *room.Registry, service *room.Service, shareBaseURL string, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{registry: registry, service: service, shareBaseURL: shareBaseURL, logger: logger.With(zap.String("component", "room_handler"))}
}

// Register mounts the room routes. auth guards every route except validate
// and public; limit is applied to the mutating ones.
func (h *RoomHandler) Register(r gin.IRouter, auth, limit gin.HandlerFunc) {
	g := r.Group("/api/rooms")
	g.GET("/public", h.ListPublic)
	g.GET("/:code/validate", h.Validate)

	authed := g.Group("", auth)
	authed.POST("", limit, h.Create)
	authed.POST("/:code/join", limit, h.Join)
	authed.POST("/:code/leave", limit, h.Leave)
	authed.GET("/:code", h.Info)
	authed.GET("/:code/participants", h.Participants)
	authed.POST("/:code/kick/:userId", limit, h.Kick)
	authed.POST("/:code/reinstate/:userId", limit, h.Reinstate)
	authed.POST("/:code/media", limit, h.UpdateMedia)
	authed.POST("/:code/start", limit, h.Start)
}

// CreateRoomRequest はルーム作成リクエストのボディです。
type CreateRoomRequest struct {
	RoomName        string `json:"roomName" binding:"max=100"`
	MaxParticipants int    `json:"maxParticipants" binding:"omitempty,min=2,max=50"`
	IsPrivate       bool   `json:"isPrivate"`
}

// MediaRequest carries the new media flags; a missing flag means enabled.
type MediaRequest struct {
	VideoEnabled *bool `json:"videoEnabled"`
	AudioEnabled *bool `json:"audioEnabled"`
}

type RoomResponse struct {
	ID               uuid.UUID         `json:"id"`
	RoomCode         string            `json:"roomCode"`
	RoomName         string            `json:"roomName"`
	HostUserID       uuid.UUID         `json:"hostUserId"`
	Status           models.RoomStatus `json:"status"`
	MaxParticipants  int               `json:"maxParticipants"`
	IsPrivate        bool              `json:"isPrivate"`
	CreatedAt        time.Time         `json:"createdAt"`
	EndedAt          *time.Time        `json:"endedAt,omitempty"`
	ParticipantCount *int64            `json:"participantCount,omitempty"`
	IsHost           *bool             `json:"isHost,omitempty"`
	ShareURL         string            `json:"shareUrl,omitempty"`
}

type ParticipantResponse struct {
	UserID       uuid.UUID                `json:"userId"`
	DisplayName  string                   `json:"displayName,omitempty"`
	Role         models.ParticipantRole   `json:"role"`
	Status       models.ParticipantStatus `json:"status"`
	VideoEnabled bool                     `json:"videoEnabled"`
	AudioEnabled bool                     `json:"audioEnabled"`
	JoinedAt     time.Time                `json:"joinedAt"`
}

type ValidateResponse struct {
	Exists           bool              `json:"exists"`
	Status           models.RoomStatus `json:"status,omitempty"`
	IsFull           bool              `json:"isFull"`
	ParticipantCount int64             `json:"participantCount"`
	MaxParticipants  int               `json:"maxParticipants"`
}

func toRoomResponse(r models.Room) RoomResponse {
	return RoomResponse{
		ID:              r.ID,
		RoomCode:        r.Code,
		RoomName:        r.Name,
		HostUserID:      r.HostUserID,
		Status:          r.Status,
		MaxParticipants: r.MaxParticipants,
		IsPrivate:       r.IsPrivate,
		CreatedAt:       r.CreatedAt,
		EndedAt:         r.EndedAt,
	}
}

func toParticipantResponse(p models.Participant, _ int) ParticipantResponse {
	return ParticipantResponse{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		Role:         p.Role,
		Status:       p.Status,
		VideoEnabled: p.VideoEnabled,
		AudioEnabled: p.AudioEnabled,
		JoinedAt:     p.JoinedAt,
	}
}

func (h *RoomHandler) shareURL(code string) string {
	return h.shareBaseURL + "?room=" + url.QueryEscape(code)
}

// currentUser はユーザーIDを取得し、失敗時は401を返します。
func (h *RoomHandler) currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, err := middlewares.CurrentUser(c)
	if err != nil {
		respondFail(c, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *RoomHandler) Create(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength != 0 {
		h.logger.Info("Room create request bind error", zap.Error(err))
		respondFail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	name := req.RoomName
	if name == "" {
		if display := middlewares.DisplayName(c); display != "" {
			name = fmt.Sprintf("%s's Room", display)
		}
	}

	r, err := h.registry.CreateRoom(c.Request.Context(), room.CreateRoomParams{
		HostUserID:      userID,
		HostName:        middlewares.DisplayName(c),
		Name:            name,
		MaxParticipants: req.MaxParticipants,
		IsPrivate:       req.IsPrivate,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := toRoomResponse(*r)
	resp.ShareURL = h.shareURL(r.Code)
	resp.IsHost = lo.ToPtr(true)
	resp.ParticipantCount = lo.ToPtr(int64(1))
	respondOK(c, http.StatusCreated, "Room created successfully", resp)
}

func (h *RoomHandler) Join(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	r, err := h.service.Join(c.Request.Context(), c.Param("code"), userID, middlewares.DisplayName(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp := toRoomResponse(*r)
	resp.IsHost = lo.ToPtr(r.IsHost(userID))
	respondOK(c, http.StatusOK, "Joined room successfully", resp)
}

func (h *RoomHandler) Leave(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Leave(c.Request.Context(), c.Param("code"), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Left room successfully", nil)
}

func (h *RoomHandler) Info(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	info, err := h.registry.Info(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp := toRoomResponse(info.Room)
	resp.ParticipantCount = lo.ToPtr(info.ActiveCount)
	resp.IsHost = lo.ToPtr(info.Room.IsHost(userID))
	resp.ShareURL = h.shareURL(info.Room.Code)
	respondOK(c, http.StatusOK, "", resp)
}

// Participants lists active participants; only active members may see them.
func (h *RoomHandler) Participants(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	code := c.Param("code")
	if _, err := h.registry.FindByCode(ctx, code); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !h.service.IsUserInRoom(ctx, code, userID) {
		respondError(c, h.logger, room.ErrNotMember)
		return
	}
	participants, err := h.service.ActiveParticipants(ctx, code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", lo.Map(participants, toParticipantResponse))
}

func (h *RoomHandler) Kick(c *gin.Context) {
	h.hostAction(c, h.service.Kick, "Participant removed")
}

func (h *RoomHandler) Reinstate(c *gin.Context) {
	h.hostAction(c, h.service.Reinstate, "Participant reinstated")
}

func (h *RoomHandler) hostAction(c *gin.Context, action func(ctx context.Context, code string, host, target uuid.UUID) error, message string) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	target, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondFail(c, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := action(c.Request.Context(), c.Param("code"), userID, target); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, message, nil)
}

func (h *RoomHandler) UpdateMedia(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	video := lo.FromPtrOr(req.VideoEnabled, true)
	audio := lo.FromPtrOr(req.AudioEnabled, true)
	if err := h.service.UpdateMedia(c.Request.Context(), c.Param("code"), userID, video, audio); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Media settings updated", gin.H{"videoEnabled": video, "audioEnabled": audio})
}

func (h *RoomHandler) Start(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Start(c.Request.Context(), c.Param("code"), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Watch party started", nil)
}

// Validate never fails: unknown or malformed codes report exists=false.
func (h *RoomHandler) Validate(c *gin.Context) {
	info, err := h.registry.Info(c.Request.Context(), c.Param("code"))
	if err != nil {
		if room.KindOf(err) == room.KindInternal {
			h.logger.Error("Room validation failed", zap.Error(err))
		}
		respondOK(c, http.StatusOK, "", ValidateResponse{Exists: false})
		return
	}
	respondOK(c, http.StatusOK, "", ValidateResponse{
		Exists:           true,
		Status:           info.Room.Status,
		IsFull:           info.IsFull(),
		ParticipantCount: info.ActiveCount,
		MaxParticipants:  info.Room.MaxParticipants,
	})
}

func (h *RoomHandler) ListPublic(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rooms, err := h.registry.ListPublicWaiting(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", lo.Map(rooms, func(r models.Room, _ int) RoomResponse { return toRoomResponse(r) }))
}
