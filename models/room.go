package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus はルームのライフサイクル上の状態です。
type RoomStatus string

const (
	RoomWaiting RoomStatus = "WAITING"
	RoomActive  RoomStatus = "ACTIVE"
	// RoomPaused is reserved; no transition currently enters it.
	RoomPaused RoomStatus = "PAUSED"
	RoomEnded  RoomStatus = "ENDED"
)

// Live reports whether the room still counts as the host's current room.
func (s RoomStatus) Live() bool {
	return s == RoomWaiting || s == RoomActive
}

// Room はホストが作成するグループセッションです。
// Participants are not embedded; they are queried by RoomID.
type Room struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code            string     `gorm:"size:8;not null;uniqueIndex:idx_rooms_code" json:"roomCode"`
	Name            string     `gorm:"size:100;not null" json:"roomName"`
	HostUserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"hostUserId"`
	Status          RoomStatus `gorm:"size:16;not null;index" json:"status"`
	MaxParticipants int        `gorm:"not null;default:10" json:"maxParticipants"`
	IsPrivate       bool       `gorm:"not null;default:false" json:"isPrivate"`
	CreatedAt       time.Time  `gorm:"not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
}

// IsHost reports whether userID owns the room.
func (r *Room) IsHost(userID uuid.UUID) bool {
	return r.HostUserID == userID
}
