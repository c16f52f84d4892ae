package models

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantStatus string

const (
	ParticipantActive ParticipantStatus = "ACTIVE"
	ParticipantLeft   ParticipantStatus = "LEFT"
	ParticipantKicked ParticipantStatus = "KICKED"
)

type ParticipantRole string

const (
	RoleHost        ParticipantRole = "HOST"
	RoleParticipant ParticipantRole = "PARTICIPANT"
)

// Participant は1ユーザーの1ルームにおける参加エピソードです。
// Rows are mutated in place and never deleted.
type Participant struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID       uuid.UUID         `gorm:"type:uuid;not null;index:idx_participants_room_user" json:"roomId"`
	UserID       uuid.UUID         `gorm:"type:uuid;not null;index:idx_participants_room_user" json:"userId"`
	DisplayName  string            `gorm:"size:100" json:"displayName,omitempty"`
	Status       ParticipantStatus `gorm:"size:16;not null;index" json:"status"`
	Role         ParticipantRole   `gorm:"size:16;not null" json:"role"`
	VideoEnabled bool              `gorm:"not null;default:true" json:"videoEnabled"`
	AudioEnabled bool              `gorm:"not null;default:true" json:"audioEnabled"`
	JoinedAt     time.Time         `gorm:"not null" json:"joinedAt"`
	UpdatedAt    time.Time         `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
	LeftAt       *time.Time        `json:"leftAt,omitempty"`
}

func (p *Participant) IsHost() bool {
	return p.Role == RoleHost
}

func (p *Participant) IsActive() bool {
	return p.Status == ParticipantActive
}

// Label は通知メッセージに使う表示名です。名前がなければ "A participant" になります。
func (p *Participant) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return "A participant"
}
