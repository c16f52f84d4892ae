package models

import "time"

// NotificationType はルーム全体に配信されるライフサイクルイベントの種別です。
type NotificationType string

const (
	NotifyUserJoined      NotificationType = "USER_JOINED"
	NotifyUserLeft        NotificationType = "USER_LEFT"
	NotifyUserKicked      NotificationType = "USER_KICKED"
	NotifyUserReinstated  NotificationType = "USER_REINSTATED"
	NotifyMediaUpdated    NotificationType = "MEDIA_UPDATED"
	NotifyWatchPartyStart NotificationType = "WATCH_PARTY_STARTED"
	NotifyRoomEnded       NotificationType = "ROOM_ENDED"
)

// Notification is published on the room.{code} channel.
type Notification struct {
	Type      NotificationType `json:"type"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
