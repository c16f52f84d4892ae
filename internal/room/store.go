package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"partyserver/models"
)

// Store errors returned by implementations of Store.
var (
	ErrRecordNotFound = errors.New("store: record not found")
	// ErrDuplicateCode is a unique violation on the room code.
	ErrDuplicateCode = errors.New("store: duplicate room code")
	// ErrHostHasLiveRoom is a unique violation on the one-live-room-per-host index.
	ErrHostHasLiveRoom = errors.New("store: host already has a live room")
	// ErrDuplicateActive is a unique violation on the one-active-episode-per-user index.
	ErrDuplicateActive = errors.New("store: user already has an active episode")
)

// Queries are the read operations available inside and outside a transaction.
type Queries interface {
	FindRoomByCode(code string) (*models.Room, error)
	CodeExists(code string) (bool, error)
	FindLiveRoomsByHost(hostUserID uuid.UUID) ([]models.Room, error)
	// FindParticipant returns the user's most recent episode in the room.
	FindParticipant(roomID, userID uuid.UUID) (*models.Participant, error)
	FindActiveParticipants(roomID uuid.UUID) ([]models.Participant, error)
	CountActiveParticipants(roomID uuid.UUID) (int64, error)
	FindWaitingRoomsOlderThan(cutoff time.Time) ([]models.Room, error)
	FindPublicWaitingRooms(limit int) ([]models.Room, error)
}

// Tx is a single atomic unit of work against the store.
type Tx interface {
	Queries
	// LockRoomByCode loads the room and holds a per-room lock until the transaction ends.
	LockRoomByCode(code string) (*models.Room, error)
	InsertRoom(room *models.Room) error
	UpdateRoom(room *models.Room) error
	InsertParticipant(p *models.Participant) error
	UpdateParticipant(p *models.Participant) error
}

// Store は永続化層の抽象です。
type Store interface {
	// Atomic runs fn in one transaction; any error from fn rolls everything back.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Queries(ctx context.Context) Queries
}
