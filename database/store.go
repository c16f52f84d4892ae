package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"partyserver/internal/room"
	"partyserver/models"
)

const pgUniqueViolation = "23505"

// GormStore implements room.Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

var _ room.Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Atomic はコールバックを1つのトランザクションで実行します。
func (s *GormStore) Atomic(ctx context.Context, fn func(tx room.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) Queries(ctx context.Context) room.Queries {
	return &gormTx{db: s.db.WithContext(ctx)}
}

// Ping reports whether the underlying connection is usable.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) FindRoomByCode(code string) (*models.Room, error) {
	var r models.Room
	if err := t.db.Where("code = ?", code).First(&r).Error; err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

// LockRoomByCode takes a row lock on PostgreSQL. SQLite has no row locks; its
// transactions are serialised by the single connection instead.
func (t *gormTx) LockRoomByCode(code string) (*models.Room, error) {
	q := t.db
	if t.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var r models.Room
	if err := q.Where("code = ?", code).First(&r).Error; err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (t *gormTx) CodeExists(code string) (bool, error) {
	var count int64
	if err := t.db.Model(&models.Room{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *gormTx) FindLiveRoomsByHost(hostUserID uuid.UUID) ([]models.Room, error) {
	var rooms []models.Room
	err := t.db.Where("host_user_id = ? AND status IN ?", hostUserID,
		[]models.RoomStatus{models.RoomWaiting, models.RoomActive}).Find(&rooms).Error
	return rooms, err
}

func (t *gormTx) FindParticipant(roomID, userID uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	err := t.db.Where("room_id = ? AND user_id = ?", roomID, userID).
		Order("joined_at DESC").First(&p).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (t *gormTx) FindActiveParticipants(roomID uuid.UUID) ([]models.Participant, error) {
	var ps []models.Participant
	err := t.db.Where("room_id = ? AND status = ?", roomID, models.ParticipantActive).
		Order("joined_at ASC").Find(&ps).Error
	return ps, err
}

func (t *gormTx) CountActiveParticipants(roomID uuid.UUID) (int64, error) {
	var count int64
	err := t.db.Model(&models.Participant{}).
		Where("room_id = ? AND status = ?", roomID, models.ParticipantActive).Count(&count).Error
	return count, err
}

func (t *gormTx) FindWaitingRoomsOlderThan(cutoff time.Time) ([]models.Room, error) {
	var rooms []models.Room
	err := t.db.Where("status = ? AND created_at < ?", models.RoomWaiting, cutoff.UTC()).
		Order("created_at ASC").Find(&rooms).Error
	return rooms, err
}

func (t *gormTx) FindPublicWaitingRooms(limit int) ([]models.Room, error) {
	var rooms []models.Room
	err := t.db.Where("status = ? AND is_private = ?", models.RoomWaiting, false).
		Order("created_at DESC").Limit(limit).Find(&rooms).Error
	return rooms, err
}

// InsertRoom runs inside a savepoint so a unique violation leaves the outer
// transaction usable for the next code attempt.
func (t *gormTx) InsertRoom(r *models.Room) error {
	err := t.db.Transaction(func(sp *gorm.DB) error {
		return sp.Create(r).Error
	})
	return mapError(err)
}

func (t *gormTx) UpdateRoom(r *models.Room) error {
	return mapError(t.db.Save(r).Error)
}

func (t *gormTx) InsertParticipant(p *models.Participant) error {
	return mapError(t.db.Create(p).Error)
}

func (t *gormTx) UpdateParticipant(p *models.Participant) error {
	return mapError(t.db.Save(p).Error)
}

// mapError translates driver errors into the room store errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return room.ErrRecordNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "idx_rooms_code":
			return room.ErrDuplicateCode
		case "idx_rooms_live_host":
			return room.ErrHostHasLiveRoom
		case "idx_participants_active":
			return room.ErrDuplicateActive
		}
		return err
	}

	// SQLite reports the violated columns rather than the index name.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		switch {
		case strings.Contains(msg, "rooms.code"):
			return room.ErrDuplicateCode
		case strings.Contains(msg, "rooms.host_user_id"):
			return room.ErrHostHasLiveRoom
		case strings.Contains(msg, "participants.room_id"):
			return room.ErrDuplicateActive
		}
	}
	return err
}
