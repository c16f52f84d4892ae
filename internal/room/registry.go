package room

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"partyserver/models"
)

// Registry owns Room records: code allocation, lookup and the one-live-room-per-host rule.
type Registry struct {
	store Store
	opts  options
	log   *zap.Logger
}

func NewRegistry(store Store, opts ...Option) *Registry {
	if store == nil {
		panic("room: Store cannot be nil for Registry")
	}
	o := buildOptions(opts)
	return &Registry{store: store, opts: o, log: o.logger.With(zap.String("component", "room_registry"))}
}

// CreateRoomParams はルーム作成リクエストの内容です。
type CreateRoomParams struct {
	HostUserID      uuid.UUID
	HostName        string
	Name            string
	MaxParticipants int
	IsPrivate       bool
}

// Info is a room together with its current active participant count.
type Info struct {
	Room        models.Room
	ActiveCount int64
}

// IsFull reports whether no further participant may join.
func (i *Info) IsFull() bool {
	return i.ActiveCount >= int64(i.Room.MaxParticipants)
}

// CreateRoom persists a WAITING room and its HOST participant in one transaction.
func (r *Registry) CreateRoom(ctx context.Context, p CreateRoomParams) (*models.Room, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "Watch Party"
	}
	if len([]rune(name)) > MaxRoomNameLength {
		return nil, ErrInvalidName
	}
	capacity := p.MaxParticipants
	if capacity == 0 {
		capacity = r.opts.defaultCapacity
	}
	if capacity < MinParticipants || capacity > MaxParticipantsLimit {
		return nil, ErrInvalidCapacity
	}

	log := r.log.With(zap.String("host_user_id", p.HostUserID.String()))
	now := r.opts.now()
	room := &models.Room{
		ID:              uuid.New(),
		Name:            name,
		HostUserID:      p.HostUserID,
		Status:          models.RoomWaiting,
		MaxParticipants: capacity,
		IsPrivate:       p.IsPrivate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := r.store.Atomic(ctx, func(tx Tx) error {
		live, err := tx.FindLiveRoomsByHost(p.HostUserID)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return ErrHostHasRoom
		}
		if err := r.insertWithUniqueCode(tx, room, log); err != nil {
			return err
		}
		return tx.InsertParticipant(&models.Participant{
			ID:           uuid.New(),
			RoomID:       room.ID,
			UserID:       p.HostUserID,
			DisplayName:  trimName(p.HostName),
			Status:       models.ParticipantActive,
			Role:         models.RoleHost,
			VideoEnabled: true,
			AudioEnabled: true,
			JoinedAt:     now,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		err = translate(err, "failed to create room")
		log.Warn("ルーム作成に失敗しました", zap.Error(err))
		return nil, err
	}

	log.Info("Room created", zap.String("room_code", room.Code), zap.String("room_id", room.ID.String()))
	return room, nil
}

// insertWithUniqueCode draws codes until an insert succeeds. The existence check
// skips obvious collisions; the unique index decides races between creators.
func (r *Registry) insertWithUniqueCode(tx Tx, room *models.Room, log *zap.Logger) error {
	for attempt := 1; attempt <= r.opts.maxAttempts; attempt++ {
		code, err := r.opts.codes.Generate()
		if err != nil {
			return internalError("failed to generate room code", err)
		}
		exists, err := tx.CodeExists(code)
		if err != nil {
			return err
		}
		if exists {
			log.Debug("Room code already taken, retrying", zap.String("room_code", code), zap.Int("attempt", attempt))
			continue
		}
		room.Code = code
		err = tx.InsertRoom(room)
		if errors.Is(err, ErrDuplicateCode) {
			log.Debug("Room code lost to a concurrent insert, retrying", zap.String("room_code", code), zap.Int("attempt", attempt))
			continue
		}
		return err
	}
	return ErrCodeExhausted
}

// FindByCode returns the room or ErrRoomNotFound.
func (r *Registry) FindByCode(ctx context.Context, code string) (*models.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	room, err := r.store.Queries(ctx).FindRoomByCode(code)
	if err != nil {
		return nil, translate(err, "failed to load room")
	}
	return room, nil
}

// Info returns the room with its active participant count.
func (r *Registry) Info(ctx context.Context, code string) (*Info, error) {
	room, err := r.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	count, err := r.store.Queries(ctx).CountActiveParticipants(room.ID)
	if err != nil {
		return nil, translate(err, "failed to count participants")
	}
	return &Info{Room: *room, ActiveCount: count}, nil
}

// Exists reports whether a room with this code is stored. It never fails;
// malformed codes and store errors both report false.
func (r *Registry) Exists(ctx context.Context, code string) bool {
	code, err := NormalizeCode(code)
	if err != nil {
		return false
	}
	ok, err := r.store.Queries(ctx).CodeExists(code)
	if err != nil {
		r.log.Error("Room existence check failed", zap.String("room_code", code), zap.Error(err))
		return false
	}
	return ok
}

// ListPublicWaiting returns WAITING rooms that are not private, newest first.
func (r *Registry) ListPublicWaiting(ctx context.Context, limit int) ([]models.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rooms, err := r.store.Queries(ctx).FindPublicWaitingRooms(limit)
	if err != nil {
		return nil, translate(err, "failed to list rooms")
	}
	return rooms, nil
}

// WaitingOlderThan lists WAITING rooms created before cutoff.
func (r *Registry) WaitingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Room, error) {
	rooms, err := r.store.Queries(ctx).FindWaitingRoomsOlderThan(cutoff)
	if err != nil {
		return nil, translate(err, "failed to list expired rooms")
	}
	return rooms, nil
}

// trimName bounds a display name to the stored column size.
func trimName(name string) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) > MaxRoomNameLength {
		r = r[:MaxRoomNameLength]
	}
	return string(r)
}

// translate maps store errors onto the room error taxonomy.
func translate(err error, msg string) error {
	var re *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &re):
		return err
	case errors.Is(err, ErrRecordNotFound):
		return ErrRoomNotFound
	case errors.Is(err, ErrDuplicateActive):
		return ErrAlreadyInRoom
	case errors.Is(err, ErrHostHasLiveRoom):
		return ErrHostHasRoom
	default:
		return internalError(msg, err)
	}
}
