package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"partyserver/models"
)

// Service は参加者の状態遷移 (join/leave/kick/media/start) を管理します。
// Every mutation runs in one Store transaction holding the room lock, and
// notifications are emitted only after the transaction commits.
type Service struct {
	store    Store
	notifier Notifier
	opts     options
	log      *zap.Logger
}

func NewService(store Store, notifier Notifier, opts ...Option) *Service {
	if store == nil {
		panic("room: Store cannot be nil for Service")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	o := buildOptions(opts)
	return &Service{store: store, notifier: notifier, opts: o, log: o.logger.With(zap.String("component", "room_service"))}
}

// Join admits userID into the room, reactivating a LEFT episode when one exists.
// name is the caller's display name, shown in notifications; it may be empty.
func (s *Service) Join(ctx context.Context, code string, userID uuid.UUID, name string) (*models.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("room_code", code), zap.String("user_id", userID.String()))

	var joined *models.Room
	var label string
	err = s.store.Atomic(ctx, func(tx Tx) error {
		room, err := tx.LockRoomByCode(code)
		if err != nil {
			return err
		}
		if room.Status == models.RoomEnded {
			return ErrRoomEnded
		}

		existing, err := findEpisode(tx, room.ID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			switch existing.Status {
			case models.ParticipantActive:
				return ErrAlreadyInRoom
			case models.ParticipantKicked:
				return ErrKicked
			}
		}

		count, err := tx.CountActiveParticipants(room.ID)
		if err != nil {
			return err
		}
		if count >= int64(room.MaxParticipants) {
			return ErrRoomFull
		}

		now := s.opts.now()
		p := existing
		if p != nil {
			p.Status = models.ParticipantActive
			p.LeftAt = nil
			p.UpdatedAt = now
			if n := trimName(name); n != "" {
				p.DisplayName = n
			}
			if err := tx.UpdateParticipant(p); err != nil {
				return err
			}
		} else {
			p = &models.Participant{
				ID:           uuid.New(),
				RoomID:       room.ID,
				UserID:       userID,
				DisplayName:  trimName(name),
				Status:       models.ParticipantActive,
				Role:         models.RoleParticipant,
				VideoEnabled: true,
				AudioEnabled: true,
				JoinedAt:     now,
				UpdatedAt:    now,
			}
			if err := tx.InsertParticipant(p); err != nil {
				return err
			}
		}
		label = p.Label()
		joined = room
		return nil
	})
	if err != nil {
		err = translate(err, "failed to join room")
		log.Info("Join rejected", zap.Error(err))
		return nil, err
	}

	log.Info("User joined room")
	s.notifier.Notify(code, models.NotifyUserJoined, label+" joined the room")
	return joined, nil
}

// Leave closes the caller's active episode. When the caller is the host the
// room ends and every other active episode is closed in the same transaction.
func (s *Service) Leave(ctx context.Context, code string, userID uuid.UUID) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	log := s.log.With(zap.String("room_code", code), zap.String("user_id", userID.String()))

	var ended bool
	var label string
	err = s.store.Atomic(ctx, func(tx Tx) error {
		room, err := tx.LockRoomByCode(code)
		if err != nil {
			return err
		}
		if room.Status == models.RoomEnded {
			return ErrRoomEnded
		}
		p, err := findEpisode(tx, room.ID, userID)
		if err != nil {
			return err
		}
		if p == nil || !p.IsActive() {
			return ErrNotInRoom
		}

		label = p.Label()
		now := s.opts.now()
		closeEpisode(p, models.ParticipantLeft, now)
		if err := tx.UpdateParticipant(p); err != nil {
			return err
		}
		if p.IsHost() {
			ended = true
			return endRoomTx(tx, room, now)
		}
		return nil
	})
	if err != nil {
		err = translate(err, "failed to leave room")
		log.Info("Leave rejected", zap.Error(err))
		return err
	}

	if ended {
		log.Info("Host left, room ended")
		s.notifier.Notify(code, models.NotifyRoomEnded, "The room has been ended by the host")
		return nil
	}
	log.Info("User left room")
	s.notifier.Notify(code, models.NotifyUserLeft, label+" left the room")
	return nil
}

// Kick marks the target's episode KICKED. Only the host may kick, and the host cannot be kicked.
func (s *Service) Kick(ctx context.Context, code string, hostUserID, targetUserID uuid.UUID) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	log := s.log.With(zap.String("room_code", code), zap.String("user_id", hostUserID.String()), zap.String("target_user_id", targetUserID.String()))

	var label string
	err = s.store.Atomic(ctx, func(tx Tx) error {
		room, err := tx.LockRoomByCode(code)
		if err != nil {
			return err
		}
		if room.Status == models.RoomEnded {
			return ErrRoomEnded
		}
		if !room.IsHost(hostUserID) {
			return ErrNotHost
		}
		if room.IsHost(targetUserID) {
			return ErrCannotKickHost
		}
		p, err := findEpisode(tx, room.ID, targetUserID)
		if err != nil {
			return err
		}
		switch {
		case p == nil:
			return ErrParticipantNotFound
		case p.IsHost():
			return ErrCannotKickHost
		case p.Status == models.ParticipantKicked:
			return ErrAlreadyKicked
		}
		label = p.Label()
		closeEpisode(p, models.ParticipantKicked, s.opts.now())
		return tx.UpdateParticipant(p)
	})
	if err != nil {
		err = translate(err, "failed to kick participant")
		log.Info("Kick rejected", zap.Error(err))
		return err
	}

	log.Info("Participant kicked")
	s.notifier.Notify(code, models.NotifyUserKicked, label+" was removed from the room")
	return nil
}

// Reinstate lets the host undo a kick. The episode becomes LEFT, so the user may join again.
func (s *Service) Reinstate(ctx context.Context, code string, hostUserID, targetUserID uuid.UUID) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	log := s.log.With(zap.String("room_code", code), zap.String("user_id", hostUserID.String()), zap.String("target_user_id", targetUserID.String()))

	var label string
	err = s.store.Atomic(ctx, func(tx Tx) error {
		room, err := tx.LockRoomByCode(code)
		if err != nil {
			return err
		}
		if room.Status == models.RoomEnded {
			return ErrRoomEnded
		}
		if !room.IsHost(hostUserID) {
			return ErrNotHost
		}
		p, err := findEpisode(tx, room.ID, targetUserID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrParticipantNotFound
		}
		if p.Status != models.ParticipantKicked {
			return ErrNotKicked
		}
		label = p.Label()
		p.Status = models.ParticipantLeft
		p.UpdatedAt = s.opts.now()
		return tx.UpdateParticipant(p)
	})
	if err != nil {
		err = translate(err, "failed to reinstate participant")
		log.Info("Reinstate rejected", zap.Error(err))
		return err
	}

	log.Info("Participant reinstated")
	s.notifier.Notify(code, models.NotifyUserReinstated, label+" may rejoin the room")
	return nil
}

// UpdateMedia sets the media flags on the caller's active episode.
func (s *Service) UpdateMedia(ctx context.Context, code string, userID uuid.UUID, video, audio bool) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	log := s.log.With(zap.String("room_code", code), zap.String("user_id", userID.String()))

	err = s.store.Atomic(ctx, func(tx Tx) error {
		room, err := tx.LockRoomByCode(code)
		if err != nil {
			return err
		}
		if room.Status == models.RoomEnded {
			return ErrRoomEnded
		}
		p, err := findEpisode(tx, room.ID, userID)
		if err != nil {
			return err
		}
		if p == nil || !p.IsActive() {
			return ErrNotInRoom
		}
		p.VideoEnabled = video
		p.AudioEnabled = audio
		p.UpdatedAt = s.opts.now()
		return tx.UpdateParticipant(p)
	})
	if err != nil {
		err = translate(err, "failed to update media")
		log.Info("Media update rejected", zap.Error(err))
		return err
	}

	log.Debug("Media flags updated", zap.Bool("video", video), zap.Bool("audio", audio))
	s.notifier.Notify(code, models.NotifyMediaUpdated, "")
	return nil
}

// Start moves a WAITING or PAUSED room to ACTIVE. Host only.
func (s *Service) Start(ctx context.Context, code string, hostUserID uuid.UUID) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	log := s.log.With(zap.String("room_code", code), zap.String("user_id", hostUserID.String()))

	err = s.store.Atomic(ctx, func(tx Tx) error {
		room, err := tx.LockRoomByCode(code)
		if err != nil {
			return err
		}
		if room.Status == models.RoomEnded {
			return ErrRoomEnded
		}
		if !room.IsHost(hostUserID) {
			return ErrNotHost
		}
		if room.Status == models.RoomActive {
			return ErrAlreadyStarted
		}
		room.Status = models.RoomActive
		room.UpdatedAt = s.opts.now()
		return tx.UpdateRoom(room)
	})
	if err != nil {
		err = translate(err, "failed to start room")
		log.Info("Start rejected", zap.Error(err))
		return err
	}

	log.Info("Watch party started")
	s.notifier.Notify(code, models.NotifyWatchPartyStart, "Watch party has started!")
	return nil
}

// Expire ends a room that is still WAITING and was created before cutoff, using
// the same cascade as a host leaving. It reports false when the room no longer qualifies.
func (s *Service) Expire(ctx context.Context, code string, cutoff time.Time) (bool, error) {
	var expired bool
	err := s.store.Atomic(ctx, func(tx Tx) error {
		room, err := tx.LockRoomByCode(code)
		if err != nil {
			return err
		}
		if room.Status != models.RoomWaiting || !room.CreatedAt.Before(cutoff) {
			return nil
		}
		expired = true
		return endRoomTx(tx, room, s.opts.now())
	})
	if err != nil {
		return false, translate(err, "failed to expire room")
	}
	if expired {
		s.log.Info("Room expired", zap.String("room_code", code))
		s.notifier.Notify(code, models.NotifyRoomEnded, "The room has expired")
	}
	return expired, nil
}

// ActiveParticipants lists the room's ACTIVE episodes.
func (s *Service) ActiveParticipants(ctx context.Context, code string) ([]models.Participant, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	q := s.store.Queries(ctx)
	room, err := q.FindRoomByCode(code)
	if err != nil {
		return nil, translate(err, "failed to load room")
	}
	participants, err := q.FindActiveParticipants(room.ID)
	if err != nil {
		return nil, translate(err, "failed to list participants")
	}
	return participants, nil
}

// IsUserInRoom reports whether userID holds an ACTIVE episode in the room.
func (s *Service) IsUserInRoom(ctx context.Context, code string, userID uuid.UUID) bool {
	code, err := NormalizeCode(code)
	if err != nil {
		return false
	}
	q := s.store.Queries(ctx)
	room, err := q.FindRoomByCode(code)
	if err != nil {
		return false
	}
	p, err := findEpisode(q, room.ID, userID)
	if err != nil {
		s.log.Error("Membership check failed", zap.String("room_code", code), zap.Error(err))
		return false
	}
	return p != nil && p.IsActive()
}

// endRoomTx は部屋を ENDED にし、残っている全ての ACTIVE 参加者を LEFT にします。
func endRoomTx(tx Tx, room *models.Room, now time.Time) error {
	room.Status = models.RoomEnded
	room.EndedAt = &now
	room.UpdatedAt = now
	if err := tx.UpdateRoom(room); err != nil {
		return err
	}
	active, err := tx.FindActiveParticipants(room.ID)
	if err != nil {
		return err
	}
	for i := range active {
		closeEpisode(&active[i], models.ParticipantLeft, now)
		if err := tx.UpdateParticipant(&active[i]); err != nil {
			return err
		}
	}
	return nil
}

func closeEpisode(p *models.Participant, status models.ParticipantStatus, now time.Time) {
	p.Status = status
	p.LeftAt = &now
	p.UpdatedAt = now
}

// findEpisode returns nil without error when the user never joined the room.
func findEpisode(q Queries, roomID, userID uuid.UUID) (*models.Participant, error) {
	p, err := q.FindParticipant(roomID, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return p, err
}
