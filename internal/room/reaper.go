package room

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"partyserver/models"
)

// DefaultRoomExpiry は WAITING のまま放置されたルームを終了させるまでの時間です。
const DefaultRoomExpiry = 24 * time.Hour

// ExpiryCandidates lists rooms old enough to be considered for expiry.
type ExpiryCandidates interface {
	WaitingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Room, error)
}

// Expirer ends one room if it still qualifies at cutoff.
type Expirer interface {
	Expire(ctx context.Context, code string, cutoff time.Time) (bool, error)
}

// Reaper ends WAITING rooms that were never started.
type Reaper struct {
	rooms   ExpiryCandidates
	expirer Expirer
	expiry  time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewReaper builds a Reaper. In the server rooms is the *Registry and expirer the *Service.
func NewReaper(rooms ExpiryCandidates, expirer Expirer, expiry time.Duration, opts ...Option) *Reaper {
	if expiry <= 0 {
		expiry = DefaultRoomExpiry
	}
	o := buildOptions(opts)
	return &Reaper{
		rooms:   rooms,
		expirer: expirer,
		expiry:  expiry,
		now:     o.now,
		log:     o.logger.With(zap.String("component", "room_reaper")),
	}
}

// Sweep ends every WAITING room created before now-expiry and returns how many
// were ended. A failure on one room is logged and the sweep moves on.
func (r *Reaper) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.expiry)
	r.log.Info("期限切れルームの掃除を開始", zap.Time("cutoff", cutoff))

	rooms, err := r.rooms.WaitingOlderThan(ctx, cutoff)
	if err != nil {
		r.log.Error("Failed to list expired rooms", zap.Error(err))
		return 0
	}

	codes := lo.Map(rooms, func(room models.Room, _ int) string { return room.Code })
	ended := 0
	for _, code := range codes {
		if ctx.Err() != nil {
			r.log.Warn("Sweep cancelled", zap.Int("ended", ended))
			return ended
		}
		ok, err := r.expirer.Expire(ctx, code, cutoff)
		if err != nil {
			r.log.Error("Failed to end expired room", zap.String("room_code", code), zap.Error(err))
			continue
		}
		if ok {
			ended++
		}
	}

	r.log.Info("期限切れルームの掃除が完了", zap.Int("candidates", len(codes)), zap.Int("ended", ended))
	return ended
}
