package room_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"partyserver/internal/room"
	"partyserver/models"
)

func TestReaper_Sweep(t *testing.T) {
	f := newFixture(t)
	reaper := room.NewReaper(f.registry, f.service, 24*time.Hour,
		room.WithClock(f.clock.Now), room.WithLogger(zaptest.NewLogger(t)))

	// Given two stale rooms, one stale but started, and one young room.
	staleHost, guest := uuid.New(), uuid.New()
	stale := f.createRoom(t, staleHost, 0)
	_, err := f.service.Join(f.ctx, stale.Code, guest, "")
	require.NoError(t, err)
	stale2 := f.createRoom(t, uuid.New(), 0)
	started := f.createRoom(t, uuid.New(), 0)
	require.NoError(t, f.service.Start(f.ctx, started.Code, started.HostUserID))

	f.clock.Advance(20 * time.Hour)
	young := f.createRoom(t, uuid.New(), 0)
	f.clock.Advance(5 * time.Hour)

	// When the sweep runs 25h after the first rooms were created.
	ended := reaper.Sweep(context.Background())

	// Then only the stale WAITING rooms end, via the host-leave cascade.
	assert.Equal(t, 2, ended)
	assert.Equal(t, models.RoomEnded, f.roomState(t, stale.Code).Status)
	assert.Equal(t, models.RoomEnded, f.roomState(t, stale2.Code).Status)
	assert.Equal(t, models.RoomActive, f.roomState(t, started.Code).Status)
	assert.Equal(t, models.RoomWaiting, f.roomState(t, young.Code).Status)

	assert.Equal(t, models.ParticipantLeft, f.participant(t, stale.Code, guest).Status)
	assert.Equal(t, models.ParticipantLeft, f.participant(t, stale.Code, staleHost).Status)

	// A second sweep finds nothing left to do.
	assert.Zero(t, reaper.Sweep(context.Background()))
}

func TestReaper_ExpireSkipsRoomThatNoLongerQualifies(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, uuid.New(), 0)
	f.clock.Advance(48 * time.Hour)
	require.NoError(t, f.service.Start(f.ctx, r.Code, r.HostUserID))

	ok, err := f.service.Expire(f.ctx, r.Code, f.clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.RoomActive, f.roomState(t, r.Code).Status)
}

func TestReaper_CancelledContext(t *testing.T) {
	f := newFixture(t)
	reaper := room.NewReaper(f.registry, f.service, time.Hour, room.WithClock(f.clock.Now))
	f.createRoom(t, uuid.New(), 0)
	f.clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, reaper.Sweep(ctx))
}

type staticCandidates []models.Room

func (c staticCandidates) WaitingOlderThan(context.Context, time.Time) ([]models.Room, error) {
	return c, nil
}

// flakyExpirer fails for the codes in fail and ends every other room.
type flakyExpirer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (e *flakyExpirer) Expire(_ context.Context, code string, _ time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, code)
	if e.fail[code] {
		return false, errors.New("database is locked")
	}
	return true, nil
}

func TestReaper_FailureOnOneRoomDoesNotStopOthers(t *testing.T) {
	candidates := staticCandidates{{Code: "AAAA0001"}, {Code: "BBBB0002"}, {Code: "CCCC0003"}}
	expirer := &flakyExpirer{fail: map[string]bool{"BBBB0002": true}}
	reaper := room.NewReaper(candidates, expirer, time.Hour, room.WithLogger(zaptest.NewLogger(t)))

	ended := reaper.Sweep(context.Background())

	assert.Equal(t, 2, ended)
	assert.Equal(t, []string{"AAAA0001", "BBBB0002", "CCCC0003"}, expirer.calls)
}

func TestReaper_ListingFailure(t *testing.T) {
	reaper := room.NewReaper(failingCandidates{}, &flakyExpirer{}, time.Hour)
	assert.Zero(t, reaper.Sweep(context.Background()))
}

type failingCandidates struct{}

func (failingCandidates) WaitingOlderThan(context.Context, time.Time) ([]models.Room, error) {
	return nil, errors.New("connection refused")
}
