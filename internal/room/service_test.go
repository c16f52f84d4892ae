package room_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyserver/internal/room"
	"partyserver/models"
)

func TestScenario_HostLeaveEndsRoom(t *testing.T) {
	f := newFixture(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	r := f.createRoom(t, a, 0)
	require.Len(t, r.Code, room.CodeLength)

	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)
	active, err := f.service.ActiveParticipants(f.ctx, r.Code)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.service.Leave(f.ctx, r.Code, a))

	ended := f.roomState(t, r.Code)
	assert.Equal(t, models.RoomEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, ended.EndedAt.Equal(f.clock.Now()))

	pb := f.participant(t, r.Code, b)
	assert.Equal(t, models.ParticipantLeft, pb.Status)
	require.NotNil(t, pb.LeftAt)

	active, err = f.service.ActiveParticipants(f.ctx, r.Code)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.service.Join(f.ctx, r.Code, c, "")
	require.ErrorIs(t, err, room.ErrRoomEnded)
	assert.Equal(t, "room has ended", err.Error())
	assert.Equal(t, room.KindState, room.KindOf(err))

	assert.Equal(t, []models.NotificationType{models.NotifyUserJoined, models.NotifyRoomEnded}, f.notifier.Types())
}

func TestScenario_RoomFull(t *testing.T) {
	f := newFixture(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	r := f.createRoom(t, a, 2)

	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)

	_, err = f.service.Join(f.ctx, r.Code, c, "")
	require.ErrorIs(t, err, room.ErrRoomFull)
	assert.Equal(t, "room is full", err.Error())
	assert.Equal(t, room.KindConflict, room.KindOf(err))

	// State unchanged: no episode for C, count still 2.
	q := f.store.Queries(f.ctx)
	_, err = q.FindParticipant(r.ID, c)
	require.ErrorIs(t, err, room.ErrRecordNotFound)
	count, err := q.CountActiveParticipants(r.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	f.requireHostInvariant(t, r.Code)
}

func TestJoin_AlreadyInRoom(t *testing.T) {
	f := newFixture(t)
	host, b := uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)

	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)
	_, err = f.service.Join(f.ctx, r.Code, b, "")
	require.ErrorIs(t, err, room.ErrAlreadyInRoom)

	_, err = f.service.Join(f.ctx, r.Code, host, "")
	require.ErrorIs(t, err, room.ErrAlreadyInRoom)
}

func TestJoin_ReactivatesLeftEpisode(t *testing.T) {
	f := newFixture(t)
	host, b := uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)

	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)
	first := f.participant(t, r.Code, b)

	require.NoError(t, f.service.Leave(f.ctx, r.Code, b))
	left := f.participant(t, r.Code, b)
	assert.Equal(t, models.ParticipantLeft, left.Status)
	require.NotNil(t, left.LeftAt)

	_, err = f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)
	again := f.participant(t, r.Code, b)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.ParticipantActive, again.Status)
	assert.Nil(t, again.LeftAt)
}

func TestJoin_UnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Join(f.ctx, "ZZZZZZZZ", uuid.New(), "")
	require.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestJoin_RaceForLastSlot(t *testing.T) {
	f := newFixture(t)
	host := uuid.New()
	r := f.createRoom(t, host, 3)

	const joiners = 6
	var wg sync.WaitGroup
	results := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Join(f.ctx, r.Code, uuid.New(), "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, full := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case room.KindOf(err) == room.KindConflict:
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, joiners-2, full)
	f.requireHostInvariant(t, r.Code)
}

func TestLeave_NotInRoom(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, uuid.New(), 0)

	err := f.service.Leave(f.ctx, r.Code, uuid.New())
	require.ErrorIs(t, err, room.ErrNotInRoom)
	assert.Equal(t, room.KindNotFound, room.KindOf(err))
}

func TestLeave_NonHostEmitsUserLeft(t *testing.T) {
	f := newFixture(t)
	host, b := uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)
	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)

	require.NoError(t, f.service.Leave(f.ctx, r.Code, b))

	assert.Equal(t, models.RoomWaiting, f.roomState(t, r.Code).Status)
	assert.Equal(t, []models.NotificationType{models.NotifyUserJoined, models.NotifyUserLeft}, f.notifier.Types())
	f.requireHostInvariant(t, r.Code)
}

func TestNotificationsUseDisplayName(t *testing.T) {
	f := newFixture(t)
	host, bob, anon := uuid.New(), uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)

	_, err := f.service.Join(f.ctx, r.Code, bob, "  Bob ")
	require.NoError(t, err)
	_, err = f.service.Join(f.ctx, r.Code, anon, "")
	require.NoError(t, err)
	assert.Equal(t, "Bob", f.participant(t, r.Code, bob).DisplayName)

	require.NoError(t, f.service.Kick(f.ctx, r.Code, host, bob))
	require.NoError(t, f.service.Reinstate(f.ctx, r.Code, host, bob))
	require.NoError(t, f.service.Leave(f.ctx, r.Code, anon))

	// A rejoin without a name keeps the stored one.
	_, err = f.service.Join(f.ctx, r.Code, bob, "")
	require.NoError(t, err)

	messages := make([]string, 0, len(f.notifier.events))
	for _, e := range f.notifier.events {
		messages = append(messages, e.Message)
	}
	assert.Equal(t, []string{
		"Bob joined the room",
		"A participant joined the room",
		"Bob was removed from the room",
		"Bob may rejoin the room",
		"A participant left the room",
		"Bob joined the room",
	}, messages)
	for _, m := range messages {
		assert.NotContains(t, m, bob.String())
		assert.NotContains(t, m, anon.String())
	}
}

func TestKick(t *testing.T) {
	f := newFixture(t)
	host, b, c := uuid.New(), uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)
	for _, u := range []uuid.UUID{b, c} {
		_, err := f.service.Join(f.ctx, r.Code, u, "")
		require.NoError(t, err)
	}

	t.Run("non-host cannot kick", func(t *testing.T) {
		err := f.service.Kick(f.ctx, r.Code, b, c)
		require.ErrorIs(t, err, room.ErrNotHost)
		assert.Equal(t, room.KindAuthorization, room.KindOf(err))
		assert.Equal(t, models.ParticipantActive, f.participant(t, r.Code, c).Status)
	})

	t.Run("host cannot be kicked", func(t *testing.T) {
		err := f.service.Kick(f.ctx, r.Code, host, host)
		require.ErrorIs(t, err, room.ErrCannotKickHost)
		assert.Equal(t, room.KindAuthorization, room.KindOf(err))
	})

	t.Run("unknown participant", func(t *testing.T) {
		err := f.service.Kick(f.ctx, r.Code, host, uuid.New())
		require.ErrorIs(t, err, room.ErrParticipantNotFound)
	})

	t.Run("host kicks participant", func(t *testing.T) {
		require.NoError(t, f.service.Kick(f.ctx, r.Code, host, c))
		p := f.participant(t, r.Code, c)
		assert.Equal(t, models.ParticipantKicked, p.Status)
		require.NotNil(t, p.LeftAt)
		assert.False(t, f.service.IsUserInRoom(f.ctx, r.Code, c))
	})

	t.Run("kicked user cannot rejoin", func(t *testing.T) {
		_, err := f.service.Join(f.ctx, r.Code, c, "")
		require.ErrorIs(t, err, room.ErrKicked)
		assert.Equal(t, room.KindAuthorization, room.KindOf(err))
	})

	t.Run("second kick conflicts", func(t *testing.T) {
		err := f.service.Kick(f.ctx, r.Code, host, c)
		require.ErrorIs(t, err, room.ErrAlreadyKicked)
	})

	f.requireHostInvariant(t, r.Code)
}

func TestReinstate(t *testing.T) {
	f := newFixture(t)
	host, b := uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)
	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)

	require.ErrorIs(t, f.service.Reinstate(f.ctx, r.Code, host, b), room.ErrNotKicked)

	require.NoError(t, f.service.Kick(f.ctx, r.Code, host, b))
	require.ErrorIs(t, f.service.Reinstate(f.ctx, r.Code, b, b), room.ErrNotHost)
	require.NoError(t, f.service.Reinstate(f.ctx, r.Code, host, b))
	assert.Equal(t, models.ParticipantLeft, f.participant(t, r.Code, b).Status)

	_, err = f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)
	assert.True(t, f.service.IsUserInRoom(f.ctx, r.Code, b))

	assert.Equal(t, []models.NotificationType{
		models.NotifyUserJoined,
		models.NotifyUserKicked,
		models.NotifyUserReinstated,
		models.NotifyUserJoined,
	}, f.notifier.Types())
}

func TestUpdateMedia(t *testing.T) {
	f := newFixture(t)
	host, b := uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)

	require.NoError(t, f.service.UpdateMedia(f.ctx, r.Code, host, false, true))
	p := f.participant(t, r.Code, host)
	assert.False(t, p.VideoEnabled)
	assert.True(t, p.AudioEnabled)
	assert.Equal(t, models.ParticipantActive, p.Status)

	err := f.service.UpdateMedia(f.ctx, r.Code, b, false, false)
	require.ErrorIs(t, err, room.ErrNotInRoom)

	require.Equal(t, []models.NotificationType{models.NotifyMediaUpdated}, f.notifier.Types())
	assert.Empty(t, f.notifier.events[0].Message)
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	host, b := uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)
	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)

	require.ErrorIs(t, f.service.Start(f.ctx, r.Code, b), room.ErrNotHost)
	require.NoError(t, f.service.Start(f.ctx, r.Code, host))
	assert.Equal(t, models.RoomActive, f.roomState(t, r.Code).Status)
	require.ErrorIs(t, f.service.Start(f.ctx, r.Code, host), room.ErrAlreadyStarted)

	require.NoError(t, f.service.Leave(f.ctx, r.Code, host))
	require.ErrorIs(t, f.service.Start(f.ctx, r.Code, host), room.ErrRoomEnded)
}

func TestStart_FromPaused(t *testing.T) {
	f := newFixture(t)
	host := uuid.New()
	r := f.createRoom(t, host, 0)

	require.NoError(t, f.store.Atomic(f.ctx, func(tx room.Tx) error {
		locked, err := tx.LockRoomByCode(r.Code)
		if err != nil {
			return err
		}
		locked.Status = models.RoomPaused
		return tx.UpdateRoom(locked)
	}))

	require.NoError(t, f.service.Start(f.ctx, r.Code, host))
	assert.Equal(t, models.RoomActive, f.roomState(t, r.Code).Status)
}

func TestOperationsOnEndedRoom(t *testing.T) {
	f := newFixture(t)
	host, b := uuid.New(), uuid.New()
	r := f.createRoom(t, host, 0)
	_, err := f.service.Join(f.ctx, r.Code, b, "")
	require.NoError(t, err)
	require.NoError(t, f.service.Leave(f.ctx, r.Code, host))

	require.ErrorIs(t, f.service.Leave(f.ctx, r.Code, b), room.ErrRoomEnded)
	require.ErrorIs(t, f.service.Kick(f.ctx, r.Code, host, b), room.ErrRoomEnded)
	require.ErrorIs(t, f.service.UpdateMedia(f.ctx, r.Code, b, true, true), room.ErrRoomEnded)
}

func TestIsUserInRoom(t *testing.T) {
	f := newFixture(t)
	host := uuid.New()
	r := f.createRoom(t, host, 0)

	assert.True(t, f.service.IsUserInRoom(f.ctx, r.Code, host))
	assert.False(t, f.service.IsUserInRoom(f.ctx, r.Code, uuid.New()))
	assert.False(t, f.service.IsUserInRoom(f.ctx, "ZZZZZZZZ", host))
	assert.False(t, f.service.IsUserInRoom(f.ctx, "bad", host))
}
