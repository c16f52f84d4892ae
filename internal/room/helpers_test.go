package room_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"partyserver/database"
	"partyserver/internal/room"
	"partyserver/models"
)

type event struct {
	Code    string
	Type    models.NotificationType
	Message string
}

// recordingNotifier collects notifications in emission order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) Notify(code string, typ models.NotificationType, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{Code: code, Type: typ, Message: message})
}

func (n *recordingNotifier) Types() []models.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]models.NotificationType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx      context.Context
	store    *database.GormStore
	registry *room.Registry
	service  *room.Service
	notifier *recordingNotifier
	clock    *clock
}

func newFixture(t *testing.T, opts ...room.Option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := database.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, logger))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := database.NewGormStore(db)
	notifier := &recordingNotifier{}
	opts = append([]room.Option{room.WithClock(clk.Now), room.WithLogger(logger)}, opts...)

	return &fixture{
		ctx:      context.Background(),
		store:    store,
		registry: room.NewRegistry(store, opts...),
		service:  room.NewService(store, notifier, opts...),
		notifier: notifier,
		clock:    clk,
	}
}

func (f *fixture) createRoom(t *testing.T, host uuid.UUID, capacity int) *models.Room {
	t.Helper()
	r, err := f.registry.CreateRoom(f.ctx, room.CreateRoomParams{HostUserID: host, Name: "Movie night", MaxParticipants: capacity})
	require.NoError(t, err)
	return r
}

// participant returns the user's latest episode in the room.
func (f *fixture) participant(t *testing.T, code string, user uuid.UUID) *models.Participant {
	t.Helper()
	q := f.store.Queries(f.ctx)
	r, err := q.FindRoomByCode(code)
	require.NoError(t, err)
	p, err := q.FindParticipant(r.ID, user)
	require.NoError(t, err)
	return p
}

func (f *fixture) roomState(t *testing.T, code string) *models.Room {
	t.Helper()
	r, err := f.registry.FindByCode(f.ctx, code)
	require.NoError(t, err)
	return r
}

// requireHostInvariant checks that a live room has exactly one active HOST episode owned by hostUserId.
func (f *fixture) requireHostInvariant(t *testing.T, code string) {
	t.Helper()
	r := f.roomState(t, code)
	if r.Status == models.RoomEnded {
		return
	}
	active, err := f.service.ActiveParticipants(f.ctx, code)
	require.NoError(t, err)
	hosts := 0
	for _, p := range active {
		if p.IsHost() {
			hosts++
			require.Equal(t, r.HostUserID, p.UserID)
		}
	}
	require.Equal(t, 1, hosts)
	require.LessOrEqual(t, len(active), r.MaxParticipants)
}
