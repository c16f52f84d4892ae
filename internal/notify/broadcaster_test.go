package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"partyserver/internal/notify"
	"partyserver/models"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

func TestBroadcaster_PublishesNotification(t *testing.T) {
	pub := new(mockPublisher)
	var got models.Notification
	pub.On("Publish", mock.Anything, "room.ABCD1234", mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &got))
		}).
		Return(nil).Once()

	b := notify.NewBroadcaster(pub, 4, zaptest.NewLogger(t))
	b.Notify("ABCD1234", models.NotifyWatchPartyStart, "Watch party has started!")
	b.Close()

	pub.AssertExpectations(t)
	assert.Equal(t, models.NotifyWatchPartyStart, got.Type)
	assert.Equal(t, "Watch party has started!", got.Message)
	assert.False(t, got.Timestamp.IsZero())
}

func TestBroadcaster_PublishFailureIsSwallowed(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, "room.ABCD1234", mock.Anything).Return(errors.New("redis down")).Twice()

	b := notify.NewBroadcaster(pub, 4, zaptest.NewLogger(t))
	b.Notify("ABCD1234", models.NotifyUserJoined, "a")
	b.Notify("ABCD1234", models.NotifyUserLeft, "b")
	b.Close()

	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestBroadcaster_FullQueueDropsWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	b := notify.NewBroadcaster(pub, 1, zaptest.NewLogger(t))
	// The worker holds at most one in flight and the queue holds one more; the rest are dropped.
	for i := 0; i < 10; i++ {
		b.Notify("ABCD1234", models.NotifyMediaUpdated, "")
	}
	close(release)
	b.Close()

	calls := len(pub.Calls)
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 2)
}

func TestBroadcaster_NotifyAfterClose(t *testing.T) {
	pub := new(mockPublisher)
	b := notify.NewBroadcaster(pub, 1, zaptest.NewLogger(t))
	b.Close()
	b.Close()

	assert.NotPanics(t, func() { b.Notify("ABCD1234", models.NotifyUserJoined, "late") })
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
