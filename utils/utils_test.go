package utils_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"partyserver/utils"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep(context.Context) int {
	s.calls.Add(1)
	return 0
}

func TestInitLogger(t *testing.T) {
	logger, err := utils.InitLogger("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	logger, err = utils.InitLogger("development", "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = utils.InitLogger("development", "loud")
	assert.Error(t, err)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(utils.RequestLogger(zap.New(core)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/health", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestStartCronJobs(t *testing.T) {
	sweeper := &countingSweeper{}
	c, err := utils.StartCronJobs(context.Background(), sweeper, "@every 1s", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	utils.StopCronJobs(c, time.Second, zaptest.NewLogger(t))
}

func TestStartCronJobs_BadSchedule(t *testing.T) {
	_, err := utils.StartCronJobs(context.Background(), &countingSweeper{}, "every now and then", zaptest.NewLogger(t))
	assert.Error(t, err)
}
