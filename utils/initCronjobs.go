package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is a periodic cleanup task.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// StartCronJobs は期限切れルームの掃除ジョブを登録して開始します。
// The returned scheduler is owned by the caller; call StopCronJobs on shutdown.
// Overlapping runs are skipped.
func StartCronJobs(ctx context.Context, sweeper Sweeper, schedule string, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(schedule, func() {
		logger.Info("期限切れルームの掃除ジョブを開始")
		start := time.Now()
		ended := sweeper.Sweep(ctx)
		logger.Info("期限切れルームの掃除ジョブ完了", zap.Int("rooms_ended", ended), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}

// StopCronJobs stops scheduling and waits for a running job up to timeout.
func StopCronJobs(c *cron.Cron, timeout time.Duration, logger *zap.Logger) {
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(timeout):
		logger.Warn("Cron job did not finish before shutdown timeout")
	}
}
