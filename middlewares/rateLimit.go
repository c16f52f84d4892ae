package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"partyserver/models"
)

// RateLimit は一定時間内のリクエスト数をユーザー単位で制限します。
// Requests without an authenticated user are keyed by client IP. Redis
// failures let the request through.
func RateLimit(rdb *redis.Client, max int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()
		if userID, err := CurrentUser(c); err == nil {
			key = "ratelimit:user:" + userID.String()
		}

		ctx := c.Request.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Error("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		// 最初のリクエストでウィンドウを開始
		if count == 1 {
			if err := rdb.Expire(ctx, key, window).Err(); err != nil {
				logger.Error("Failed to set rate limit window", zap.String("key", key), zap.Error(err))
			}
		}

		if count > int64(max) {
			c.Header("Retry-After", fmt.Sprintf("%.0f", window.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.Response{Success: false, Message: "Too many requests"})
			return
		}
		c.Next()
	}
}
