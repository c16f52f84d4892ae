package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"partyserver/internal/room"
	"partyserver/models"
)

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, models.Response{Success: true, Message: message, Data: data})
}

func respondFail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, models.Response{Success: false, Message: message})
}

// statusFor はエラー種別をHTTPステータスに対応付けます。
func statusFor(kind room.Kind) int {
	switch kind {
	case room.KindValidation, room.KindConflict, room.KindState:
		return http.StatusBadRequest
	case room.KindAuthorization:
		return http.StatusForbidden
	case room.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err using its room.Kind. Internal details are logged, not returned.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := room.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		respondFail(c, status, "internal server error")
		return
	}
	respondFail(c, status, err.Error())
}
