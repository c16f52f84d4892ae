package middlewares

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"partyserver/models"
)

const (
	userIDKey   = "UserID"
	userNameKey = "UserName"
	// 有効期限がこれより短いトークンは再発行します
	refreshWindow = time.Hour
)

var (
	ErrNoToken      = errors.New("token is required")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoUser       = errors.New("no authenticated user")
)

// AuthMiddleware はJWTを検証し、ユーザーIDをコンテキストにセットします。
// The token comes from "Authorization: Bearer ..." or, for websocket
// upgrades, the token query parameter. A token close to expiry is reissued in
// the Authorization response header.
func AuthMiddleware(secret []byte, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ParseToken(secret, extractToken(c))
		if err != nil {
			logger.Warn("認証失敗", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Response{Success: false, Message: "Unauthorized"})
			return
		}
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			logger.Warn("トークンのユーザーIDが不正", zap.String("userID", claims.UserID))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Response{Success: false, Message: "Unauthorized"})
			return
		}

		c.Set(userIDKey, userID)
		c.Set(userNameKey, claims.Name)
		refreshTokenIfNeeded(c, secret, claims, logger)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret []byte, tokenString string) (*models.MyClaims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}
	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func refreshTokenIfNeeded(c *gin.Context, secret []byte, claims *models.MyClaims, logger *zap.Logger) {
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) >= refreshWindow {
		return
	}
	userID, _ := uuid.Parse(claims.UserID)
	newToken, err := GenerateToken(secret, userID, claims.Name, DefaultTokenTTL)
	if err != nil {
		logger.Error("Token generation error", zap.Error(err))
		return
	}
	c.Header("Authorization", newToken)
}

// CurrentUser returns the authenticated user set by AuthMiddleware.
func CurrentUser(c *gin.Context) (uuid.UUID, error) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, ErrNoUser
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoUser
	}
	return id, nil
}

// DisplayName returns the optional name claim of the authenticated user.
func DisplayName(c *gin.Context) string {
	return c.GetString(userNameKey)
}
