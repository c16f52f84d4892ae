package middlewares

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"partyserver/models"
)

const DefaultTokenTTL = 72 * time.Hour

// GenerateToken issues an HS256 token for userID. Identity is owned by an
// external service; this exists for local development and tests.
func GenerateToken(secret []byte, userID uuid.UUID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &models.MyClaims{
		UserID: userID.String(),
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
