package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// MyClaims はJWTクレームの構造体定義です。
// UserID is the subject's UUID string; Name is an optional display name.
type MyClaims struct {
	UserID string `json:"userid"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
