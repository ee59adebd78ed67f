package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	DisplayName string
	Verified    bool
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients by the
// identity service. This backend only consumes it.
type AccessTokenClaims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Verified    bool      `json:"verified"`
	jwt.RegisteredClaims
}
