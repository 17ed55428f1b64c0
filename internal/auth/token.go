// Package auth reads identity out of the credentials issued by the backend.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalize-ai/estate-assistant/internal/model"
)

// Claims are the fields the marketplace backend puts in its access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Name     string `json:"name"`
	UserType string `json:"user_type,omitempty"`
}

// TokenInfo is what the client learns from an access token.
type TokenInfo struct {
	Identity  model.Identity
	UserMode  model.UserMode
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// ParseToken decodes the claims of an access token. The signature is not
// checked here; the backend verifies it on every call.
func ParseToken(token string) (*TokenInfo, error) {
	if token == "" {
		return nil, model.ErrUnauthorized
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	info := &TokenInfo{
		Identity: model.Identity{ID: claims.Subject, DisplayName: claims.Name},
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	switch model.UserMode(claims.UserType) {
	case model.UserModeBuyer, model.UserModeSeller:
		info.UserMode = model.UserMode(claims.UserType)
	}

	return info, nil
}
