// Package auth reads PocketBase auth tokens presented by clients
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims are the claims PocketBase puts in record auth tokens
type Claims struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	CollectionID string `json:"collectionId"`
	Refreshable  bool   `json:"refreshable"`
	jwt.RegisteredClaims
}

// FromHeader extracts the token from an Authorization header. PocketBase accepts
// the raw token as well as the "Bearer " form.
func FromHeader(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// ParseUserToken reads the caller identity from token. The signature is not checked here:
// the token is forwarded to PocketBase with every request and PocketBase rejects forged
// or revoked tokens. Expiry is checked locally so stale sessions fail fast.
func ParseUserToken(token string, now time.Time) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != "auth" || claims.ID == "" {
		return nil, fmt.Errorf("%w: not a record auth token", ErrInvalidToken)
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}
