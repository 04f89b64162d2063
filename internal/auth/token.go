// Package auth issues and verifies the bearer tokens that carry an
// editing identity: who the user is, which editing session they are in,
// and what they are allowed to do.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"newsdesk/authoring/internal/session"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type Claims struct {
	SessionID  string             `json:"sid"`
	Desks      []string           `json:"desks,omitempty"`
	Privileges session.Privileges `json:"privileges"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for a new editing session. The subject is the
// user id; the session id lives in a private claim so two tabs of the
// same user still get distinct locks.
func IssueToken(secret []byte, ctx session.Context, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID:  ctx.SessionID,
		Desks:      ctx.Desks,
		Privileges: ctx.Privileges,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ctx.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken verifies the signature and expiry and reconstructs the
// session context the token was issued for.
func ParseToken(secret []byte, raw string) (session.Context, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return session.Context{}, ErrExpiredToken
		}
		return session.Context{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" || claims.SessionID == "" {
		return session.Context{}, ErrInvalidToken
	}
	return session.Context{
		SessionID:  claims.SessionID,
		UserID:     claims.Subject,
		Desks:      claims.Desks,
		Privileges: claims.Privileges,
	}, nil
}
