package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the fields the planner reads from a Roshita access token.
// Signature verification is the backend's job; we only route on the claims.
type TokenClaims struct {
	UserID    string
	UserType  string
	PatientID string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry, with leeway.
func (c *TokenClaims) Expired(now time.Time, leeway time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(c.ExpiresAt)
}

// ParseClaims decodes token without verifying its signature.
func ParseClaims(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	out := &TokenClaims{
		UserID:    claimString(claims, "user_id"),
		UserType:  claimString(claims, "type", "user_type"),
		PatientID: claimString(claims, "patient_id"),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}
