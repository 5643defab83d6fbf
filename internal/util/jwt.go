package util

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims identify the CRM credential a browser session acts for.
type SessionClaims struct {
	ID           string `json:"id"`
	Platform     string `json:"platform"`
	RCUserNumber string `json:"rcUserNumber,omitempty"`
	jwt.RegisteredClaims
}

// SessionSigner issues and verifies HS256 session tokens.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionSigner creates a signer. A zero ttl issues tokens without exp.
func NewSessionSigner(secret string, ttl time.Duration) *SessionSigner {
	return &SessionSigner{secret: []byte(secret), ttl: ttl}
}

func (s *SessionSigner) Sign(id, platform, rcUserNumber string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		ID:           id,
		Platform:     platform,
		RCUserNumber: rcUserNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (s *SessionSigner) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.ID == "" || claims.Platform == "" {
		return nil, fmt.Errorf("token missing id or platform")
	}
	return claims, nil
}
