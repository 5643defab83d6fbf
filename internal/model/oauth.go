package model

import "time"

type OAuthState struct {
	ID        string    `db:"id"`
	State     string    `db:"state"`
	Platform  string    `db:"platform"`
	Hostname  string    `db:"hostname"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type CreateOAuthStateParams struct {
	State     string
	Platform  string
	Hostname  string
	ExpiresAt time.Time
}

// TokenSet is the result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"-"`
	// AdditionalInfo replaces the stored platform blob when non-nil.
	AdditionalInfo map[string]string `json:"-"`
}

// Expiry returns the absolute expiry, or nil when the platform did not send one.
func (t *TokenSet) Expiry(now time.Time) *time.Time {
	if !t.ExpiresAt.IsZero() {
		exp := t.ExpiresAt
		return &exp
	}
	if t.ExpiresIn <= 0 {
		return nil
	}
	exp := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &exp
}
