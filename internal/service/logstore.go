package service

import "context"

// RecordingCache parks recording links that arrive before their call is logged.
type RecordingCache interface {
	Put(ctx context.Context, sessionID, link string) error
	Take(ctx context.Context, sessionID string) (string, error)
}

// ClaimStore grants short exclusive claims on external event ids so that two
// concurrent submissions of one event cannot both reach the CRM.
type ClaimStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
