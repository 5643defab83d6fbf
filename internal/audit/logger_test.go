package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:     EventTokenRefreshFailed,
		UserID:   "42-pipedrive",
		Platform: "pipedrive",
		Details:  map[string]interface{}{"status": 400},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "token_refresh_failure", entry["event_type"])
	assert.Equal(t, "42-pipedrive", entry["user_id"])
	assert.Equal(t, "pipedrive", entry["platform"])
	assert.Equal(t, float64(400), entry["status"])
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	req := httptest.NewRequest("POST", "/apiKeyLogin", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "extension/1.0")

	LogFromRequest(req, Event{Type: EventLoginFailure, Platform: "insightly"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.7", entry["ip"])
	assert.Equal(t, "extension/1.0", entry["user_agent"])
}
