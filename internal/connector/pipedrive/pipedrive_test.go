package pipedrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	"github.com/crmbridge/bridge-server/internal/lognote"
	"github.com/crmbridge/bridge-server/internal/model"
)

func newTestConnector(t *testing.T, handler http.HandlerFunc) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "https://bridge.example.com/oauth-callback",
		OAuthBaseURL: srv.URL,
		APIBaseURL:   srv.URL,
	}, httpclient.New(httpclient.Config{Name: Platform, RateLimit: 1000}))
}

func testUser() *model.User {
	return &model.User{
		ID:             "42-pipedrive",
		Platform:       Platform,
		Hostname:       "acme.pipedrive.com",
		AccessToken:    "access",
		RefreshToken:   "refresh",
		TimezoneOffset: "+00:00",
	}
}

func TestOAuthInfo(t *testing.T) {
	c := New(Config{ClientID: "cid", ClientSecret: "csecret"}, nil)
	info := c.OAuthInfo("")

	assert.Equal(t, "https://oauth.pipedrive.com/oauth/authorize", info.AuthorizeURL)
	assert.Equal(t, "https://oauth.pipedrive.com/oauth/token", info.TokenURL)
	assert.True(t, info.ClientAuthInHeader)
}

func TestGetUserInfo(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/me", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"success":true,"data":{"id":42,"name":"Ann Lee","timezone_name":"Europe/Berlin","timezone_offset":"+01:00","company_domain":"acme","company_id":7}}`))
	})

	info, err := c.GetUserInfo(context.Background(), connector.UserInfoRequest{AuthHeader: "Bearer access"})
	require.NoError(t, err)

	assert.Equal(t, "42", info.ID)
	assert.Equal(t, "Ann Lee", info.Name)
	assert.Equal(t, "acme.pipedrive.com", info.Hostname)
	assert.Equal(t, "7", info.AdditionalInfo["companyId"])
}

func TestFindContact(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/persons/search", r.URL.Path)
		assert.Equal(t, "+14155550100", r.URL.Query().Get("term"))
		assert.Equal(t, "phone", r.URL.Query().Get("fields"))
		w.Write([]byte(`{"success":true,"data":{"items":[{"item":{"id":5,"name":"Bob","organization":{"name":"Acme"}}}]}}`))
	})

	contacts, err := c.FindContact(context.Background(), connector.FindContactRequest{
		User:        testUser(),
		AuthHeader:  "Bearer access",
		PhoneNumber: "+14155550100",
	})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "5", contacts[0].ID)
	assert.Equal(t, "Bob", contacts[0].Name)
	assert.Equal(t, "Acme", contacts[0].AdditionalInfo["organization"])
}

func TestCreateCallLog(t *testing.T) {
	var body map[string]any
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/activities", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"success":true,"data":{"id":901}}`))
	})

	id, err := c.CreateCallLog(context.Background(), connector.CreateCallLogRequest{
		User:       testUser(),
		AuthHeader: "Bearer access",
		ContactID:  "5",
		Note: lognote.CallNote{
			Subject:       "Inbound Call from Bob",
			ContactNumber: "+14155550100",
			StartTime:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			Duration:      90,
		},
		AdditionalSubmission: map[string]string{"deal": "77"},
	})
	require.NoError(t, err)

	assert.Equal(t, "901", id)
	assert.Equal(t, "call", body["type"])
	assert.Equal(t, "5", body["person_id"])
	assert.Equal(t, "77", body["deal_id"])
	assert.Equal(t, "2026-03-01", body["due_date"])
	assert.Equal(t, "00:02", body["duration"])
	assert.Contains(t, body["note"], "+14155550100")
}

func TestUpdateCallLog(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/activities/901", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), "https://media.example.com/rec/1")
		w.Write([]byte(`{"success":true,"data":{"id":901}}`))
	})

	err := c.UpdateCallLog(context.Background(), connector.UpdateCallLogRequest{
		User:            testUser(),
		AuthHeader:      "Bearer access",
		ThirdPartyLogID: "901",
		Note:            lognote.CallNote{Subject: "s", RecordingLink: "https://media.example.com/rec/1"},
	})
	assert.NoError(t, err)
}

func TestCreateCallLogPropagatesHTTPError(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":"unauthorized"}`))
	})

	_, err := c.CreateCallLog(context.Background(), connector.CreateCallLogRequest{User: testUser()})
	var httpErr *httpclient.Error
	require.ErrorAs(t, err, &httpErr)
	assert.True(t, httpErr.IsAuthError())
}

func TestUnAuthorize(t *testing.T) {
	called := false
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/oauth/revoke", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "cid", user)
		assert.Equal(t, "csecret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh", r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.UnAuthorize(context.Background(), testUser()))
	assert.True(t, called)
}

func TestParseRevocation(t *testing.T) {
	c := New(Config{ClientID: "cid", ClientSecret: "csecret"}, nil)

	t.Run("accepts signed callback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/revoke/pipedrive", strings.NewReader(`{"client_id":"cid","user_id":42,"company_id":7}`))
		req.SetBasicAuth("cid", "csecret")

		userID, err := c.ParseRevocation(req)
		require.NoError(t, err)
		assert.Equal(t, "42", userID)
	})

	t.Run("rejects wrong credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/revoke/pipedrive", strings.NewReader(`{"user_id":42}`))
		req.SetBasicAuth("cid", "wrong")

		_, err := c.ParseRevocation(req)
		assert.Error(t, err)
	})

	t.Run("rejects unsigned callback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/revoke/pipedrive", strings.NewReader(`{"user_id":42}`))

		_, err := c.ParseRevocation(req)
		assert.Error(t, err)
	})
}

func TestDurationHHMM(t *testing.T) {
	assert.Equal(t, "00:00", durationHHMM(0))
	assert.Equal(t, "00:01", durationHHMM(1))
	assert.Equal(t, "01:01", durationHHMM(3660))
}
