package clio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	return New(Config{ClientID: "cid", ClientSecret: "csecret", BaseURL: srv.URL},
		httpclient.New(httpclient.Config{Name: Platform, RateLimit: 1000}))
}

func testUser() *model.User {
	return &model.User{
		ID:          "314-clio",
		Platform:    Platform,
		Hostname:    "eu.app.clio.com",
		AccessToken: "access",
	}
}

func TestOAuthInfoUsesRegionalHost(t *testing.T) {
	c := New(Config{ClientID: "cid"}, nil)

	assert.Equal(t, "https://eu.app.clio.com/oauth/authorize", c.OAuthInfo("eu.app.clio.com").AuthorizeURL)
	assert.Equal(t, "https://app.clio.com/oauth/token", c.OAuthInfo("evil.example.com").TokenURL)
	assert.False(t, c.OAuthInfo("").ClientAuthInHeader)
}

func TestGetUserInfo(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/users/who_am_i.json", r.URL.Path)
		w.Write([]byte(`{"data":{"id":314,"name":"Ada","time_zone":"Europe/London"}}`))
	})

	info, err := c.GetUserInfo(context.Background(), connector.UserInfoRequest{AuthHeader: "Bearer access", Hostname: "eu.app.clio.com"})
	require.NoError(t, err)

	assert.Equal(t, "314", info.ID)
	assert.Equal(t, "Europe/London", info.TimezoneName)
	assert.Equal(t, "eu.app.clio.com", info.Hostname)
}

func TestFindContact(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/contacts.json", r.URL.Path)
		assert.Equal(t, "+442079460000", r.URL.Query().Get("query"))
		w.Write([]byte(`{"data":[{"id":1,"name":"Jane Roe","type":"Person","title":"Partner"},{"id":2,"name":"Roe LLP","type":"Company"}]}`))
	})

	contacts, err := c.FindContact(context.Background(), connector.FindContactRequest{
		User:        testUser(),
		AuthHeader:  "Bearer access",
		PhoneNumber: "+442079460000",
	})
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Partner", contacts[0].Title)
	assert.Equal(t, "Company", contacts[1].Type)
}

func TestCreateContactSplitsPersonName(t *testing.T) {
	var body struct {
		Data map[string]any `json:"data"`
	}
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"data":{"id":9,"name":"Jane Roe","type":"Person"}}`))
	})

	created, err := c.CreateContact(context.Background(), connector.CreateContactRequest{
		User:        testUser(),
		AuthHeader:  "Bearer access",
		PhoneNumber: "+442079460000",
		Name:        "Jane Roe",
	})
	require.NoError(t, err)

	assert.Equal(t, "9", created.ID)
	assert.Equal(t, "Jane", body.Data["first_name"])
	assert.Equal(t, "Roe", body.Data["last_name"])
}

func TestCallLogLifecycle(t *testing.T) {
	var methods []string
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Data map[string]any `json:"data"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "PhoneCommunication", body.Data["type"])
			assert.Equal(t, "2026-03-01T09:30:00Z", body.Data["received_at"])
			w.Write([]byte(`{"data":{"id":555}}`))
		case http.MethodPatch:
			w.Write([]byte(`{"data":{"id":555}}`))
		default:
			w.Write([]byte(`{"data":{"subject":"Inbound Call from Jane","body":"- Note: hello"}}`))
		}
	})

	note := lognote.CallNote{
		Subject:       "Inbound Call from Jane",
		Note:          "hello",
		ContactNumber: "+442079460000",
		StartTime:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	id, err := c.CreateCallLog(context.Background(), connector.CreateCallLogRequest{
		User: testUser(), AuthHeader: "Bearer access", ContactID: "9", Note: note,
	})
	require.NoError(t, err)
	assert.Equal(t, "555", id)

	note.RecordingLink = "https://media.example.com/rec/1"
	require.NoError(t, c.UpdateCallLog(context.Background(), connector.UpdateCallLogRequest{
		User: testUser(), AuthHeader: "Bearer access", ThirdPartyLogID: id, Note: note,
	}))

	data, err := c.GetCallLog(context.Background(), connector.GetCallLogRequest{
		User: testUser(), AuthHeader: "Bearer access", ThirdPartyLogID: id,
	})
	require.NoError(t, err)
	assert.Equal(t, "- Note: hello", data.Note)

	assert.Equal(t, []string{
		"POST /api/v4/communications.json",
		"PATCH /api/v4/communications/555.json",
		"GET /api/v4/communications/555.json",
	}, methods)
}

func TestUnAuthorize(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/deauthorize", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, c.UnAuthorize(context.Background(), testUser()))
}
