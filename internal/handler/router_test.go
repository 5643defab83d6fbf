package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/connectortest"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	"github.com/crmbridge/bridge-server/internal/middleware"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/service"
	"github.com/crmbridge/bridge-server/internal/util"
)

const testSecret = "test-secret-key-for-session-tokens"

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) UpdateTokens(ctx context.Context, id string, params model.UpdateTokensParams) (*model.User, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockStateRepo struct {
	mock.Mock
}

func (m *mockStateRepo) Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthState), args.Error(1)
}

func (m *mockStateRepo) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthState), args.Error(1)
}

func (m *mockStateRepo) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type testServer struct {
	router    chi.Router
	conn      *connectortest.OAuth
	userRepo  *mockUserRepo
	stateRepo *mockStateRepo
	signer    *util.SessionSigner
}

func newTestServer() *testServer {
	ts := &testServer{
		conn: &connectortest.OAuth{Info: connector.OAuthInfo{
			ClientID:     "client-1",
			AuthorizeURL: "https://crm.example.com/oauth/authorize",
		}},
		userRepo:  &mockUserRepo{},
		stateRepo: &mockStateRepo{},
		signer:    util.NewSessionSigner(testSecret, 0),
	}

	client := httpclient.New(httpclient.Config{Name: "test", RateLimit: 1000})
	registry := connector.NewRegistry(ts.conn)
	tokens := service.NewTokenService(ts.userRepo, client, 2*time.Minute)
	dispatcher := service.NewDispatcher(registry, ts.userRepo, tokens)
	authService := service.NewAuthService(dispatcher, ts.userRepo, ts.stateRepo, client, ts.signer)

	authHandler := NewAuthHandler(authService, dispatcher, registry)
	crmHandler := NewCRMHandler(
		dispatcher,
		service.NewContactService("US"),
		service.NewCallLogService(nil, nil, nil),
		service.NewMessageLogService(nil, nil),
	)

	ts.router = NewRouter(chi.NewRouter(), authHandler, crmHandler, RouteMiddleware{
		Session: middleware.NewAuthMiddleware(ts.signer).Handler,
	})
	return ts
}

func (ts *testServer) token(t *testing.T, id string) string {
	t.Helper()
	token, err := ts.signer.Sign(id, "mockcrm", "")
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestPlatforms(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/platforms", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	platforms := decodeBody(t, rec)["platforms"].([]any)
	require.Len(t, platforms, 1)
	assert.Equal(t, "mockcrm", platforms[0].(map[string]any)["name"])
	assert.Equal(t, "oauth", platforms[0].(map[string]any)["authType"])
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := newTestServer()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/contact?phoneNumber=%2B14155550100"},
		{http.MethodPost, "/contact"},
		{http.MethodGet, "/callLog?sessionIds=s1"},
		{http.MethodPost, "/callLog"},
		{http.MethodPatch, "/callLog"},
		{http.MethodPost, "/messageLog"},
		{http.MethodPost, "/unAuthorize"},
		{http.MethodGet, "/authValidation"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(rt.method, rt.path, strings.NewReader("{}")))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "Please go to Settings and authorize CRM platform", body["error"])
			assert.Equal(t, "NOT_AUTHORIZED", body["code"])
		})
	}
}

func TestDeletedCredentialIsNotAuthorized(t *testing.T) {
	ts := newTestServer()
	ts.userRepo.On("FindByID", mock.Anything, "42-mockcrm").Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/contact?phoneNumber=%2B14155550100&jwtToken="+ts.token(t, "42-mockcrm"), nil)
	rec := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NOT_AUTHORIZED", decodeBody(t, rec)["code"])
	ts.conn.AssertNotCalled(t, "FindContact", mock.Anything, mock.Anything)
}

func TestUnAuthorizeUnknownUser(t *testing.T) {
	ts := newTestServer()
	ts.userRepo.On("FindByID", mock.Anything, "99-mockcrm").Return(nil, nil)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/unAuthorize?jwtToken="+ts.token(t, "99-mockcrm"), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "unknown user", body["error"])
	assert.Equal(t, "UNKNOWN_USER", body["code"])
	ts.userRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestFindContactRoute(t *testing.T) {
	ts := newTestServer()
	user := &model.User{ID: "42-mockcrm", Platform: "mockcrm", AccessToken: "tok"}
	ts.userRepo.On("FindByID", mock.Anything, "42-mockcrm").Return(user, nil)
	ts.conn.On("FindContact", mock.Anything, mock.MatchedBy(func(req connector.FindContactRequest) bool {
		return req.PhoneNumber == "+14155550100" && req.AuthHeader == "Bearer tok"
	})).Return([]model.ContactCandidate{{ID: "5", Name: "Bob"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/contact?phoneNumber=%2B14155550100&jwtToken="+ts.token(t, "42-mockcrm"), nil)
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["successful"])
	contacts := body["contact"].([]any)
	require.Len(t, contacts, 2)
	assert.Equal(t, "5", contacts[0].(map[string]any)["id"])
	assert.Equal(t, model.NewContactID, contacts[1].(map[string]any)["id"])
}

func TestAddCallLogRejectsMalformedBody(t *testing.T) {
	ts := newTestServer()
	ts.userRepo.On("FindByID", mock.Anything, "42-mockcrm").
		Return(&model.User{ID: "42-mockcrm", Platform: "mockcrm"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/callLog?jwtToken="+ts.token(t, "42-mockcrm"), strings.NewReader("{not json"))
	rec := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody(t, rec)["code"])
}

func TestAuthorizeRedirects(t *testing.T) {
	ts := newTestServer()
	ts.stateRepo.On("Create", mock.Anything, mock.Anything).Return(&model.OAuthState{}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/authorize/mockcrm", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://crm.example.com/oauth/authorize?"))
}

func TestAuthorizeUnknownPlatform(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/authorize/nope", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_PLATFORM", decodeBody(t, rec)["code"])
}

func TestOAuthCallbackDenied(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/oauth-callback?error=access_denied", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ts.stateRepo.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}
