package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/connectortest"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/util"
)

const testJWTSecret = "test-secret-key-for-session-tokens"

type revocableOAuth struct {
	connectortest.OAuth
}

func (m *revocableOAuth) ParseRevocation(r *http.Request) (string, error) {
	args := m.Called(r)
	return args.String(0), args.Error(1)
}

type authFixture struct {
	svc       *AuthService
	userRepo  *mockUserRepo
	stateRepo *mockStateRepo
	signer    *util.SessionSigner
}

func newAuthFixture(conns ...connector.Connector) *authFixture {
	f := &authFixture{
		userRepo:  &mockUserRepo{},
		stateRepo: &mockStateRepo{},
		signer:    util.NewSessionSigner(testJWTSecret, 0),
	}
	client := httpclient.New(httpclient.Config{Name: "test", RateLimit: 1000})
	dispatcher := NewDispatcher(connector.NewRegistry(conns...), f.userRepo, newTokenService(f.userRepo))
	f.svc = NewAuthService(dispatcher, f.userRepo, f.stateRepo, client, f.signer)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func storedUser(id, platform, name, rcUserNumber string) *model.User {
	return &model.User{ID: id, Platform: platform, Name: name, RCUserNumber: rcUserNumber}
}

func TestAuthorizeURL(t *testing.T) {
	ctx := context.Background()

	t.Run("stores state and builds consent url", func(t *testing.T) {
		conn := &connectortest.OAuth{Info: connector.OAuthInfo{
			ClientID:     "client-1",
			AuthorizeURL: "https://crm.example.com/oauth/authorize",
			RedirectURI:  "https://bridge.example.com/oauth-callback",
		}}
		f := newAuthFixture(conn)

		var stored model.CreateOAuthStateParams
		f.stateRepo.On("Create", ctx, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(model.CreateOAuthStateParams) }).
			Return(&model.OAuthState{}, nil)

		raw, err := f.svc.AuthorizeURL(ctx, "mockcrm", "acme.crm.example.com")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "crm.example.com", u.Host)
		assert.Equal(t, "client-1", u.Query().Get("client_id"))
		assert.Equal(t, stored.State, u.Query().Get("state"))
		assert.NotEmpty(t, stored.State)
		assert.Equal(t, "mockcrm", stored.Platform)
		assert.Equal(t, "acme.crm.example.com", stored.Hostname)
		assert.True(t, stored.ExpiresAt.After(testNow))
	})

	t.Run("api key platforms have no consent url", func(t *testing.T) {
		conn := &connectortest.APIKey{}
		conn.Name = "keycrm"
		f := newAuthFixture(conn)

		_, err := f.svc.AuthorizeURL(ctx, "keycrm", "")
		assert.Equal(t, apperrors.ErrCodeUnsupported, apperrors.GetCode(err))
	})

	t.Run("unknown platform", func(t *testing.T) {
		f := newAuthFixture()

		_, err := f.svc.AuthorizeURL(ctx, "nope", "")
		assert.Equal(t, apperrors.ErrCodeUnknownPlatform, apperrors.GetCode(err))
	})
}

func TestOAuthCallback(t *testing.T) {
	ctx := context.Background()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	newConn := func() *connectortest.OAuth {
		return &connectortest.OAuth{Info: connector.OAuthInfo{
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			TokenURL:     tokenSrv.URL,
		}}
	}
	state := &model.OAuthState{State: "st-1", Platform: "mockcrm", Hostname: "acme.crm.example.com"}

	t.Run("stores the credential and issues a session token", func(t *testing.T) {
		conn := newConn()
		f := newAuthFixture(conn)
		f.stateRepo.On("Consume", ctx, "st-1").Return(state, nil).Once()
		conn.On("GetUserInfo", ctx, mock.MatchedBy(func(req connector.UserInfoRequest) bool {
			return req.AuthHeader == "Bearer new-access" && req.Hostname == "acme.crm.example.com"
		})).Return(&connector.UserInfo{ID: "42", Name: "Agent Smith", Hostname: "acme.crm.example.com"}, nil)

		var saved model.UpsertUserParams
		f.userRepo.On("Upsert", ctx, mock.Anything).
			Run(func(args mock.Arguments) { saved = args.Get(1).(model.UpsertUserParams) }).
			Return(storedUser("42-mockcrm", "mockcrm", "Agent Smith", "+16505550100"), nil)

		result, err := f.svc.OAuthCallback(ctx, "good-code", "st-1", "+16505550100")
		require.NoError(t, err)

		assert.True(t, result.Successful)
		assert.Equal(t, "Agent Smith", result.Name)
		assert.Equal(t, "Successfully connected to mockcrm", result.ReturnMessage.Message)
		assert.Equal(t, "42-mockcrm", saved.ID)
		assert.Equal(t, "new-access", saved.AccessToken)
		assert.Equal(t, "new-refresh", saved.RefreshToken)
		require.NotNil(t, saved.TokenExpiry)
		assert.Equal(t, testNow.Add(time.Hour), *saved.TokenExpiry)

		claims, err := f.signer.Parse(result.JWTToken)
		require.NoError(t, err)
		assert.Equal(t, "42-mockcrm", claims.ID)
		assert.Equal(t, "mockcrm", claims.Platform)
		assert.Equal(t, "+16505550100", claims.RCUserNumber)
	})

	t.Run("rejects an unknown state", func(t *testing.T) {
		f := newAuthFixture(newConn())
		f.stateRepo.On("Consume", ctx, "forged").Return(nil, nil).Once()

		_, err := f.svc.OAuthCallback(ctx, "good-code", "forged", "")
		assert.Equal(t, apperrors.ErrCodeInvalidState, apperrors.GetCode(err))
		f.userRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("a rejected code stores nothing", func(t *testing.T) {
		conn := newConn()
		f := newAuthFixture(conn)
		f.stateRepo.On("Consume", ctx, "st-1").Return(state, nil).Once()

		result, err := f.svc.OAuthCallback(ctx, "bad-code", "st-1", "")
		require.NoError(t, err)

		assert.False(t, result.Successful)
		assert.Empty(t, result.JWTToken)
		conn.AssertNotCalled(t, "GetUserInfo", mock.Anything, mock.Anything)
		f.userRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("requires code and state", func(t *testing.T) {
		f := newAuthFixture(newConn())

		_, err := f.svc.OAuthCallback(ctx, "", "st-1", "")
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
		_, err = f.svc.OAuthCallback(ctx, "good-code", "", "")
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})
}

func TestAPIKeyLogin(t *testing.T) {
	ctx := context.Background()

	newConn := func() *connectortest.APIKey {
		conn := &connectortest.APIKey{}
		conn.Name = "keycrm"
		return conn
	}

	t.Run("validates the key and stores it", func(t *testing.T) {
		conn := newConn()
		f := newAuthFixture(conn)
		conn.On("GetUserInfo", ctx, mock.MatchedBy(func(req connector.UserInfoRequest) bool {
			return req.AuthHeader == "Basic encoded:key-123"
		})).Return(&connector.UserInfo{ID: "7", Name: "Key User"}, nil)

		var saved model.UpsertUserParams
		f.userRepo.On("Upsert", ctx, mock.Anything).
			Run(func(args mock.Arguments) { saved = args.Get(1).(model.UpsertUserParams) }).
			Return(storedUser("7-keycrm", "keycrm", "Key User", ""), nil)

		result, err := f.svc.APIKeyLogin(ctx, APIKeyLoginParams{
			Platform:       "keycrm",
			APIKey:         " key-123 ",
			Hostname:       "acme.keycrm.example.com",
			AdditionalInfo: map[string]string{"region": "eu"},
		})
		require.NoError(t, err)

		assert.True(t, result.Successful)
		assert.Equal(t, "7-keycrm", saved.ID)
		assert.Equal(t, "key-123", saved.AccessToken)
		assert.Empty(t, saved.RefreshToken)
		assert.Nil(t, saved.TokenExpiry)
		assert.Equal(t, "acme.keycrm.example.com", saved.Hostname)
		assert.JSONEq(t, `{"region":"eu"}`, string(saved.PlatformAdditionalInfo))
	})

	t.Run("a rejected key stores nothing", func(t *testing.T) {
		conn := newConn()
		f := newAuthFixture(conn)
		conn.On("GetUserInfo", ctx, mock.Anything).Return(nil, &httpclient.Error{StatusCode: http.StatusUnauthorized})

		result, err := f.svc.APIKeyLogin(ctx, APIKeyLoginParams{Platform: "keycrm", APIKey: "wrong"})
		require.NoError(t, err)

		assert.False(t, result.Successful)
		assert.Equal(t, "Failed to get user info.", result.ReturnMessage.Message)
		f.userRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("oauth platforms refuse api keys", func(t *testing.T) {
		f := newAuthFixture(&connectortest.OAuth{})

		_, err := f.svc.APIKeyLogin(ctx, APIKeyLoginParams{Platform: "mockcrm", APIKey: "key"})
		assert.Equal(t, apperrors.ErrCodeUnsupported, apperrors.GetCode(err))
	})

	t.Run("requires a key", func(t *testing.T) {
		f := newAuthFixture(newConn())

		_, err := f.svc.APIKeyLogin(ctx, APIKeyLoginParams{Platform: "keycrm", APIKey: "  "})
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})
}

func TestUnAuthorize(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes and deletes the credential", func(t *testing.T) {
		conn := &connectortest.OAuth{}
		f := newAuthFixture(conn)
		user := &model.User{ID: "42-mockcrm", Platform: "mockcrm", AccessToken: "tok"}
		f.userRepo.On("FindByID", ctx, "42-mockcrm").Return(user, nil)
		conn.On("UnAuthorize", ctx, user).Return(nil).Once()
		f.userRepo.On("Delete", ctx, "42-mockcrm").Return(true, nil).Once()

		result, err := f.svc.UnAuthorize(ctx, "42-mockcrm", "mockcrm")
		require.NoError(t, err)

		assert.True(t, result.Successful)
		assert.Equal(t, "Logged out of mockcrm", result.ReturnMessage.Message)
		conn.AssertExpectations(t)
		f.userRepo.AssertExpectations(t)
	})

	t.Run("a failed remote revoke still logs out", func(t *testing.T) {
		conn := &connectortest.OAuth{}
		f := newAuthFixture(conn)
		user := &model.User{ID: "42-mockcrm", Platform: "mockcrm"}
		f.userRepo.On("FindByID", ctx, "42-mockcrm").Return(user, nil)
		conn.On("UnAuthorize", ctx, user).Return(errors.New("revoke endpoint down"))
		f.userRepo.On("Delete", ctx, "42-mockcrm").Return(true, nil).Once()

		result, err := f.svc.UnAuthorize(ctx, "42-mockcrm", "mockcrm")
		require.NoError(t, err)
		assert.True(t, result.Successful)
		assert.Equal(t, model.MessageTypeSuccess, result.ReturnMessage.MessageType)
		assert.Equal(t, "Logged out of mockcrm", result.ReturnMessage.Message)
		conn.AssertExpectations(t)
		f.userRepo.AssertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		conn := &connectortest.OAuth{}
		f := newAuthFixture(conn)
		f.userRepo.On("FindByID", ctx, "99-mockcrm").Return(nil, nil)

		_, err := f.svc.UnAuthorize(ctx, "99-mockcrm", "mockcrm")
		require.Error(t, err)

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeUnknownUser, appErr.Code)
		assert.Equal(t, "unknown user", appErr.Message)
		f.userRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		conn.AssertNotCalled(t, "UnAuthorize", mock.Anything, mock.Anything)
	})

	t.Run("platform mismatch is an unknown user", func(t *testing.T) {
		f := newAuthFixture(&connectortest.OAuth{})
		f.userRepo.On("FindByID", ctx, "42-othercrm").Return(&model.User{ID: "42-othercrm", Platform: "othercrm"}, nil)

		_, err := f.svc.UnAuthorize(ctx, "42-othercrm", "mockcrm")
		assert.Equal(t, apperrors.ErrCodeUnknownUser, apperrors.GetCode(err))
		f.userRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestValidateAuth(t *testing.T) {
	ctx := context.Background()

	conn := &connectortest.OAuth{}
	sess := testSession(conn)
	conn.On("GetUserInfo", ctx, mock.Anything).Return(&connector.UserInfo{ID: "42"}, nil).Once()
	conn.On("GetUserInfo", ctx, mock.Anything).Return(nil, &httpclient.Error{StatusCode: http.StatusUnauthorized}).Once()

	f := newAuthFixture(conn)
	assert.True(t, f.svc.ValidateAuth(ctx, sess).Successful)

	result := f.svc.ValidateAuth(ctx, sess)
	assert.False(t, result.Successful)
	assert.Equal(t, model.MessageTypeError, result.ReturnMessage.MessageType)
}

func TestHandleRevocation(t *testing.T) {
	newRequest := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/revoke/mockcrm", strings.NewReader(`{"user_id":"42"}`))
	}

	t.Run("deletes the revoked credential", func(t *testing.T) {
		conn := &revocableOAuth{}
		f := newAuthFixture(conn)
		req := newRequest()
		conn.On("ParseRevocation", req).Return("42", nil)
		f.userRepo.On("Delete", req.Context(), "42-mockcrm").Return(true, nil).Once()

		require.NoError(t, f.svc.HandleRevocation(req.Context(), "mockcrm", req))
		f.userRepo.AssertExpectations(t)
	})

	t.Run("rejects an unauthenticated callback", func(t *testing.T) {
		conn := &revocableOAuth{}
		f := newAuthFixture(conn)
		req := newRequest()
		conn.On("ParseRevocation", req).Return("", errors.New("bad credentials"))

		err := f.svc.HandleRevocation(req.Context(), "mockcrm", req)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
		f.userRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("platforms without callbacks", func(t *testing.T) {
		f := newAuthFixture(&connectortest.OAuth{})
		req := newRequest()

		err := f.svc.HandleRevocation(req.Context(), "mockcrm", req)
		assert.Equal(t, apperrors.ErrCodeUnsupported, apperrors.GetCode(err))
	})
}
