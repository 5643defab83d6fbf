// Package connectortest provides testify mocks of the connector contract.
package connectortest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/model"
)

// Mock implements connector.Connector. Use OAuth or APIKey to get a value that
// also satisfies the matching credential interface.
type Mock struct {
	mock.Mock
	Name string
}

func (m *Mock) Platform() string {
	if m.Name == "" {
		return "mockcrm"
	}
	return m.Name
}

func (m *Mock) AuthType() model.AuthType {
	return model.AuthTypeOAuth
}

func (m *Mock) GetUserInfo(ctx context.Context, req connector.UserInfoRequest) (*connector.UserInfo, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.UserInfo), args.Error(1)
}

func (m *Mock) FindContact(ctx context.Context, req connector.FindContactRequest) ([]model.ContactCandidate, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContactCandidate), args.Error(1)
}

func (m *Mock) CreateContact(ctx context.Context, req connector.CreateContactRequest) (*model.ContactCandidate, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContactCandidate), args.Error(1)
}

func (m *Mock) CreateCallLog(ctx context.Context, req connector.CreateCallLogRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *Mock) UpdateCallLog(ctx context.Context, req connector.UpdateCallLogRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *Mock) GetCallLog(ctx context.Context, req connector.GetCallLogRequest) (*model.CallLogData, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallLogData), args.Error(1)
}

func (m *Mock) CreateMessageLog(ctx context.Context, req connector.CreateMessageLogRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *Mock) UpdateMessageLog(ctx context.Context, req connector.UpdateMessageLogRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *Mock) UnAuthorize(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// OAuth is a Mock that declares oauth and serves a fixed OAuthInfo.
type OAuth struct {
	Mock
	Info connector.OAuthInfo
}

func (m *OAuth) OAuthInfo(hostname string) connector.OAuthInfo {
	return m.Info
}

// RefreshingOAuth also overrides the refresh step.
type RefreshingOAuth struct {
	OAuth
}

func (m *RefreshingOAuth) RefreshToken(ctx context.Context, user *model.User, info connector.OAuthInfo) (*model.TokenSet, error) {
	args := m.Called(ctx, user, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TokenSet), args.Error(1)
}

// UnionOAuth queries every phone variant.
type UnionOAuth struct {
	OAuth
}

func (m *UnionOAuth) MatchesAllVariants() bool { return true }

// APIKey is a Mock that declares apiKey auth.
type APIKey struct {
	Mock
}

func (m *APIKey) AuthType() model.AuthType {
	return model.AuthTypeAPIKey
}

func (m *APIKey) BasicAuth(apiKey string) string {
	return "encoded:" + apiKey
}

var (
	_ connector.OAuthConnector  = (*OAuth)(nil)
	_ connector.TokenRefresher  = (*RefreshingOAuth)(nil)
	_ connector.UnionMatcher    = (*UnionOAuth)(nil)
	_ connector.APIKeyConnector = (*APIKey)(nil)
)
