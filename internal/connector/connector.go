// Package connector defines the contract every CRM adapter implements and the
// registry the server dispatches through.
package connector

import (
	"context"
	"net/http"
	"time"

	"github.com/crmbridge/bridge-server/internal/lognote"
	"github.com/crmbridge/bridge-server/internal/model"
)

// Connector is implemented once per CRM platform.
type Connector interface {
	Platform() string
	AuthType() model.AuthType

	GetUserInfo(ctx context.Context, req UserInfoRequest) (*UserInfo, error)
	FindContact(ctx context.Context, req FindContactRequest) ([]model.ContactCandidate, error)
	CreateContact(ctx context.Context, req CreateContactRequest) (*model.ContactCandidate, error)

	CreateCallLog(ctx context.Context, req CreateCallLogRequest) (string, error)
	UpdateCallLog(ctx context.Context, req UpdateCallLogRequest) error
	GetCallLog(ctx context.Context, req GetCallLogRequest) (*model.CallLogData, error)

	CreateMessageLog(ctx context.Context, req CreateMessageLogRequest) (string, error)
	UpdateMessageLog(ctx context.Context, req UpdateMessageLogRequest) error

	// UnAuthorize revokes the credential at the CRM where the CRM supports it.
	UnAuthorize(ctx context.Context, user *model.User) error
}

// OAuthConnector is implemented by connectors whose AuthType is oauth.
type OAuthConnector interface {
	Connector
	OAuthInfo(hostname string) OAuthInfo
}

// APIKeyConnector is implemented by connectors whose AuthType is apiKey.
type APIKeyConnector interface {
	Connector
	// BasicAuth returns the value placed after "Basic " in the Authorization header.
	BasicAuth(apiKey string) string
}

// TokenRefresher overrides the standard refresh_token grant.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, user *model.User, info OAuthInfo) (*model.TokenSet, error)
}

// UnionMatcher connectors have every phone variant queried and the results merged.
type UnionMatcher interface {
	MatchesAllVariants() bool
}

// RevocationParser handles platform-initiated uninstall callbacks.
type RevocationParser interface {
	// ParseRevocation authenticates the callback and returns the CRM user id.
	ParseRevocation(r *http.Request) (string, error)
}

// ContactTyper lists the entity kinds CreateContact accepts.
type ContactTyper interface {
	ContactTypes() []string
}

type OAuthInfo struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
	// ClientAuthInHeader sends client credentials as HTTP Basic instead of form fields.
	ClientAuthInHeader bool
}

type UserInfoRequest struct {
	AuthHeader     string
	AccessToken    string
	Hostname       string
	AdditionalInfo map[string]string
}

type UserInfo struct {
	// ID is the CRM's own user id, before platform suffixing.
	ID             string
	Name           string
	TimezoneName   string
	TimezoneOffset string
	Hostname       string
	AdditionalInfo map[string]string
}

type FindContactRequest struct {
	User        *model.User
	AuthHeader  string
	PhoneNumber string
	IsExtension bool
}

type CreateContactRequest struct {
	User        *model.User
	AuthHeader  string
	PhoneNumber string
	Name        string
	Type        string
}

type CreateCallLogRequest struct {
	User                 *model.User
	AuthHeader           string
	ContactID            string
	ContactType          string
	CallLog              model.CallLogInfo
	Note                 lognote.CallNote
	AdditionalSubmission map[string]string
}

type UpdateCallLogRequest struct {
	User            *model.User
	AuthHeader      string
	ThirdPartyLogID string
	Note            lognote.CallNote
}

type GetCallLogRequest struct {
	User            *model.User
	AuthHeader      string
	ThirdPartyLogID string
}

type CreateMessageLogRequest struct {
	User        *model.User
	AuthHeader  string
	ContactID   string
	ContactType string
	Message     model.Message
	Note        lognote.MessageNote
}

type UpdateMessageLogRequest struct {
	User            *model.User
	AuthHeader      string
	ThirdPartyLogID string
	ContactID       string
	Message         model.Message
	Note            lognote.MessageNote
}

// UserLocation is the zone notes are rendered in for this user.
func UserLocation(user *model.User) *time.Location {
	if user == nil {
		return time.UTC
	}
	return lognote.Location(user.TimezoneName, user.TimezoneOffset)
}
