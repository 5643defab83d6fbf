package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/audit"
	"github.com/crmbridge/bridge-server/internal/config"
	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/repository"
	"github.com/crmbridge/bridge-server/internal/util"
)

type LoginResult struct {
	Successful    bool                 `json:"successful"`
	JWTToken      string               `json:"jwtToken,omitempty"`
	Name          string               `json:"name,omitempty"`
	ReturnMessage *model.ReturnMessage `json:"returnMessage,omitempty"`
}

type APIKeyLoginParams struct {
	Platform       string            `json:"platform"`
	APIKey         string            `json:"apiKey"`
	Hostname       string            `json:"hostname"`
	AdditionalInfo map[string]string `json:"additionalInfo"`
	RCUserNumber   string            `json:"rcUserNumber"`
}

type AuthResult struct {
	Successful    bool                 `json:"successful"`
	ReturnMessage *model.ReturnMessage `json:"returnMessage,omitempty"`
}

// AuthService covers credential acquisition and teardown.
type AuthService struct {
	dispatcher *Dispatcher
	userRepo   repository.UserRepository
	stateRepo  repository.OAuthStateRepository
	client     *httpclient.Client
	signer     *util.SessionSigner
	now        func() time.Time
}

func NewAuthService(
	dispatcher *Dispatcher,
	userRepo repository.UserRepository,
	stateRepo repository.OAuthStateRepository,
	client *httpclient.Client,
	signer *util.SessionSigner,
) *AuthService {
	return &AuthService{
		dispatcher: dispatcher,
		userRepo:   userRepo,
		stateRepo:  stateRepo,
		client:     client,
		signer:     signer,
		now:        time.Now,
	}
}

func (s *AuthService) oauthConnector(platform string) (connector.OAuthConnector, error) {
	conn, err := s.dispatcher.Connector(platform)
	if err != nil {
		return nil, err
	}
	oauthConn, ok := conn.(connector.OAuthConnector)
	if !ok {
		return nil, apperrors.Unsupported(platform, "OAuth")
	}
	return oauthConn, nil
}

// AuthorizeURL stores a one-time state and returns the CRM consent URL.
func (s *AuthService) AuthorizeURL(ctx context.Context, platform, hostname string) (string, error) {
	conn, err := s.oauthConnector(platform)
	if err != nil {
		return "", err
	}

	state, err := util.GenerateToken()
	if err != nil {
		return "", err
	}
	_, err = s.stateRepo.Create(ctx, model.CreateOAuthStateParams{
		State:     state,
		Platform:  platform,
		Hostname:  hostname,
		ExpiresAt: s.now().Add(config.OAuthStateTTL),
	})
	if err != nil {
		return "", apperrors.Database(err)
	}

	return connector.AuthorizeURL(conn.OAuthInfo(hostname), state)
}

// OAuthCallback exchanges the authorization code and stores the credential.
func (s *AuthService) OAuthCallback(ctx context.Context, code, state, rcUserNumber string) (*LoginResult, error) {
	if code == "" {
		return nil, apperrors.MissingRequired("code")
	}
	if state == "" {
		return nil, apperrors.MissingRequired("state")
	}

	st, err := s.stateRepo.Consume(ctx, state)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if st == nil {
		return nil, apperrors.InvalidState()
	}

	conn, err := s.oauthConnector(st.Platform)
	if err != nil {
		return nil, err
	}

	tokens, err := connector.ExchangeCode(ctx, s.client, conn.OAuthInfo(st.Hostname), code)
	if err != nil {
		s.loginFailed(ctx, st.Platform, err)
		return &LoginResult{
			Successful:    false,
			ReturnMessage: connector.HandleAPIError(err, st.Platform, connector.OpGetUserInfo),
		}, nil
	}

	info, err := conn.GetUserInfo(ctx, connector.UserInfoRequest{
		AuthHeader:  connector.BearerHeader(tokens.AccessToken),
		AccessToken: tokens.AccessToken,
		Hostname:    st.Hostname,
	})
	if err != nil {
		s.loginFailed(ctx, st.Platform, err)
		return &LoginResult{
			Successful:    false,
			ReturnMessage: connector.HandleAPIError(err, st.Platform, connector.OpGetUserInfo),
		}, nil
	}

	return s.saveCredential(ctx, conn, info, credential{
		accessToken:    tokens.AccessToken,
		refreshToken:   tokens.RefreshToken,
		expiry:         tokens.Expiry(s.now()),
		additionalInfo: tokens.AdditionalInfo,
		rcUserNumber:   rcUserNumber,
	})
}

// APIKeyLogin validates the key against the CRM and stores it.
func (s *AuthService) APIKeyLogin(ctx context.Context, params APIKeyLoginParams) (*LoginResult, error) {
	if params.Platform == "" {
		return nil, apperrors.MissingRequired("platform")
	}
	apiKey := strings.TrimSpace(params.APIKey)
	if apiKey == "" {
		return nil, apperrors.MissingRequired("apiKey")
	}

	conn, err := s.dispatcher.Connector(params.Platform)
	if err != nil {
		return nil, err
	}
	apiKeyConn, ok := conn.(connector.APIKeyConnector)
	if !ok {
		return nil, apperrors.Unsupported(params.Platform, "API key login")
	}

	info, err := apiKeyConn.GetUserInfo(ctx, connector.UserInfoRequest{
		AuthHeader:     connector.BasicHeader(apiKeyConn.BasicAuth(apiKey)),
		Hostname:       params.Hostname,
		AdditionalInfo: params.AdditionalInfo,
	})
	if err != nil {
		log.Debug().Str("platform", params.Platform).Str("apiKey", util.MaskSecret(apiKey)).Msg("api key rejected")
		s.loginFailed(ctx, params.Platform, err)
		return &LoginResult{
			Successful:    false,
			ReturnMessage: connector.HandleAPIError(err, params.Platform, connector.OpGetUserInfo),
		}, nil
	}
	if info.Hostname == "" {
		info.Hostname = params.Hostname
	}

	additional := map[string]string{}
	for k, v := range params.AdditionalInfo {
		additional[k] = v
	}
	return s.saveCredential(ctx, apiKeyConn, info, credential{
		accessToken:    apiKey,
		additionalInfo: additional,
		rcUserNumber:   params.RCUserNumber,
	})
}

type credential struct {
	accessToken    string
	refreshToken   string
	expiry         *time.Time
	additionalInfo map[string]string
	rcUserNumber   string
}

func (s *AuthService) saveCredential(ctx context.Context, conn connector.Connector, info *connector.UserInfo, cred credential) (*LoginResult, error) {
	if info.ID == "" {
		return nil, apperrors.External(conn.Platform(), fmt.Errorf("user info without id"))
	}

	merged := map[string]string{}
	for k, v := range info.AdditionalInfo {
		merged[k] = v
	}
	for k, v := range cred.additionalInfo {
		merged[k] = v
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode additional info: %w", err)
	}

	user, err := s.userRepo.Upsert(ctx, model.UpsertUserParams{
		ID:                     model.PlatformUserID(info.ID, conn.Platform()),
		Platform:               conn.Platform(),
		Hostname:               info.Hostname,
		Name:                   info.Name,
		TimezoneName:           info.TimezoneName,
		TimezoneOffset:         info.TimezoneOffset,
		AccessToken:            cred.accessToken,
		RefreshToken:           cred.refreshToken,
		TokenExpiry:            cred.expiry,
		PlatformAdditionalInfo: model.JSONB(blob),
		RCUserNumber:           cred.rcUserNumber,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	token, err := s.signer.Sign(user.ID, user.Platform, user.RCUserNumber)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue session token").WithCause(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventLoginSuccess,
		UserID:   user.ID,
		Platform: user.Platform,
	})

	return &LoginResult{
		Successful:    true,
		JWTToken:      token,
		Name:          user.Name,
		ReturnMessage: model.SuccessMessage(fmt.Sprintf("Successfully connected to %s", user.Platform)),
	}, nil
}

// UnAuthorize revokes the credential at the CRM where supported and destroys
// it locally. Revocation failures are logged and do not block the logout.
func (s *AuthService) UnAuthorize(ctx context.Context, userID, platform string) (*AuthResult, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || user.Platform != platform {
		return nil, apperrors.UnknownUser()
	}

	conn, err := s.dispatcher.Connector(platform)
	if err != nil {
		return nil, err
	}
	if err := conn.UnAuthorize(ctx, user); err != nil {
		log.Warn().
			Err(err).
			Str("userId", user.ID).
			Str("platform", platform).
			Msg("crm revoke failed, removing credential locally")
	}

	if _, err := s.userRepo.Delete(ctx, user.ID); err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventLogout,
		UserID:   user.ID,
		Platform: platform,
	})

	return &AuthResult{
		Successful:    true,
		ReturnMessage: model.SuccessMessage(fmt.Sprintf("Logged out of %s", platform)),
	}, nil
}

// ValidateAuth checks the credential still works with a user info round trip.
func (s *AuthService) ValidateAuth(ctx context.Context, sess *Session) *AuthResult {
	_, err := sess.Connector.GetUserInfo(ctx, connector.UserInfoRequest{
		AuthHeader:     sess.AuthHeader,
		AccessToken:    sess.User.AccessToken,
		Hostname:       sess.User.Hostname,
		AdditionalInfo: sess.User.AdditionalInfo(),
	})
	if err != nil {
		return &AuthResult{
			Successful:    false,
			ReturnMessage: connector.HandleAPIError(err, sess.Connector.Platform(), connector.OpGetUserInfo),
		}
	}
	return &AuthResult{Successful: true}
}

// HandleRevocation processes a platform-initiated uninstall callback.
func (s *AuthService) HandleRevocation(ctx context.Context, platform string, r *http.Request) error {
	conn, err := s.dispatcher.Connector(platform)
	if err != nil {
		return err
	}
	parser, ok := conn.(connector.RevocationParser)
	if !ok {
		return apperrors.Unsupported(platform, "revocation callbacks")
	}

	crmUserID, err := parser.ParseRevocation(r)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:     audit.EventAuthFailure,
			Platform: platform,
			Details:  map[string]interface{}{"reason": "invalid revocation callback"},
		})
		return apperrors.InvalidToken("Invalid revocation request").WithCause(err)
	}

	userID := model.PlatformUserID(crmUserID, platform)
	deleted, err := s.userRepo.Delete(ctx, userID)
	if err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("userId", userID).Bool("deleted", deleted).Msg("crm credential revoked by platform")
	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventCredentialRevoked,
		UserID:   userID,
		Platform: platform,
	})
	return nil
}

func (s *AuthService) loginFailed(ctx context.Context, platform string, err error) {
	log.Warn().Err(err).Str("platform", platform).Msg("crm login failed")
	audit.Log(ctx, audit.Event{
		Type:     audit.EventLoginFailure,
		Platform: platform,
	})
}
