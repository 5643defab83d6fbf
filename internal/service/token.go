package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/audit"
	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/repository"
)

// TokenService keeps OAuth credentials usable. Concurrent refreshes of the
// same credential are last-writer-wins.
type TokenService struct {
	userRepo repository.UserRepository
	client   *httpclient.Client
	buffer   time.Duration
	now      func() time.Time
}

func NewTokenService(userRepo repository.UserRepository, client *httpclient.Client, buffer time.Duration) *TokenService {
	return &TokenService{
		userRepo: userRepo,
		client:   client,
		buffer:   buffer,
		now:      time.Now,
	}
}

// NeedsRefresh reports whether the credential expires within the buffer.
func (s *TokenService) NeedsRefresh(user *model.User) bool {
	if user.TokenExpiry == nil {
		return false
	}
	return !user.TokenExpiry.After(s.now().Add(s.buffer))
}

// EnsureFresh returns the credential to use for the next CRM call, refreshing
// and persisting it first when it has expired.
func (s *TokenService) EnsureFresh(ctx context.Context, user *model.User, conn connector.Connector) (*model.User, error) {
	oauthConn, ok := conn.(connector.OAuthConnector)
	if !ok || !s.NeedsRefresh(user) {
		return user, nil
	}

	if user.RefreshToken == "" {
		s.refreshFailed(ctx, user, fmt.Errorf("no refresh token"))
		return nil, apperrors.TokenRefreshFailed(nil)
	}

	info := oauthConn.OAuthInfo(user.Hostname)
	var (
		tokens *model.TokenSet
		err    error
	)
	if refresher, ok := conn.(connector.TokenRefresher); ok {
		tokens, err = refresher.RefreshToken(ctx, user, info)
	} else {
		tokens, err = connector.RefreshGrant(ctx, s.client, info, user.RefreshToken)
	}
	if err != nil {
		s.refreshFailed(ctx, user, err)
		return nil, apperrors.TokenRefreshFailed(err)
	}

	params := model.UpdateTokensParams{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenExpiry:  tokens.Expiry(s.now()),
	}
	// Some platforms rotate refresh tokens and some do not.
	if params.RefreshToken == "" {
		params.RefreshToken = user.RefreshToken
	}
	if tokens.AdditionalInfo != nil {
		merged := user.AdditionalInfo()
		for k, v := range tokens.AdditionalInfo {
			merged[k] = v
		}
		blob, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("encode additional info: %w", err)
		}
		params.PlatformAdditionalInfo = model.JSONB(blob)
	}

	updated, err := s.userRepo.UpdateTokens(ctx, user.ID, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		return nil, apperrors.UnknownUser()
	}

	log.Info().
		Str("userId", user.ID).
		Str("platform", user.Platform).
		Msg("crm token refreshed")

	return updated, nil
}

func (s *TokenService) refreshFailed(ctx context.Context, user *model.User, err error) {
	log.Warn().
		Err(err).
		Str("userId", user.ID).
		Str("platform", user.Platform).
		Msg("crm token refresh failed")

	audit.Log(ctx, audit.Event{
		Type:     audit.EventTokenRefreshFailed,
		UserID:   user.ID,
		Platform: user.Platform,
	})
}
