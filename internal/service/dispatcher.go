package service

import (
	"context"

	"github.com/crmbridge/bridge-server/internal/connector"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/repository"
)

// Session is an authenticated user bound to their platform's connector.
type Session struct {
	User       *model.User
	Connector  connector.Connector
	AuthHeader string
}

type Dispatcher struct {
	registry *connector.Registry
	userRepo repository.UserRepository
	tokens   *TokenService
}

func NewDispatcher(registry *connector.Registry, userRepo repository.UserRepository, tokens *TokenService) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// Connector looks up a registered connector by platform name.
func (d *Dispatcher) Connector(platform string) (connector.Connector, error) {
	conn, ok := d.registry.Get(platform)
	if !ok {
		return nil, apperrors.UnknownPlatform(platform)
	}
	return conn, nil
}

// Resolve loads the user's credential, refreshes it when needed and builds the
// Authorization header the connector expects.
func (d *Dispatcher) Resolve(ctx context.Context, userID, platform string) (*Session, error) {
	conn, err := d.Connector(platform)
	if err != nil {
		return nil, err
	}

	user, err := d.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || user.Platform != platform {
		return nil, apperrors.NotAuthorized()
	}

	user, err = d.tokens.EnsureFresh(ctx, user, conn)
	if err != nil {
		return nil, err
	}

	return &Session{
		User:       user,
		Connector:  conn,
		AuthHeader: AuthHeader(conn, user),
	}, nil
}

// AuthHeader builds the Authorization value from a stored credential. API-key
// credentials keep the key in the access token column.
func AuthHeader(conn connector.Connector, user *model.User) string {
	if apiKeyConn, ok := conn.(connector.APIKeyConnector); ok {
		return connector.BasicHeader(apiKeyConn.BasicAuth(user.AccessToken))
	}
	return connector.BearerHeader(user.AccessToken)
}
