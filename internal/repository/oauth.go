package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/crmbridge/bridge-server/internal/database"
	"github.com/crmbridge/bridge-server/internal/model"
)

type OAuthStateRepository interface {
	Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error)
	// Consume deletes and returns an unexpired state, or nil if none matches.
	Consume(ctx context.Context, state string) (*model.OAuthState, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type oauthStateRepo struct {
	db database.DBTX
}

func NewOAuthStateRepository(db *sqlx.DB) OAuthStateRepository {
	return &oauthStateRepo{db: db}
}

func (r *oauthStateRepo) Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error) {
	var oauthState model.OAuthState
	err := r.db.GetContext(ctx, &oauthState, `
		INSERT INTO oauth_states (id, state, platform, hostname, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, uuid.NewString(), params.State, params.Platform, params.Hostname, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &oauthState, nil
}

func (r *oauthStateRepo) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	var oauthState model.OAuthState
	err := r.db.GetContext(ctx, &oauthState, `
		DELETE FROM oauth_states
		WHERE state = $1 AND expires_at > NOW()
		RETURNING *
	`, state)
	return HandleNotFound(&oauthState, err)
}

func (r *oauthStateRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
