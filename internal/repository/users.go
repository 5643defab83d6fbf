package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/crmbridge/bridge-server/internal/database"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/util"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error)
	UpdateTokens(ctx context.Context, id string, params model.UpdateTokensParams) (*model.User, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

type userRepo struct {
	db  database.DBTX
	box *util.SecretBox
}

func NewUserRepository(db *sqlx.DB, box *util.SecretBox) UserRepository {
	return &userRepo{db: db, box: box}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	found, err := HandleNotFound(&user, err)
	if err != nil || found == nil {
		return nil, err
	}
	return r.open(found)
}

func (r *userRepo) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	accessToken, err := r.box.Seal(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refreshToken, err := r.box.Seal(params.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	var user model.User
	err = r.db.GetContext(ctx, &user, `
		INSERT INTO users (
			id, platform, hostname, name, timezone_name, timezone_offset,
			access_token, refresh_token, token_expiry, platform_additional_info, rc_user_number
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			name = EXCLUDED.name,
			timezone_name = EXCLUDED.timezone_name,
			timezone_offset = EXCLUDED.timezone_offset,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			platform_additional_info = EXCLUDED.platform_additional_info,
			rc_user_number = EXCLUDED.rc_user_number,
			updated_at = NOW()
		RETURNING *
	`, params.ID, params.Platform, params.Hostname, params.Name, params.TimezoneName, params.TimezoneOffset,
		accessToken, refreshToken, params.TokenExpiry, params.PlatformAdditionalInfo, params.RCUserNumber)
	if err != nil {
		return nil, err
	}
	return r.open(&user)
}

func (r *userRepo) UpdateTokens(ctx context.Context, id string, params model.UpdateTokensParams) (*model.User, error) {
	accessToken, err := r.box.Seal(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refreshToken, err := r.box.Seal(params.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	var user model.User
	err = r.db.GetContext(ctx, &user, `
		UPDATE users
		SET access_token = $2,
			refresh_token = $3,
			token_expiry = $4,
			platform_additional_info = COALESCE($5, platform_additional_info),
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, accessToken, refreshToken, params.TokenExpiry, nullableJSONB(params.PlatformAdditionalInfo))
	found, err := HandleNotFound(&user, err)
	if err != nil || found == nil {
		return nil, err
	}
	return r.open(found)
}

func (r *userRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *userRepo) open(user *model.User) (*model.User, error) {
	var err error
	if user.AccessToken, err = r.box.Open(user.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token for %s: %w", user.ID, err)
	}
	if user.RefreshToken, err = r.box.Open(user.RefreshToken); err != nil {
		return nil, fmt.Errorf("open refresh token for %s: %w", user.ID, err)
	}
	return user, nil
}

// nullableJSONB lets COALESCE keep the stored blob when none is supplied.
func nullableJSONB(j model.JSONB) any {
	if len(j) == 0 {
		return nil
	}
	return string(j)
}
