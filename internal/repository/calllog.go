package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/crmbridge/bridge-server/internal/database"
	"github.com/crmbridge/bridge-server/internal/model"
)

type CallLogRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*model.CallLogRecord, error)
	FindBySessionIDs(ctx context.Context, sessionIDs []string) ([]model.CallLogRecord, error)
	// Create returns nil without error when the session is already recorded.
	Create(ctx context.Context, params model.CreateCallLogRecordParams) (*model.CallLogRecord, error)
	UpdateNoteSnapshot(ctx context.Context, sessionID string, snapshot model.JSONB) error
}

type callLogRepo struct {
	db database.DBTX
}

func NewCallLogRepository(db *sqlx.DB) CallLogRepository {
	return &callLogRepo{db: db}
}

func (r *callLogRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.CallLogRecord, error) {
	var record model.CallLogRecord
	err := r.db.GetContext(ctx, &record, `
		SELECT * FROM call_log_records WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&record, err)
}

func (r *callLogRepo) FindBySessionIDs(ctx context.Context, sessionIDs []string) ([]model.CallLogRecord, error) {
	records := []model.CallLogRecord{}
	if len(sessionIDs) == 0 {
		return records, nil
	}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM call_log_records WHERE session_id = ANY($1)
	`, pq.Array(sessionIDs))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *callLogRepo) Create(ctx context.Context, params model.CreateCallLogRecordParams) (*model.CallLogRecord, error) {
	var record model.CallLogRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO call_log_records (id, session_id, platform, user_id, third_party_log_id, contact_id, note_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING *
	`, params.ID, params.SessionID, params.Platform, params.UserID, params.ThirdPartyLogID, params.ContactID, params.NoteSnapshot)
	return HandleNotFound(&record, err)
}

func (r *callLogRepo) UpdateNoteSnapshot(ctx context.Context, sessionID string, snapshot model.JSONB) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE call_log_records
		SET note_snapshot = $2, updated_at = NOW()
		WHERE session_id = $1
	`, sessionID, snapshot)
	return err
}
