package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/crmbridge/bridge-server/internal/database"
	"github.com/crmbridge/bridge-server/internal/model"
)

type MessageLogRepository interface {
	FindByMessageIDs(ctx context.Context, messageIDs []string) ([]model.MessageLogRecord, error)
	// FindDaySMS returns the SMS records of one user's conversation day on one
	// platform, oldest first.
	FindDaySMS(ctx context.Context, day model.ConversationDay) ([]model.MessageLogRecord, error)
	// Create returns nil without error when the message is already recorded.
	Create(ctx context.Context, params model.CreateMessageLogRecordParams) (*model.MessageLogRecord, error)
}

type messageLogRepo struct {
	db database.DBTX
}

func NewMessageLogRepository(db *sqlx.DB) MessageLogRepository {
	return &messageLogRepo{db: db}
}

func (r *messageLogRepo) FindByMessageIDs(ctx context.Context, messageIDs []string) ([]model.MessageLogRecord, error) {
	records := []model.MessageLogRecord{}
	if len(messageIDs) == 0 {
		return records, nil
	}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM message_log_records WHERE message_id = ANY($1)
	`, pq.Array(messageIDs))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *messageLogRepo) FindDaySMS(ctx context.Context, day model.ConversationDay) ([]model.MessageLogRecord, error) {
	records := []model.MessageLogRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM message_log_records
		WHERE conversation_log_id = $1 AND user_id = $2 AND platform = $3 AND message_type = $4
		ORDER BY created_at ASC
	`, day.ConversationLogID, day.UserID, day.Platform, model.MessageKindSMS)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *messageLogRepo) Create(ctx context.Context, params model.CreateMessageLogRecordParams) (*model.MessageLogRecord, error) {
	var record model.MessageLogRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO message_log_records (
			id, message_id, conversation_id, conversation_log_id, message_type, platform, user_id,
			third_party_log_id, contact_id, message_snapshot
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING *
	`, params.ID, params.MessageID, params.ConversationID, params.ConversationLogID, params.MessageType,
		params.Platform, params.UserID, params.ThirdPartyLogID, params.ContactID, params.MessageSnapshot)
	return HandleNotFound(&record, err)
}
