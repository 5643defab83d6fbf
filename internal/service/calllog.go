package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/connector"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/lognote"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/redis"
	"github.com/crmbridge/bridge-server/internal/repository"
)

type CallLogService struct {
	callRepo   repository.CallLogRepository
	recordings RecordingCache
	claims     ClaimStore
}

func NewCallLogService(callRepo repository.CallLogRepository, recordings RecordingCache, claims ClaimStore) *CallLogService {
	return &CallLogService{
		callRepo:   callRepo,
		recordings: recordings,
		claims:     claims,
	}
}

type CallLogLookupResult struct {
	Successful    bool                  `json:"successful"`
	Logs          []model.CallLogLookup `json:"logs"`
	ReturnMessage *model.ReturnMessage  `json:"returnMessage,omitempty"`
}

func duplicateCallLog(sessionID string) *model.CallLogResult {
	return &model.CallLogResult{
		Successful:    false,
		ReturnMessage: model.WarningMessage(fmt.Sprintf("existing log for session %s", sessionID)),
	}
}

// AddCallLog creates the CRM activity for a call at most once per session id.
func (s *CallLogService) AddCallLog(ctx context.Context, sess *Session, req model.AddCallLogRequest) (*model.CallLogResult, error) {
	sessionID := strings.TrimSpace(req.LogInfo.SessionID)
	if sessionID == "" {
		return nil, apperrors.MissingRequired("logInfo.sessionId")
	}

	existing, err := s.callRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		return duplicateCallLog(sessionID), nil
	}

	number := req.LogInfo.CorrespondentNumber()
	if strings.TrimSpace(req.ContactID) == "" || req.ContactID == model.NewContactID {
		return &model.CallLogResult{Successful: false, ReturnMessage: contactNotFound(number)}, nil
	}

	claimKey := redis.CallLogClaimKey(sessionID)
	claimed, err := s.claims.Claim(ctx, claimKey)
	switch {
	case err != nil:
		// The unique constraint on session_id still rejects a racing insert.
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("call log claim unavailable")
	case !claimed:
		return duplicateCallLog(sessionID), nil
	default:
		defer s.release(ctx, claimKey)
		// A previous holder may have finished between the lookup and the claim.
		existing, err := s.callRepo.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if existing != nil {
			return duplicateCallLog(sessionID), nil
		}
	}

	cachedLink, err := s.recordings.Take(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("recording cache unavailable")
	}

	note := lognote.CallNote{
		Subject:       connector.Subject(req.Subject, lognote.DefaultSubject(string(req.LogInfo.Direction), req.ContactName, number)),
		Note:          req.Note,
		Direction:     string(req.LogInfo.Direction),
		ContactName:   req.ContactName,
		ContactNumber: number,
		StartTime:     req.LogInfo.StartedAt(),
		Duration:      req.LogInfo.Duration,
		Result:        req.LogInfo.Result,
	}
	if req.LogInfo.Recording != nil && req.LogInfo.Recording.Link != "" {
		note.RecordingLink = req.LogInfo.Recording.Link
	} else {
		note.RecordingLink = cachedLink
	}

	logID, err := sess.Connector.CreateCallLog(ctx, connector.CreateCallLogRequest{
		User:                 sess.User,
		AuthHeader:           sess.AuthHeader,
		ContactID:            req.ContactID,
		ContactType:          req.ContactType,
		CallLog:              req.LogInfo,
		Note:                 note,
		AdditionalSubmission: req.AdditionalSubmission,
	})
	if err != nil {
		s.restoreRecording(ctx, sessionID, cachedLink)
		return &model.CallLogResult{
			Successful:    false,
			ReturnMessage: connector.HandleAPIError(err, sess.Connector.Platform(), connector.OpCreateCallLog),
		}, nil
	}

	snapshot, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("encode note snapshot: %w", err)
	}
	record, err := s.callRepo.Create(ctx, model.CreateCallLogRecordParams{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Platform:        sess.User.Platform,
		UserID:          sess.User.ID,
		ThirdPartyLogID: logID,
		ContactID:       req.ContactID,
		NoteSnapshot:    model.JSONB(snapshot),
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("sessionId", sessionID).
			Str("thirdPartyLogId", logID).
			Msg("crm call log created but record not saved")
		return nil, apperrors.Database(err)
	}
	if record == nil {
		log.Warn().
			Str("sessionId", sessionID).
			Str("thirdPartyLogId", logID).
			Msg("concurrent call log for session, crm activity duplicated")
		return duplicateCallLog(sessionID), nil
	}

	log.Info().
		Str("userId", sess.User.ID).
		Str("sessionId", sessionID).
		Str("logId", logID).
		Bool("recording", note.RecordingLink != "").
		Msg("call logged")

	return &model.CallLogResult{
		Successful:    true,
		LogID:         logID,
		ReturnMessage: model.SuccessMessage("Call logged"),
	}, nil
}

// UpdateCallLog edits the structured note of a logged call and re-renders it
// into the CRM. A recording link for a call not yet logged is cached instead.
func (s *CallLogService) UpdateCallLog(ctx context.Context, sess *Session, req model.UpdateCallLogRequest) (*model.CallLogResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, apperrors.MissingRequired("sessionId")
	}

	record, err := s.callRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if record == nil {
		if req.RecordingLink == "" {
			return &model.CallLogResult{
				Successful:    false,
				ReturnMessage: model.WarningMessage(fmt.Sprintf("Call log not found for session %s", sessionID)),
			}, nil
		}
		if err := s.recordings.Put(ctx, sessionID, req.RecordingLink); err != nil {
			return nil, apperrors.Internal("Failed to save recording link").WithCause(err)
		}
		log.Info().Str("sessionId", sessionID).Msg("recording link cached until call is logged")
		return &model.CallLogResult{
			Successful: false,
			Pending:    true,
			ReturnMessage: model.WarningMessage(fmt.Sprintf(
				"Call log not found for session %s. Recording link will be attached once the call is logged", sessionID)),
		}, nil
	}

	var note lognote.CallNote
	if len(record.NoteSnapshot) > 0 {
		if err := json.Unmarshal(record.NoteSnapshot, &note); err != nil {
			return nil, fmt.Errorf("decode note snapshot: %w", err)
		}
	}
	if req.RecordingLink != "" {
		note.RecordingLink = req.RecordingLink
	}
	if req.Subject != nil {
		note.Subject = *req.Subject
	}
	if req.Note != nil {
		note.Note = *req.Note
	}
	if req.Result != "" {
		note.Result = req.Result
	}
	if req.Duration != nil {
		note.Duration = *req.Duration
	}

	err = sess.Connector.UpdateCallLog(ctx, connector.UpdateCallLogRequest{
		User:            sess.User,
		AuthHeader:      sess.AuthHeader,
		ThirdPartyLogID: record.ThirdPartyLogID,
		Note:            note,
	})
	if err != nil {
		return &model.CallLogResult{
			Successful:    false,
			LogID:         record.ThirdPartyLogID,
			ReturnMessage: connector.HandleAPIError(err, sess.Connector.Platform(), connector.OpUpdateCallLog),
		}, nil
	}

	snapshot, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("encode note snapshot: %w", err)
	}
	if err := s.callRepo.UpdateNoteSnapshot(ctx, sessionID, model.JSONB(snapshot)); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to save note snapshot")
	}

	return &model.CallLogResult{
		Successful:    true,
		LogID:         record.ThirdPartyLogID,
		ReturnMessage: model.SuccessMessage("Call log updated"),
	}, nil
}

// GetCallLog reports which sessions are logged, optionally with the CRM's
// current subject and note.
func (s *CallLogService) GetCallLog(ctx context.Context, sess *Session, sessionIDs []string, requireDetails bool) (*CallLogLookupResult, error) {
	if len(sessionIDs) == 0 {
		return nil, apperrors.MissingRequired("sessionIds")
	}

	records, err := s.callRepo.FindBySessionIDs(ctx, sessionIDs)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	bySession := make(map[string]model.CallLogRecord, len(records))
	for _, r := range records {
		bySession[r.SessionID] = r
	}

	result := &CallLogLookupResult{Successful: true, Logs: make([]model.CallLogLookup, 0, len(sessionIDs))}
	for _, sessionID := range sessionIDs {
		lookup := model.CallLogLookup{SessionID: sessionID}
		record, ok := bySession[sessionID]
		if ok {
			lookup.Matched = true
			lookup.LogID = record.ThirdPartyLogID
		}
		if ok && requireDetails {
			data, err := sess.Connector.GetCallLog(ctx, connector.GetCallLogRequest{
				User:            sess.User,
				AuthHeader:      sess.AuthHeader,
				ThirdPartyLogID: record.ThirdPartyLogID,
			})
			if err != nil {
				result.Successful = false
				result.ReturnMessage = connector.HandleAPIError(err, sess.Connector.Platform(), connector.OpGetCallLog)
			} else {
				lookup.LogData = data
			}
		}
		result.Logs = append(result.Logs, lookup)
	}
	return result, nil
}

func (s *CallLogService) restoreRecording(ctx context.Context, sessionID, link string) {
	if link == "" {
		return
	}
	if err := s.recordings.Put(ctx, sessionID, link); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to restore cached recording link")
	}
}

func (s *CallLogService) release(ctx context.Context, key string) {
	if err := s.claims.Release(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to release log claim")
	}
}
