package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
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

type MessageLogService struct {
	messageRepo repository.MessageLogRepository
	claims      ClaimStore
}

func NewMessageLogService(messageRepo repository.MessageLogRepository, claims ClaimStore) *MessageLogService {
	return &MessageLogService{
		messageRepo: messageRepo,
		claims:      claims,
	}
}

type pendingMessage struct {
	message           model.Message
	conversationID    string
	conversationLogID string
}

// dayNote is the CRM activity that same-day SMS of one conversation share.
type dayNote struct {
	thirdPartyLogID string
	lines           []lognote.MessageLine
}

type messageFailure struct {
	messageID string
	err       error
}

// AddMessageLog logs every message not logged before, one connector call per
// message. A failed message does not undo the ones already logged.
func (s *MessageLogService) AddMessageLog(ctx context.Context, sess *Session, req model.AddMessageLogRequest) (*model.MessageLogResult, error) {
	pending := flattenMessages(req)
	if len(pending) == 0 {
		return nil, apperrors.MissingRequired("logInfo.messages")
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.message.ID)
	}
	logged, err := s.messageRepo.FindByMessageIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	seen := make(map[string]struct{}, len(logged))
	for _, r := range logged {
		seen[r.MessageID] = struct{}{}
	}

	fresh := pending[:0]
	for _, p := range pending {
		if _, ok := seen[p.message.ID]; ok {
			continue
		}
		seen[p.message.ID] = struct{}{}
		fresh = append(fresh, p)
	}

	if len(fresh) == 0 {
		return &model.MessageLogResult{
			Successful:    true,
			LogIDs:        []string{},
			ReturnMessage: model.SuccessMessage("No new messages to log"),
		}, nil
	}

	number := correspondentNumber(req.LogInfo, fresh[0].message)
	if strings.TrimSpace(req.ContactID) == "" || req.ContactID == model.NewContactID {
		return &model.MessageLogResult{
			Successful:    false,
			LogIDs:        []string{},
			ReturnMessage: contactNotFound(number),
		}, nil
	}

	who := req.ContactName
	if who == "" {
		who = number
	}

	days := map[model.ConversationDay]*dayNote{}
	loggedIDs := []string{}
	var failures []messageFailure

	for _, p := range fresh {
		claimKey := redis.MessageLogClaimKey(p.message.ID)
		claimed, err := s.claims.Claim(ctx, claimKey)
		if err != nil {
			log.Warn().Err(err).Str("messageId", p.message.ID).Msg("message log claim unavailable")
		} else if !claimed {
			log.Debug().Str("messageId", p.message.ID).Msg("message already being logged")
			continue
		}

		logID, err := s.logOne(ctx, sess, req, p, who, number, days)
		if claimed {
			s.release(ctx, claimKey)
		}
		if err != nil {
			log.Warn().Err(err).Str("messageId", p.message.ID).Msg("message log failed")
			failures = append(failures, messageFailure{messageID: p.message.ID, err: err})
			continue
		}
		if logID != "" {
			loggedIDs = append(loggedIDs, p.message.ID)
		}
	}

	log.Info().
		Str("userId", sess.User.ID).
		Str("conversationId", req.LogInfo.ConversationID).
		Int("logged", len(loggedIDs)).
		Int("failed", len(failures)).
		Msg("messages logged")

	return &model.MessageLogResult{
		Successful:    len(loggedIDs) > 0 || len(failures) == 0,
		LogIDs:        loggedIDs,
		ReturnMessage: messageLogSummary(sess, len(loggedIDs), failures),
	}, nil
}

// logOne writes one message to the CRM and records it. It returns an empty id
// without error when a concurrent request recorded the message first.
func (s *MessageLogService) logOne(
	ctx context.Context,
	sess *Session,
	req model.AddMessageLogRequest,
	p pendingMessage,
	who, number string,
	days map[model.ConversationDay]*dayNote,
) (string, error) {
	line := messageLine(sess.User, p.message, who)
	kind := string(p.message.Type)
	note := lognote.MessageNote{
		Subject:     lognote.DefaultMessageSubject(kind, who),
		ContactName: req.ContactName,
		Number:      number,
	}

	var (
		day      *dayNote
		logID    string
		err      error
		groupSMS = p.message.Type == model.MessageKindSMS && p.conversationLogID != ""
	)

	if groupSMS {
		day, err = s.loadDay(ctx, model.ConversationDay{
			UserID:            sess.User.ID,
			Platform:          sess.User.Platform,
			ConversationLogID: p.conversationLogID,
		}, days)
		if err != nil {
			return "", err
		}
	}

	if day != nil && day.thirdPartyLogID != "" {
		note.Lines = append(append([]lognote.MessageLine{}, day.lines...), line)
		logID = day.thirdPartyLogID
		err = sess.Connector.UpdateMessageLog(ctx, connector.UpdateMessageLogRequest{
			User:            sess.User,
			AuthHeader:      sess.AuthHeader,
			ThirdPartyLogID: logID,
			ContactID:       req.ContactID,
			Message:         p.message,
			Note:            note,
		})
	} else {
		note.Lines = []lognote.MessageLine{line}
		logID, err = sess.Connector.CreateMessageLog(ctx, connector.CreateMessageLogRequest{
			User:        sess.User,
			AuthHeader:  sess.AuthHeader,
			ContactID:   req.ContactID,
			ContactType: req.ContactType,
			Message:     p.message,
			Note:        note,
		})
	}
	if err != nil {
		return "", err
	}

	snapshot, err := json.Marshal(line)
	if err != nil {
		return "", fmt.Errorf("encode message snapshot: %w", err)
	}
	record, err := s.messageRepo.Create(ctx, model.CreateMessageLogRecordParams{
		ID:                uuid.NewString(),
		MessageID:         p.message.ID,
		ConversationID:    p.conversationID,
		ConversationLogID: p.conversationLogID,
		MessageType:       p.message.Type,
		Platform:          sess.User.Platform,
		UserID:            sess.User.ID,
		ThirdPartyLogID:   logID,
		ContactID:         req.ContactID,
		MessageSnapshot:   model.JSONB(snapshot),
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("messageId", p.message.ID).
			Str("thirdPartyLogId", logID).
			Msg("crm message log written but record not saved")
		return "", apperrors.Database(err)
	}
	if record == nil {
		log.Warn().Str("messageId", p.message.ID).Msg("concurrent message log, record already present")
		return "", nil
	}

	if day != nil {
		day.thirdPartyLogID = logID
		day.lines = append(day.lines, line)
	}
	return logID, nil
}

// loadDay returns the running note for a conversation day, seeded from the
// SMS this user already recorded for it. Voicemail and fax keep their own
// activities and never seed a day.
func (s *MessageLogService) loadDay(ctx context.Context, key model.ConversationDay, days map[model.ConversationDay]*dayNote) (*dayNote, error) {
	if day, ok := days[key]; ok {
		return day, nil
	}

	records, err := s.messageRepo.FindDaySMS(ctx, key)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	day := &dayNote{}
	for _, r := range records {
		day.thirdPartyLogID = r.ThirdPartyLogID
		var line lognote.MessageLine
		if len(r.MessageSnapshot) == 0 {
			continue
		}
		if err := json.Unmarshal(r.MessageSnapshot, &line); err != nil {
			log.Warn().Err(err).Str("messageId", r.MessageID).Msg("unreadable message snapshot")
			continue
		}
		day.lines = append(day.lines, line)
	}
	days[key] = day
	return day, nil
}

func (s *MessageLogService) release(ctx context.Context, key string) {
	if err := s.claims.Release(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to release log claim")
	}
}

// flattenMessages merges the main batch and trailing batches into one list
// ordered by creation time, each message tagged with its batch.
func flattenMessages(req model.AddMessageLogRequest) []pendingMessage {
	batches := append([]model.MessageLogInfo{req.LogInfo}, req.TrailingLogInfo...)
	var out []pendingMessage
	for _, batch := range batches {
		conversationID := batch.ConversationID
		if conversationID == "" {
			conversationID = req.LogInfo.ConversationID
		}
		for _, m := range batch.Messages {
			if strings.TrimSpace(m.ID) == "" {
				continue
			}
			out = append(out, pendingMessage{
				message:           m,
				conversationID:    conversationID,
				conversationLogID: batch.ConversationLogID,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].message.CreationTime.Before(out[j].message.CreationTime)
	})
	return out
}

func correspondentNumber(info model.MessageLogInfo, first model.Message) string {
	if len(info.Correspondents) > 0 && info.Correspondents[0].PhoneNumber != "" {
		return info.Correspondents[0].PhoneNumber
	}
	if first.Direction == model.CallDirectionOutbound && len(first.To) > 0 {
		return first.To[0].PhoneNumber
	}
	return first.From.PhoneNumber
}

func messageLine(user *model.User, m model.Message, who string) lognote.MessageLine {
	sender := who
	if m.Direction == model.CallDirectionOutbound {
		sender = user.Name
		if sender == "" {
			sender = "You"
		}
	}
	line := lognote.MessageLine{
		ID:        m.ID,
		Kind:      string(m.Type),
		Direction: string(m.Direction),
		Sender:    sender,
		Text:      m.Subject,
		CreatedAt: m.CreationTime,
	}
	for _, a := range m.Attachments {
		link := a.Link
		if link == "" {
			link = a.URI
		}
		if link != "" {
			line.Links = append(line.Links, link)
		}
	}
	return line
}

func messageLogSummary(sess *Session, logged int, failures []messageFailure) *model.ReturnMessage {
	if len(failures) == 0 {
		return model.SuccessMessage(fmt.Sprintf("Logged %d %s", logged, pluralize(logged, "message", "messages")))
	}

	failedIDs := make([]string, 0, len(failures))
	for _, f := range failures {
		failedIDs = append(failedIDs, f.messageID)
	}

	if logged == 0 {
		msg := connector.HandleAPIError(failures[0].err, sess.Connector.Platform(), connector.OpCreateMessageLog)
		return msg.WithDetailText("Messages not logged", failedIDs...)
	}
	return model.WarningMessage(fmt.Sprintf("Logged %d of %d messages", logged, logged+len(failures))).
		WithDetailText("Messages not logged", failedIDs...)
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
