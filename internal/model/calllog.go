package model

import "time"

// CallLogRecord maps a RingCentral call session to the CRM activity created for it.
type CallLogRecord struct {
	ID              string    `db:"id" json:"id"`
	SessionID       string    `db:"session_id" json:"sessionId"`
	Platform        string    `db:"platform" json:"platform"`
	UserID          string    `db:"user_id" json:"userId"`
	ThirdPartyLogID string    `db:"third_party_log_id" json:"thirdPartyLogId"`
	ContactID       string    `db:"contact_id" json:"contactId"`
	NoteSnapshot    JSONB     `db:"note_snapshot" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateCallLogRecordParams struct {
	ID              string
	SessionID       string
	Platform        string
	UserID          string
	ThirdPartyLogID string
	ContactID       string
	NoteSnapshot    JSONB
}

type CallParty struct {
	PhoneNumber     string `json:"phoneNumber"`
	ExtensionNumber string `json:"extensionNumber,omitempty"`
	Name            string `json:"name,omitempty"`
}

type Recording struct {
	Link string `json:"link"`
}

// CallLogInfo is the call as reported by the RingCentral call log.
type CallLogInfo struct {
	SessionID          string        `json:"sessionId"`
	ID                 string        `json:"id"`
	TelephonySessionID string        `json:"telephonySessionId,omitempty"`
	Direction          CallDirection `json:"direction"`
	StartTime          int64         `json:"startTime"`
	Duration           int           `json:"duration"`
	From               CallParty     `json:"from"`
	To                 CallParty     `json:"to"`
	Result             string        `json:"result"`
	Recording          *Recording    `json:"recording,omitempty"`
}

// CorrespondentNumber is the far-end number of the call.
func (c CallLogInfo) CorrespondentNumber() string {
	if c.Direction == CallDirectionOutbound {
		return c.To.PhoneNumber
	}
	return c.From.PhoneNumber
}

func (c CallLogInfo) StartedAt() time.Time {
	return time.UnixMilli(c.StartTime).UTC()
}

type AddCallLogRequest struct {
	LogInfo              CallLogInfo       `json:"logInfo"`
	Subject              string            `json:"subject"`
	Note                 string            `json:"note"`
	ContactID            string            `json:"contactId"`
	ContactType          string            `json:"contactType"`
	ContactName          string            `json:"contactName"`
	AdditionalSubmission map[string]string `json:"additionalSubmission,omitempty"`
}

type UpdateCallLogRequest struct {
	SessionID     string  `json:"sessionId"`
	RecordingLink string  `json:"recordingLink"`
	Subject       *string `json:"subject,omitempty"`
	Note          *string `json:"note,omitempty"`
	Result        string  `json:"result,omitempty"`
	Duration      *int    `json:"duration,omitempty"`
}

type CallLogResult struct {
	Successful    bool           `json:"successful"`
	LogID         string         `json:"logId,omitempty"`
	Pending       bool           `json:"pending,omitempty"`
	ReturnMessage *ReturnMessage `json:"returnMessage,omitempty"`
}

type CallLogLookup struct {
	SessionID string       `json:"sessionId"`
	Matched   bool         `json:"matched"`
	LogID     string       `json:"logId,omitempty"`
	LogData   *CallLogData `json:"logData,omitempty"`
}

// CallLogData is what the CRM currently holds for a logged call.
type CallLogData struct {
	Subject string `json:"subject"`
	Note    string `json:"note"`
}
