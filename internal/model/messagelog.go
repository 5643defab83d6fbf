package model

import "time"

// MessageLogRecord maps one RingCentral message to the CRM activity holding it.
type MessageLogRecord struct {
	ID                string      `db:"id" json:"id"`
	MessageID         string      `db:"message_id" json:"messageId"`
	ConversationID    string      `db:"conversation_id" json:"conversationId"`
	ConversationLogID string      `db:"conversation_log_id" json:"conversationLogId"`
	MessageType       MessageKind `db:"message_type" json:"messageType"`
	Platform          string      `db:"platform" json:"platform"`
	UserID            string      `db:"user_id" json:"userId"`
	ThirdPartyLogID   string      `db:"third_party_log_id" json:"thirdPartyLogId"`
	ContactID         string      `db:"contact_id" json:"contactId"`
	MessageSnapshot   JSONB       `db:"message_snapshot" json:"-"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
}

type CreateMessageLogRecordParams struct {
	ID                string
	MessageID         string
	ConversationID    string
	ConversationLogID string
	MessageType       MessageKind
	Platform          string
	UserID            string
	ThirdPartyLogID   string
	ContactID         string
	MessageSnapshot   JSONB
}

// ConversationDay identifies the CRM activity that one user's same-day SMS
// share on one platform.
type ConversationDay struct {
	UserID            string
	Platform          string
	ConversationLogID string
}

type MessageParty struct {
	PhoneNumber     string `json:"phoneNumber"`
	ExtensionNumber string `json:"extensionNumber,omitempty"`
	Name            string `json:"name,omitempty"`
}

type Attachment struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URI  string `json:"uri"`
	Link string `json:"link,omitempty"`
}

type Message struct {
	ID           string         `json:"id"`
	Direction    CallDirection  `json:"direction"`
	Type         MessageKind    `json:"type"`
	Subject      string         `json:"subject"`
	From         MessageParty   `json:"from"`
	To           []MessageParty `json:"to"`
	CreationTime time.Time      `json:"creationTime"`
	Attachments  []Attachment   `json:"attachments,omitempty"`
	FaxPageCount int            `json:"faxPageCount,omitempty"`
}

// MessageLogInfo is one batch of a conversation, usually one day.
type MessageLogInfo struct {
	ConversationID    string         `json:"conversationId"`
	ConversationLogID string         `json:"conversationLogId"`
	Messages          []Message      `json:"messages"`
	Correspondents    []MessageParty `json:"correspondents"`
}

type AddMessageLogRequest struct {
	LogInfo              MessageLogInfo    `json:"logInfo"`
	TrailingLogInfo      []MessageLogInfo  `json:"trailingSMSLogInfo,omitempty"`
	ContactID            string            `json:"contactId"`
	ContactType          string            `json:"contactType"`
	ContactName          string            `json:"contactName"`
	AdditionalSubmission map[string]string `json:"additionalSubmission,omitempty"`
}

type MessageLogResult struct {
	Successful    bool           `json:"successful"`
	LogIDs        []string       `json:"logIds"`
	ReturnMessage *ReturnMessage `json:"returnMessage,omitempty"`
}
