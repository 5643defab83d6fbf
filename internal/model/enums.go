package model

type AuthType string

const (
	AuthTypeOAuth  AuthType = "oauth"
	AuthTypeAPIKey AuthType = "apiKey"
)

type MessageType string

const (
	MessageTypeSuccess MessageType = "success"
	MessageTypeWarning MessageType = "warning"
	MessageTypeError   MessageType = "error"
)

type CallDirection string

const (
	CallDirectionInbound  CallDirection = "Inbound"
	CallDirectionOutbound CallDirection = "Outbound"
)

// MessageKind is the RingCentral message type carried on each message.
type MessageKind string

const (
	MessageKindSMS       MessageKind = "SMS"
	MessageKindVoicemail MessageKind = "VoiceMail"
	MessageKindFax       MessageKind = "Fax"
)

const (
	// NewContactID marks the "create new contact" entry appended to search results.
	NewContactID   = "createNewContact"
	NewContactName = "Create new contact..."
)
