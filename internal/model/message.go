package model

import "strconv"

// ReturnMessage is the user-facing notification attached to most responses.
type ReturnMessage struct {
	Message     string         `json:"message"`
	MessageType MessageType    `json:"messageType"`
	Details     []ReturnDetail `json:"details,omitempty"`
	TTL         int            `json:"ttl"`
}

type ReturnDetail struct {
	Title string             `json:"title"`
	Items []ReturnDetailItem `json:"items"`
}

type ReturnDetailItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	defaultSuccessTTL = 2000
	defaultWarningTTL = 3000
	defaultErrorTTL   = 5000
)

func SuccessMessage(msg string) *ReturnMessage {
	return &ReturnMessage{Message: msg, MessageType: MessageTypeSuccess, TTL: defaultSuccessTTL}
}

func WarningMessage(msg string) *ReturnMessage {
	return &ReturnMessage{Message: msg, MessageType: MessageTypeWarning, TTL: defaultWarningTTL}
}

func ErrorMessage(msg string) *ReturnMessage {
	return &ReturnMessage{Message: msg, MessageType: MessageTypeError, TTL: defaultErrorTTL}
}

// WithDetailText appends a single-line detail block.
func (m *ReturnMessage) WithDetailText(title string, lines ...string) *ReturnMessage {
	detail := ReturnDetail{Title: title}
	for i, line := range lines {
		detail.Items = append(detail.Items, ReturnDetailItem{
			ID:   strconv.Itoa(i + 1),
			Type: "text",
			Text: line,
		})
	}
	m.Details = append(m.Details, detail)
	return m
}
