package model

// ContactCandidate is one CRM entity matched for a phone number. Never persisted.
type ContactCandidate struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Phone          string         `json:"phone,omitempty"`
	Type           string         `json:"type,omitempty"`
	Title          string         `json:"title,omitempty"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`
	IsNewContact   bool           `json:"isNewContact,omitempty"`
}

func NewContactSentinel() ContactCandidate {
	return ContactCandidate{
		ID:           NewContactID,
		Name:         NewContactName,
		IsNewContact: true,
	}
}
