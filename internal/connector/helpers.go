package connector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crmbridge/bridge-server/internal/model"
)

// CRMUserID strips the platform suffix from a stored user id.
func CRMUserID(user *model.User) string {
	return strings.TrimSuffix(user.ID, "-"+user.Platform)
}

// SplitName splits a display name into first and last parts.
func SplitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.LastIndex(full, " "); i > 0 {
		return strings.TrimSpace(full[:i]), strings.TrimSpace(full[i+1:])
	}
	return "", full
}

// IDString renders numeric or string JSON ids uniformly.
func IDString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

// Subject returns the note subject or a fallback.
func Subject(subject, fallback string) string {
	if strings.TrimSpace(subject) != "" {
		return subject
	}
	return fallback
}

// MergeContacts appends candidates not already present by type and id.
func MergeContacts(dst []model.ContactCandidate, src ...model.ContactCandidate) []model.ContactCandidate {
	seen := make(map[string]struct{}, len(dst))
	for _, c := range dst {
		seen[contactKey(c)] = struct{}{}
	}
	for _, c := range src {
		if _, ok := seen[contactKey(c)]; ok {
			continue
		}
		seen[contactKey(c)] = struct{}{}
		dst = append(dst, c)
	}
	return dst
}

func contactKey(c model.ContactCandidate) string {
	return fmt.Sprintf("%s:%s", c.Type, c.ID)
}
