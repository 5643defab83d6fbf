package connector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crmbridge/bridge-server/internal/model"
)

func TestCRMUserID(t *testing.T) {
	assert.Equal(t, "123", CRMUserID(&model.User{ID: "123-bullhorn", Platform: "bullhorn"}))
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("Ada King Lovelace")
	assert.Equal(t, "Ada King", first)
	assert.Equal(t, "Lovelace", last)

	first, last = SplitName("Plato")
	assert.Empty(t, first)
	assert.Equal(t, "Plato", last)
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "42", IDString(json.RawMessage(`42`)))
	assert.Equal(t, "abc", IDString(json.RawMessage(`"abc"`)))
}

func TestMergeContacts(t *testing.T) {
	merged := MergeContacts(
		[]model.ContactCandidate{{ID: "1", Type: "Contact"}},
		model.ContactCandidate{ID: "1", Type: "Contact"},
		model.ContactCandidate{ID: "1", Type: "Lead"},
	)
	assert.Len(t, merged, 2)
}
