package lognote

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCall() CallNote {
	return CallNote{
		Subject:       "Inbound Call from Ada",
		Note:          "Asked about renewal",
		Direction:     "Inbound",
		ContactName:   "Ada",
		ContactNumber: "+14155550100",
		StartTime:     time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
		Duration:      125,
		Result:        "Call connected",
	}
}

func TestCallNoteRenderText(t *testing.T) {
	text := sampleCall().RenderText(time.UTC)

	assert.Contains(t, text, "- Note: Asked about renewal")
	assert.Contains(t, text, "- Contact Number: +14155550100")
	assert.Contains(t, text, "- Duration: 00:02:05")
	assert.Contains(t, text, "- Call Start Time: 2026-03-04 15:00:00 UTC")
	assert.NotContains(t, text, "recording")
}

func TestCallNoteRecordingUpdateIsStructural(t *testing.T) {
	note := sampleCall()
	before := note.RenderText(time.UTC)

	raw, err := json.Marshal(note)
	require.NoError(t, err)

	var restored CallNote
	require.NoError(t, json.Unmarshal(raw, &restored))
	restored.RecordingLink = "https://media.example.com/rec/1"
	after := restored.RenderText(time.UTC)

	assert.True(t, strings.HasPrefix(after, before))
	assert.Contains(t, after, "- Call recording link: https://media.example.com/rec/1")
}

func TestCallNoteRenderHTML(t *testing.T) {
	note := sampleCall()
	note.Note = "<script>x</script>"
	note.RecordingLink = "https://media.example.com/rec/1?a=1&b=2"

	out := note.RenderHTML(time.UTC)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, `href="https://media.example.com/rec/1?a=1&amp;b=2"`)
}

func TestDefaultSubject(t *testing.T) {
	assert.Equal(t, "Outbound Call to Ada", DefaultSubject("Outbound", "Ada", "+1"))
	assert.Equal(t, "Inbound Call from +14155550100", DefaultSubject("Inbound", "", "+14155550100"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatDuration(-5))
	assert.Equal(t, "01:01:01", FormatDuration(3661))
}

func TestLocation(t *testing.T) {
	t.Run("named zone", func(t *testing.T) {
		assert.Equal(t, "America/New_York", Location("America/New_York", "").String())
	})

	t.Run("colon offset", func(t *testing.T) {
		loc := Location("", "+05:30")
		_, off := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
		assert.Equal(t, 5*3600+30*60, off)
	})

	t.Run("minute offset", func(t *testing.T) {
		loc := Location("Not/AZone", "-300")
		_, off := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
		assert.Equal(t, -5*3600, off)
	})

	t.Run("falls back to UTC", func(t *testing.T) {
		assert.Equal(t, time.UTC, Location("", "garbage"))
	})
}

func TestMessageNoteRender(t *testing.T) {
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	note := MessageNote{
		Subject: "SMS conversation with Ada",
		Number:  "+14155550100",
		Lines: []MessageLine{
			{ID: "1", Kind: "SMS", Sender: "Ada", Text: "hi", CreatedAt: base},
			{ID: "2", Kind: "SMS", Sender: "Me", Text: "hello", CreatedAt: base.Add(time.Minute)},
		},
	}

	text := note.RenderText(time.UTC)
	assert.Contains(t, text, "Conversation (2 messages)")
	assert.Less(t, strings.Index(text, "Ada (2026-03-04 09:00:00 UTC): hi"), strings.Index(text, "Me (2026-03-04 09:01:00 UTC): hello"))
	assert.True(t, strings.HasSuffix(text, "END"))

	single := MessageNote{Lines: note.Lines[:1]}
	assert.Contains(t, single.RenderHTML(time.UTC), "Conversation (1 message)")
}

func TestMessageLineKinds(t *testing.T) {
	vm := MessageLine{Kind: "VoiceMail", Sender: "Ada", Links: []string{"https://media.example.com/vm/1"}}
	assert.Contains(t, vm.render(time.UTC), "Voicemail recording https://media.example.com/vm/1")

	fax := MessageLine{Kind: "Fax", Sender: "Ada", Links: []string{"https://media.example.com/fax/1"}}
	assert.Contains(t, fax.render(time.UTC), "Fax document")

	assert.Equal(t, "Voicemail left by Ada", DefaultMessageSubject("VoiceMail", "Ada"))
	assert.Equal(t, "SMS conversation with Ada", DefaultMessageSubject("SMS", "Ada"))
}
