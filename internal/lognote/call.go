// Package lognote holds call and message notes as structured data and renders
// them into the free text a CRM stores. Updates edit fields and re-render.
package lognote

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Field is an extra labelled line, e.g. from a connector's additional submission.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type CallNote struct {
	Subject       string    `json:"subject"`
	Note          string    `json:"note,omitempty"`
	Direction     string    `json:"direction"`
	ContactName   string    `json:"contactName,omitempty"`
	ContactNumber string    `json:"contactNumber"`
	StartTime     time.Time `json:"startTime"`
	Duration      int       `json:"duration"`
	Result        string    `json:"result,omitempty"`
	RecordingLink string    `json:"recordingLink,omitempty"`
	Fields        []Field   `json:"fields,omitempty"`
}

// DefaultSubject mirrors how the RingCentral widget titles calls.
func DefaultSubject(direction, contactName, number string) string {
	who := contactName
	if who == "" {
		who = number
	}
	if direction == "Outbound" {
		return fmt.Sprintf("Outbound Call to %s", who)
	}
	return fmt.Sprintf("Inbound Call from %s", who)
}

func (n CallNote) lines(loc *time.Location) []Field {
	fields := []Field{}
	if n.Note != "" {
		fields = append(fields, Field{"Note", n.Note})
	}
	fields = append(fields, Field{"Contact Number", n.ContactNumber})
	if n.Result != "" {
		fields = append(fields, Field{"Result", n.Result})
	}
	fields = append(fields, Field{"Call Start Time", FormatTime(n.StartTime, loc)})
	fields = append(fields, Field{"Duration", FormatDuration(n.Duration)})
	if n.RecordingLink != "" {
		fields = append(fields, Field{"Call recording link", n.RecordingLink})
	}
	return append(fields, n.Fields...)
}

// RenderText renders the note body as plain bullet lines.
func (n CallNote) RenderText(loc *time.Location) string {
	var b strings.Builder
	for _, f := range n.lines(loc) {
		fmt.Fprintf(&b, "- %s: %s\n", f.Label, f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderHTML renders the note body for CRMs that store HTML.
func (n CallNote) RenderHTML(loc *time.Location) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, f := range n.lines(loc) {
		value := html.EscapeString(f.Value)
		if f.Label == "Call recording link" {
			value = fmt.Sprintf(`<a target="_blank" href="%s">open</a>`, html.EscapeString(f.Value))
		}
		fmt.Fprintf(&b, "<li><b>%s</b>: %s</li>", html.EscapeString(f.Label), value)
	}
	b.WriteString("</ul>")
	return b.String()
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func FormatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

// Location resolves a CRM timezone name, falling back to a fixed offset like "+05:30" or "-300".
func Location(name, offset string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if minutes, ok := parseOffsetMinutes(offset); ok {
		return time.FixedZone(offset, minutes*60)
	}
	return time.UTC
}

func parseOffsetMinutes(offset string) (int, bool) {
	offset = strings.TrimSpace(offset)
	if offset == "" {
		return 0, false
	}
	sign := 1
	switch offset[0] {
	case '-':
		sign = -1
		offset = offset[1:]
	case '+':
		offset = offset[1:]
	}
	var h, m int
	if strings.Contains(offset, ":") {
		if _, err := fmt.Sscanf(offset, "%d:%d", &h, &m); err != nil {
			return 0, false
		}
		return sign * (h*60 + m), true
	}
	if _, err := fmt.Sscanf(offset, "%d", &m); err != nil {
		return 0, false
	}
	return sign * m, true
}
