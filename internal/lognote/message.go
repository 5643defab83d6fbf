package lognote

import (
	"fmt"
	"html"
	"strings"
	"time"
)

type MessageLine struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Direction string    `json:"direction"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Links     []string  `json:"links,omitempty"`
}

// MessageNote is one CRM activity holding one or more messages.
type MessageNote struct {
	Subject     string        `json:"subject"`
	ContactName string        `json:"contactName,omitempty"`
	Number      string        `json:"number"`
	Lines       []MessageLine `json:"lines"`
}

func (l MessageLine) render(loc *time.Location) string {
	stamp := FormatTime(l.CreatedAt, loc)
	switch l.Kind {
	case "VoiceMail":
		return fmt.Sprintf("%s (%s): Voicemail recording %s", l.Sender, stamp, strings.Join(l.Links, " "))
	case "Fax":
		return fmt.Sprintf("%s (%s): Fax document %s", l.Sender, stamp, strings.Join(l.Links, " "))
	default:
		text := l.Text
		if len(l.Links) > 0 {
			text = strings.TrimSpace(text + " " + strings.Join(l.Links, " "))
		}
		return fmt.Sprintf("%s (%s): %s", l.Sender, stamp, text)
	}
}

func (n MessageNote) RenderText(loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation (%d %s)\n", len(n.Lines), plural(len(n.Lines), "message", "messages"))
	b.WriteString("BEGIN\n------------\n")
	for _, line := range n.Lines {
		b.WriteString(line.render(loc))
		b.WriteString("\n")
	}
	b.WriteString("------------\nEND")
	return b.String()
}

func (n MessageNote) RenderHTML(loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<div><b>Conversation (%d %s)</b></div><ul>", len(n.Lines), plural(len(n.Lines), "message", "messages"))
	for _, line := range n.Lines {
		fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(line.render(loc)))
	}
	b.WriteString("</ul>")
	return b.String()
}

// DefaultMessageSubject titles a message activity by kind and correspondent.
func DefaultMessageSubject(kind, who string) string {
	switch kind {
	case "VoiceMail":
		return fmt.Sprintf("Voicemail left by %s", who)
	case "Fax":
		return fmt.Sprintf("Fax with %s", who)
	default:
		return fmt.Sprintf("SMS conversation with %s", who)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
