package present

import (
	"fmt"
	"html"
	"strings"

	"remindd/internal/engine"
)

// formatHTML renders a reminder as a Telegram HTML message.
func formatHTML(n engine.Active, waiting int) string {
	var b strings.Builder

	b.WriteString("⏰ <b>")
	b.WriteString(html.EscapeString(orUntitled(n.Event.Title)))
	b.WriteString("</b>\n")

	b.WriteString(fmt.Sprintf("in <b>%s</b>", html.EscapeString(n.Tier.Label)))
	if n.Event.AllDay {
		b.WriteString(fmt.Sprintf(" — %s (all day)", n.Event.Start.Format("Mon, 2 Jan")))
	} else {
		b.WriteString(fmt.Sprintf(" — %s", n.Event.Start.Format("Mon, 2 Jan 15:04")))
	}
	b.WriteString("\n")

	if loc := strings.TrimSpace(n.Event.Location); loc != "" {
		b.WriteString("\U0001f4cd ")
		b.WriteString(html.EscapeString(loc))
		b.WriteString("\n")
	}
	if waiting > 0 {
		b.WriteString(fmt.Sprintf("\n<i>%d more reminder(s) waiting</i>", waiting))
	}
	return strings.TrimRight(b.String(), "\n")
}

func orUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(untitled event)"
	}
	return title
}
