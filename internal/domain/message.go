package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultTextBudget caps how much product text goes into one message.
const DefaultTextBudget = 1800

// TruncationMarker follows text that was cut to fit the budget.
const TruncationMarker = "\n... (truncated)"

// TruncateText returns text unchanged when it fits in budget runes, otherwise
// its first budget runes followed by TruncationMarker. A budget of zero or
// less disables the cap.
func TruncateText(text string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}
	runes := []rune(text)
	return string(runes[:budget]) + TruncationMarker
}

// WarningMessage renders the webhook content for a warning. Product text, when
// present, is appended in a code block after the summary lines.
func WarningMessage(ev WarningEvent, text string, budget int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**%s**", ev.Phenomenon)
	if label := ev.VTECLabel(); label != "" {
		fmt.Fprintf(&b, " %s", label)
	}
	if ev.Status != "" {
		fmt.Fprintf(&b, " [%s]", ev.Status)
	}
	b.WriteString("\n")

	if ev.IsEmergency {
		b.WriteString("**TORNADO EMERGENCY**\n")
	}
	if ev.IsPDS {
		b.WriteString("**PARTICULARLY DANGEROUS SITUATION**\n")
	}

	if ev.Issue != nil || ev.Expire != nil {
		b.WriteString("Issued: " + formatMessageTime(ev.Issue))
		b.WriteString(" | Expires: " + formatMessageTime(ev.Expire) + "\n")
	}

	if tags := threatTags(ev); tags != "" {
		b.WriteString(tags + "\n")
	}
	if ev.Location.FormattedAddress != "" {
		b.WriteString("Near: " + ev.Location.FormattedAddress + "\n")
	}
	if ev.RadarURL != "" {
		b.WriteString("Radar: " + ev.RadarURL + "\n")
	}

	text = strings.TrimSpace(text)
	if text != "" {
		b.WriteString("```\n" + TruncateText(text, budget) + "\n```")
	}
	return strings.TrimRight(b.String(), "\n")
}

// DiscussionMessage renders the webhook content for a mesoscale discussion.
func DiscussionMessage(item DiscussionItem, budget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", strings.TrimSpace(item.Title))
	if item.Link != "" {
		b.WriteString(item.Link + "\n")
	}
	if body := strings.TrimSpace(item.Body); body != "" {
		b.WriteString("```\n" + TruncateText(body, budget) + "\n```")
	}
	return strings.TrimRight(b.String(), "\n")
}

func threatTags(ev WarningEvent) string {
	var parts []string
	if ev.TornadoTag != "" {
		parts = append(parts, "Tornado: "+ev.TornadoTag)
	}
	if ev.DamageTag != "" {
		parts = append(parts, "Damage: "+ev.DamageTag)
	}
	if ev.HailTag != "" {
		parts = append(parts, "Hail: "+ev.HailTag+" in")
	}
	if ev.WindTag != "" {
		parts = append(parts, "Wind: "+ev.WindTag+" mph")
	}
	return strings.Join(parts, " | ")
}

func formatMessageTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// Attachment is a binary file sent alongside a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}
