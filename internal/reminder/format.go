package reminder

import (
	"fmt"
	"time"
)

// NotificationText is what the owner receives when a reminder fires.
func NotificationText(body string) string {
	return "🔔 Reminder: " + body
}

// ListLines renders reminders as 1-based "{i}) {datetime} — {body}" lines.
func ListLines(rs []Reminder, loc *time.Location) []string {
	out := make([]string, 0, len(rs))
	for i, r := range rs {
		out = append(out, fmt.Sprintf("%d) %s — %s", i+1, r.DateTime(loc), r.Body))
	}
	return out
}
