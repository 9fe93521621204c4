package utils

import "time"

// Now returns the current time in UTC. All persisted timestamps go through
// this so provider clocks and server clocks compare cleanly.
func Now() time.Time {
	return time.Now().UTC()
}

// UnixToTime converts a unix-seconds timestamp (as SendGrid sends them) to a
// UTC time.Time. Non-positive values yield the zero time.
func UnixToTime(timestamp int64) time.Time {
	if timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(timestamp, 0).UTC()
}

// FormatISO8601 formats a time.Time as RFC3339 in UTC.
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
