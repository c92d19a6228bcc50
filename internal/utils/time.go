package utils

import (
	"strings"
	"time"
)

func ParseTimeISO(timeStr string) (time.Time, error) {
	return time.Parse(time.RFC3339, timeStr)
}

func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func StartOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday as 7
	}
	return StartOfDay(t.AddDate(0, 0, -weekday+1))
}

func StartOfMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
}

// EngagementWindow maps the window labels accepted by the engagement
// endpoints onto durations. Unknown labels fall back to 30d.
func EngagementWindow(label string) (string, time.Duration) {
	switch strings.ToLower(label) {
	case "7d":
		return "7d", 7 * 24 * time.Hour
	case "90d":
		return "90d", 90 * 24 * time.Hour
	case "1y":
		return "1y", 365 * 24 * time.Hour
	default:
		return "30d", 30 * 24 * time.Hour
	}
}

// RealtimeWindow parses 5m/15m/1h/24h, returning def for anything else.
func RealtimeWindow(label string, def time.Duration) time.Duration {
	switch strings.ToLower(label) {
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "24h":
		return 24 * time.Hour
	default:
		return def
	}
}

// NormalizePageDuration converts a client reported page stay to seconds.
// Values at or above MillisecondDetectionThreshold are taken as milliseconds.
// The second return is false when the result falls outside (0, MaxPageDurationSeconds].
func NormalizePageDuration(raw float64) (float64, bool) {
	seconds := raw
	if raw >= MillisecondDetectionThreshold {
		seconds = raw / 1000
	}
	if seconds <= 0 || seconds > MaxPageDurationSeconds {
		return 0, false
	}
	return seconds, true
}

// ElapsedPageDuration bounds an elapsed interval the same way.
func ElapsedPageDuration(from, to time.Time) (float64, bool) {
	seconds := to.Sub(from).Seconds()
	if seconds <= 0 || seconds > MaxPageDurationSeconds {
		return 0, false
	}
	return seconds, true
}
