package timecalc

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// DateLayout is the calendar-day format used for entry dates and grid keys.
const DateLayout = "2006-01-02"

// GenerateID creates a unique entry ID based on timestamp and random suffix.
func GenerateID(t time.Time) string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 5)
	for i := range suffix {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		suffix[i] = chars[n.Int64()]
	}
	return fmt.Sprintf("%s-%s", t.Format("20060102-150405"), string(suffix))
}

// FormatMinutes formats minutes as a human-readable string like "1h 40m" or "45m".
func FormatMinutes(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// WeekRange returns the Monday and Sunday of the ISO week containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	// Go's weekday: Sunday=0, Monday=1, …, Saturday=6
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7 // treat Sunday as 7 (ISO)
	}
	monday := t.AddDate(0, 0, -(wd - 1))
	monday = time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
	sunday := monday.AddDate(0, 0, 6)
	sunday = time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 23, 59, 59, 0, t.Location())
	return monday, sunday
}

// WeekDays returns the seven date keys (Monday first) of the ISO week containing t.
func WeekDays(t time.Time) []string {
	monday, _ := WeekRange(t)
	days := make([]string, 7)
	for i := range days {
		days[i] = monday.AddDate(0, 0, i).Format(DateLayout)
	}
	return days
}

// ISOWeekLabel returns a label like "2026-W09".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 of the same day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// DateKey formats t as a calendar-day key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a calendar-day key in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// IsWeekday reports whether the date key falls on wd. Invalid keys never match.
func IsWeekday(date string, wd time.Weekday) bool {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	return t.Weekday() == wd
}
