package utils

import (
	"time"
)

const (
	// Time format constants
	TimeFormat = "2006-01-02 15:04:05"
	DateFormat = "2006-01-02"
)

// ParseDate parse date string
func ParseDate(dateStr string) (time.Time, error) {
	return time.Parse(DateFormat, dateStr)
}

// FormatTime format time
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// GetStartOfDay returns midnight of the given day
func GetStartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetEndOfDay returns the last instant of the given day
func GetEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// IsTimeInRange checks start <= t <= end
func IsTimeInRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// DefaultSalesWindow returns the default reporting window, the last 30 days.
func DefaultSalesWindow(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -30), now
}
