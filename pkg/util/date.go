package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339 (with or without fraction), a bare date
// (2006-01-02), unix seconds and unix milliseconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		// 1e11 seconds is year 5138; anything larger is milliseconds.
		if ts > 1e11 {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// FormatDate renders t as RFC3339 in UTC, the candle date format.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// MillisToDate converts epoch milliseconds to a candle date.
func MillisToDate(ms int64) string {
	return FormatDate(time.UnixMilli(ms))
}

// TruncateToInterval floors t to the start of its candle. Weekly candles
// start on Monday.
func TruncateToInterval(t time.Time, interval string) time.Time {
	t = t.UTC()
	switch interval {
	case "1h":
		return t.Truncate(time.Hour)
	case "4h":
		return t.Truncate(4 * time.Hour)
	case "1w":
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
