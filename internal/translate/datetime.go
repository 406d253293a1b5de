package translate

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const dateLayout = "2006-01-02"

// ParseDate parses a date or datetime string leniently. Date-only values
// like "2020-01-01" and values without a zone are read as UTC.
// Returns time in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty time string", ErrInvalidDateTime)
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDateTime, s, err)
	}
	return t.UTC(), nil
}

// isDateOnly reports whether s is a bare YYYY-MM-DD date.
func isDateOnly(s string) bool {
	_, err := time.Parse(dateLayout, strings.TrimSpace(s))
	return err == nil
}

// FormatSTACTime formats a time.Time as RFC3339 for STAC.
// STAC uses RFC3339 format: "2023-06-15T14:00:00Z"
func FormatSTACTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MillisToTime converts a record timestamp to UTC time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// TimeToMillis converts t to a record timestamp.
func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// ParseDateTimeInterval parses a STAC datetime parameter into a half-open
// range [start, end). Either bound may be nil for open-ended intervals.
//
//   - "2020-01-01" covers that whole UTC day.
//   - "2020-01-01T12:00:00Z" covers that instant (one millisecond).
//   - "2020-01-01/2020-02-01" starts at the first value and ends before the
//     second, like a date filter.
//   - "../2020-02-01" and "2020-01-01/.." are open-ended.
func ParseDateTimeInterval(datetime string) (*time.Time, *time.Time, error) {
	datetime = strings.TrimSpace(datetime)
	if datetime == "" {
		return nil, nil, nil
	}

	if !strings.Contains(datetime, "/") {
		t, err := ParseDate(datetime)
		if err != nil {
			return nil, nil, err
		}
		end := t.Add(time.Millisecond)
		if isDateOnly(datetime) {
			end = t.AddDate(0, 0, 1)
		}
		return &t, &end, nil
	}

	parts := strings.Split(datetime, "/")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: interval must be 'start/end'", ErrInvalidDateTime)
	}

	var start, end *time.Time
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == ".." {
			continue
		}
		t, err := ParseDate(part)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			start = &t
		} else {
			end = &t
		}
	}

	if start != nil && end != nil && !end.After(*start) {
		return nil, nil, fmt.Errorf("%w: end %s must be after start %s",
			ErrInvalidDateTime, FormatSTACTime(*end), FormatSTACTime(*start))
	}

	return start, end, nil
}
