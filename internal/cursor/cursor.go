// Package cursor converts the plugin directory's timestamp representation
// into comparable time values and back.
//
// The directory reports modification times in a human format such as
// "2024-03-05 4:15pm GMT" (12-hour clock, no leading zero on the hour,
// case-insensitive meridiem, always GMT). Some payloads carry RFC 3339
// timestamps instead. Both decode to the same time.Time so they can be
// compared when deciding whether a record is newer than the sync cursor.
package cursor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Epoch is the value returned for empty or malformed timestamps.
// Treating unknown times as infinitely old lets a first sync always proceed.
var Epoch = time.Unix(0, 0).UTC()

// Decode parses a provider timestamp. It never fails: empty or malformed
// input returns Epoch.
func Decode(text string) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return Epoch
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC()
	}

	t, err := parseHuman(text)
	if err != nil {
		return Epoch
	}
	return t
}

// Encode formats t in the provider's human format, e.g. "2024-03-05 4:15pm GMT".
// Seconds and below are dropped.
func Encode(t time.Time) string {
	t = t.UTC()
	hour := t.Hour()
	meridiem := "am"
	switch {
	case hour == 0:
		hour = 12
	case hour == 12:
		meridiem = "pm"
	case hour > 12:
		hour -= 12
		meridiem = "pm"
	}
	return fmt.Sprintf("%04d-%02d-%02d %d:%02d%s GMT",
		t.Year(), int(t.Month()), t.Day(), hour, t.Minute(), meridiem)
}

// Now returns the current time in the provider's human format.
func Now() string {
	return Encode(time.Now())
}

// IsAfter reports whether a is strictly later than b once both are decoded.
func IsAfter(a, b string) bool {
	return Decode(a).After(Decode(b))
}

// parseHuman parses "YYYY-MM-DD h:mmAM GMT".
func parseHuman(text string) (time.Time, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", text)
	}
	if len(fields) > 2 && !strings.EqualFold(fields[2], "GMT") {
		return time.Time{}, fmt.Errorf("unsupported timezone %q", fields[2])
	}

	date, err := time.Parse("2006-1-2", fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", fields[0], err)
	}

	clock := strings.ToLower(fields[1])
	var pm bool
	switch {
	case strings.HasSuffix(clock, "pm"):
		pm = true
	case strings.HasSuffix(clock, "am"):
	default:
		return time.Time{}, fmt.Errorf("missing meridiem in %q", fields[1])
	}
	clock = clock[:len(clock)-2]

	hourText, minuteText, ok := strings.Cut(clock, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("invalid clock %q", fields[1])
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 1 || hour > 12 {
		return time.Time{}, fmt.Errorf("invalid hour %q", hourText)
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 || len(minuteText) != 2 {
		return time.Time{}, fmt.Errorf("invalid minute %q", minuteText)
	}

	switch {
	case pm && hour != 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC), nil
}
