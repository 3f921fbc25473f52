package expr

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// Duration returns the time between two HH:MM clock values formatted as
// "{h}h {m}m". An end earlier than start is taken to cross midnight.
// ok is false when either value is unset or not a clock time.
func Duration(start, end any) (string, bool) {
	from, ok := clockMinutes(start)
	if !ok {
		return "", false
	}
	to, ok := clockMinutes(end)
	if !ok {
		return "", false
	}
	if to < from {
		to += minutesPerDay
	}
	d := to - from
	return fmt.Sprintf("%dh %dm", d/60, d%60), true
}

// clockMinutes parses "HH:MM" (seconds, if present, are ignored) into
// minutes after midnight.
func clockMinutes(v any) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
