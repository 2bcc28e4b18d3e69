package moderation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	MaxMuteDays     = 28
	MaxMuteDuration = MaxMuteDays * 24 * time.Hour
)

var (
	ErrDurationFormat   = errors.New("invalid duration format")
	ErrDurationNotValid = errors.New("duration must be greater than 0")
	ErrDurationTooLong  = fmt.Errorf("duration must not exceed %d days", MaxMuteDays)

	durationPattern = regexp.MustCompile(`^(\d+)([a-zA-Z]+)$`)
	durationUnits   = map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}
)

// ParseMuteDuration parses "<n><unit>" with units s, m, h and d.
func ParseMuteDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrDurationFormat, s)
	}
	unit, ok := durationUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q, valid units are s, m, h, d", ErrDurationFormat, m[2])
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n > int64(MaxMuteDuration/time.Second) {
		return 0, ErrDurationTooLong
	}
	if n == 0 {
		return 0, ErrDurationNotValid
	}
	d := time.Duration(n) * unit
	if d > MaxMuteDuration {
		return 0, ErrDurationTooLong
	}
	return d, nil
}

// FormatDuration renders a mute duration in its largest whole unit.
func FormatDuration(d time.Duration) string {
	for _, u := range []struct {
		unit time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	} {
		if d >= u.unit && d%u.unit == 0 {
			n := int64(d / u.unit)
			if n == 1 {
				return "1 " + u.name
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return d.String()
}
