package moderation

import (
	"errors"
	"testing"
	"time"
)

func TestParseMuteDuration(t *testing.T) {
	t.Parallel()

	valid := map[string]time.Duration{
		"30s":  30 * time.Second,
		"10m":  10 * time.Minute,
		"2h":   2 * time.Hour,
		"1d":   24 * time.Hour,
		"28d":  MaxMuteDuration,
		"672h": MaxMuteDuration,
		" 5M ": 5 * time.Minute,
	}
	for input, want := range valid {
		got, err := ParseMuteDuration(input)
		if err != nil || got != want {
			t.Fatalf("ParseMuteDuration(%q) = %s, %v; want %s", input, got, err, want)
		}
	}

	invalid := map[string]error{
		"":                      ErrDurationFormat,
		"10":                    ErrDurationFormat,
		"m10":                   ErrDurationFormat,
		"10w":                   ErrDurationFormat,
		"-5m":                   ErrDurationFormat,
		"0m":                    ErrDurationNotValid,
		"29d":                   ErrDurationTooLong,
		"673h":                  ErrDurationTooLong,
		"99999999999999999999s": ErrDurationTooLong,
	}
	for input, want := range invalid {
		if _, err := ParseMuteDuration(input); !errors.Is(err, want) {
			t.Fatalf("ParseMuteDuration(%q) error = %v, want %v", input, err, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := map[time.Duration]string{
		24 * time.Hour:   "1 day",
		48 * time.Hour:   "2 days",
		90 * time.Minute: "90 minutes",
		time.Hour:        "1 hour",
		45 * time.Second: "45 seconds",
	}
	for d, want := range tests {
		if got := FormatDuration(d); got != want {
			t.Fatalf("FormatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}
