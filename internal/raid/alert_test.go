package raid

import (
	"strings"
	"testing"
	"time"
)

func TestFlags(t *testing.T) {
	t.Parallel()

	now := t0
	tests := []struct {
		name string
		ev   JoinEvent
		want string
	}{
		{
			name: "clean",
			ev:   JoinEvent{Username: "Alice", AccountCreatedAt: now.Add(-30 * 24 * time.Hour), HasAvatar: true},
			want: "No red flags",
		},
		{
			name: "everything",
			ev:   JoinEvent{Username: "Spammer123", AccountCreatedAt: now.Add(-time.Hour)},
			want: "🟠 New Account (< 7 days) | 🟠 No Avatar | 🟠 Bot-like Username",
		},
		{
			name: "digit run",
			ev:   JoinEvent{Username: "a_000_b", AccountCreatedAt: now.Add(-8 * 24 * time.Hour), HasAvatar: true},
			want: "🟠 Bot-like Username",
		},
		{
			name: "digits not trailing",
			ev:   JoinEvent{Username: "r2d2_fan", AccountCreatedAt: now.Add(-8 * 24 * time.Hour), HasAvatar: true},
			want: "No red flags",
		},
		{
			name: "exactly seven days",
			ev:   JoinEvent{Username: "bob", AccountCreatedAt: now.Add(-NewAccountAge), HasAvatar: true},
			want: "No red flags",
		},
	}
	for _, tt := range tests {
		if got := Flags(tt.ev, now).String(); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAccountAge(t *testing.T) {
	t.Parallel()

	if got := AccountAge(t0.Add(-(50 * time.Hour)), t0); got != "2d 2h" {
		t.Fatalf("unexpected age %q", got)
	}
	if got := AccountAge(t0.Add(time.Hour), t0); got != "0d 0h" {
		t.Fatalf("future creation should clamp, got %q", got)
	}
}

func TestBuildAlertVariants(t *testing.T) {
	t.Parallel()

	joins := raidJoins()
	opts := alertOptions{guildName: "Chapel", limits: DefaultLimits(), now: t0}

	channel := buildAlert(joins, opts)
	if channel.Title != "🚨 RAID ALERT 🚨" {
		t.Fatalf("unexpected title %q", channel.Title)
	}
	if channel.Description != "4 rapid member joins detected in 2 seconds" {
		t.Fatalf("unexpected description %q", channel.Description)
	}
	names := make([]string, 0, len(channel.Fields))
	for _, f := range channel.Fields {
		names = append(names, f.Name)
	}
	want := "Member 1,Member 2,Member 3,Member 4,Detection Window,Threshold,Actions Taken"
	if strings.Join(names, ",") != want {
		t.Fatalf("fields = %v", names)
	}
	if !strings.Contains(channel.Fields[0].Value, "**user0** (u0)") || !strings.Contains(channel.Fields[0].Value, "Flags: 🟠 Bot-like Username") {
		t.Fatalf("unexpected member line %q", channel.Fields[0].Value)
	}
	if channel.Fields[5].Value != "4 joins" {
		t.Fatalf("threshold field %q", channel.Fields[5].Value)
	}

	opts.direct = true
	direct := buildAlert(joins, opts)
	for _, f := range direct.Fields {
		if f.Name == "Actions Taken" {
			t.Fatalf("direct alert must not list actions")
		}
	}
	if !strings.Contains(direct.Description, "Chapel") {
		t.Fatalf("direct alert should name the server: %q", direct.Description)
	}
}

func TestBuildAlertCapsMemberFields(t *testing.T) {
	t.Parallel()

	joins := make([]JoinEvent, 30)
	for i := range joins {
		joins[i] = join("g", i, t0)
	}
	embed := buildAlert(joins, alertOptions{limits: DefaultLimits(), now: t0})
	if len(embed.Fields) > 25 {
		t.Fatalf("discord allows 25 fields, got %d", len(embed.Fields))
	}
	if embed.Fields[maxMemberFields].Value != "+10 more members" {
		t.Fatalf("unexpected overflow field %q", embed.Fields[maxMemberFields].Value)
	}
}
