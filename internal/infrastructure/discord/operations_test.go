package discord

import (
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	hrerrors "github.com/holyroller/holyroller/internal/errors"
)

const discordEpochMs = 1420070400000

func snowflakeAt(t time.Time) string {
	return strconv.FormatInt((t.UnixMilli()-discordEpochMs)<<22, 10)
}

func TestIsAdministrator(t *testing.T) {
	t.Parallel()

	roles := map[string]*discordgo.Role{
		"guild": {ID: "guild", Permissions: discordgo.PermissionViewChannel},
		"admin": {ID: "admin", Permissions: discordgo.PermissionAdministrator | discordgo.PermissionKickMembers},
		"mod":   {ID: "mod", Permissions: discordgo.PermissionKickMembers | discordgo.PermissionBanMembers},
	}

	tests := []struct {
		name   string
		member *discordgo.Member
		want   bool
	}{
		{"owner without roles", &discordgo.Member{User: &discordgo.User{ID: "owner"}}, true},
		{"admin role", &discordgo.Member{User: &discordgo.User{ID: "a"}, Roles: []string{"mod", "admin"}}, true},
		{"moderator only", &discordgo.Member{User: &discordgo.User{ID: "m"}, Roles: []string{"mod"}}, false},
		{"unknown role", &discordgo.Member{User: &discordgo.User{ID: "x"}, Roles: []string{"gone"}}, false},
		{"nil user", &discordgo.Member{}, false},
	}
	for _, tt := range tests {
		if got := IsAdministrator(tt.member, roles, "guild", "owner"); got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	roles["guild"].Permissions |= discordgo.PermissionAdministrator
	if !IsAdministrator(&discordgo.Member{User: &discordgo.User{ID: "x"}}, roles, "guild", "owner") {
		t.Fatalf("@everyone administrator should grant everyone")
	}
}

func TestMatchAuditEntry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	kick := discordgo.AuditLogActionMemberKick
	ban := discordgo.AuditLogActionMemberBanAdd

	entries := []*discordgo.AuditLogEntry{
		nil,
		{ID: snowflakeAt(now.Add(-time.Second)), TargetID: "other", UserID: "mod1", ActionType: &kick},
		{ID: snowflakeAt(now.Add(-2 * time.Second)), TargetID: "victim", UserID: "mod2", ActionType: &ban},
		{ID: snowflakeAt(now.Add(-3 * time.Second)), TargetID: "victim", UserID: "mod3", Reason: "rude", ActionType: &kick},
		{ID: snowflakeAt(now.Add(-time.Minute)), TargetID: "late", UserID: "mod4", ActionType: &kick},
	}

	actor, reason, ok := MatchAuditEntry(entries, kick, "victim", 10*time.Second, now)
	if !ok || actor != "mod3" || reason != "rude" {
		t.Fatalf("unexpected match: %q %q %v", actor, reason, ok)
	}
	if _, _, ok := MatchAuditEntry(entries, kick, "late", 10*time.Second, now); ok {
		t.Fatalf("entry older than the window must not match")
	}
	if _, _, ok := MatchAuditEntry(entries, kick, "late", 2*time.Minute, now); !ok {
		t.Fatalf("wider window should match")
	}
	if _, _, ok := MatchAuditEntry(entries, kick, "nobody", time.Hour, now); ok {
		t.Fatalf("unknown target must not match")
	}
}

func TestWrapMapsRESTErrors(t *testing.T) {
	t.Parallel()

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	if err := wrap(forbidden, "kick %s", "u"); !errors.Is(err, hrerrors.ErrNoPrivileges) {
		t.Fatalf("403 should map to ErrNoPrivileges: %v", err)
	}

	missing := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	err := wrap(missing, "get member")
	if !errors.Is(err, hrerrors.ErrNotFound) {
		t.Fatalf("404 should map to ErrNotFound: %v", err)
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		t.Fatalf("original error should stay reachable")
	}

	plain := errors.New("socket closed")
	if err := wrap(plain, "send"); errors.Is(err, hrerrors.ErrNoPrivileges) || !errors.Is(err, plain) {
		t.Fatalf("unexpected mapping: %v", err)
	}
}
