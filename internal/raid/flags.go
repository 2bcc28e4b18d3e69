package raid

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const NewAccountAge = 7 * 24 * time.Hour

var (
	digitRunPattern       = regexp.MustCompile(`\d{3,}`)
	trailingDigitsPattern = regexp.MustCompile(`[a-z]+\d+$`)
)

type SuspicionFlags struct {
	NewAccount  bool
	NoAvatar    bool
	BotLikeName bool
}

// Flags derives the suspicion flags of a join at the given time.
func Flags(ev JoinEvent, now time.Time) SuspicionFlags {
	name := strings.ToLower(ev.Username)
	return SuspicionFlags{
		NewAccount:  now.Sub(ev.AccountCreatedAt) < NewAccountAge,
		NoAvatar:    !ev.HasAvatar,
		BotLikeName: digitRunPattern.MatchString(name) || trailingDigitsPattern.MatchString(name),
	}
}

func (f SuspicionFlags) Any() bool {
	return f.NewAccount || f.NoAvatar || f.BotLikeName
}

func (f SuspicionFlags) String() string {
	var parts []string
	if f.NewAccount {
		parts = append(parts, "🟠 New Account (< 7 days)")
	}
	if f.NoAvatar {
		parts = append(parts, "🟠 No Avatar")
	}
	if f.BotLikeName {
		parts = append(parts, "🟠 Bot-like Username")
	}
	if len(parts) == 0 {
		return "No red flags"
	}
	return strings.Join(parts, " | ")
}

// AccountAge renders an age as days and hours.
func AccountAge(created, now time.Time) string {
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	days := int(age / (24 * time.Hour))
	hours := int(age % (24 * time.Hour) / time.Hour)
	return fmt.Sprintf("%dd %dh", days, hours)
}
