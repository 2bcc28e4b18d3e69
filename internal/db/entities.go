package db

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

type (
	// GuildSettings is the logical row assembled from a guild's key/value settings.
	GuildSettings struct {
		GuildID             string
		Prefix              string
		LogChannelID        string
		WelcomeChannelID    string
		GoodbyeChannelID    string
		RaidResponseEnabled bool
		Welcome             Greeting
		Goodbye             Greeting
	}

	Greeting struct {
		Title   string
		Message string
		Color   string
		Image   string
	}

	RaidIncident struct {
		ID              string    `db:"id"`
		GuildID         string    `db:"guild_id"`
		DetectedAt      time.Time `db:"detected_at"`
		JoinCount       int       `db:"join_count"`
		LockdownUntil   time.Time `db:"lockdown_until"`
		LockdownApplied bool      `db:"lockdown_applied"`
		LogAlertSent    bool      `db:"log_alert_sent"`
		AdminsNotified  int       `db:"admins_notified"`
		OwnerNotified   bool      `db:"owner_notified"`
	}
)

const (
	KeyPrefix              = "prefix"
	KeyLogChannel          = "log_channel_id"
	KeyWelcomeChannel      = "welcome_channel_id"
	KeyGoodbyeChannel      = "goodbye_channel_id"
	KeyRaidResponseEnabled = "raid_response_enabled"
	KeyWelcomeTitle        = "welcome_title"
	KeyWelcomeMessage      = "welcome_message"
	KeyWelcomeColor        = "welcome_color"
	KeyWelcomeImage        = "welcome_image"
	KeyGoodbyeTitle        = "goodbye_title"
	KeyGoodbyeMessage      = "goodbye_message"
	KeyGoodbyeColor        = "goodbye_color"
	KeyGoodbyeImage        = "goodbye_image"
)

var settingKeys = map[string]struct{}{
	KeyPrefix:              {},
	KeyLogChannel:          {},
	KeyWelcomeChannel:      {},
	KeyGoodbyeChannel:      {},
	KeyRaidResponseEnabled: {},
	KeyWelcomeTitle:        {},
	KeyWelcomeMessage:      {},
	KeyWelcomeColor:        {},
	KeyWelcomeImage:        {},
	KeyGoodbyeTitle:        {},
	KeyGoodbyeMessage:      {},
	KeyGoodbyeColor:        {},
	KeyGoodbyeImage:        {},
}

// IsSettingKey reports whether key names a known guild setting.
func IsSettingKey(key string) bool {
	_, ok := settingKeys[strings.ToLower(key)]
	return ok
}

// SettingKeys returns the known setting keys in a stable order.
func SettingKeys() []string {
	return []string{
		KeyPrefix,
		KeyLogChannel,
		KeyWelcomeChannel,
		KeyGoodbyeChannel,
		KeyRaidResponseEnabled,
		KeyWelcomeTitle,
		KeyWelcomeMessage,
		KeyWelcomeColor,
		KeyWelcomeImage,
		KeyGoodbyeTitle,
		KeyGoodbyeMessage,
		KeyGoodbyeColor,
		KeyGoodbyeImage,
	}
}

// DefaultGuildSettings returns the settings a guild has before anything is stored.
func DefaultGuildSettings(guildID, prefix string) *GuildSettings {
	return &GuildSettings{
		GuildID:             guildID,
		Prefix:              prefix,
		RaidResponseEnabled: true,
	}
}

// Apply sets a single key/value row onto the settings. Unknown keys are ignored.
func (s *GuildSettings) Apply(key, value string) {
	switch key {
	case KeyPrefix:
		if value != "" {
			s.Prefix = value
		}
	case KeyLogChannel:
		s.LogChannelID = value
	case KeyWelcomeChannel:
		s.WelcomeChannelID = value
	case KeyGoodbyeChannel:
		s.GoodbyeChannelID = value
	case KeyRaidResponseEnabled:
		s.RaidResponseEnabled = ParseEnabled(value)
	case KeyWelcomeTitle:
		s.Welcome.Title = value
	case KeyWelcomeMessage:
		s.Welcome.Message = value
	case KeyWelcomeColor:
		s.Welcome.Color = value
	case KeyWelcomeImage:
		s.Welcome.Image = value
	case KeyGoodbyeTitle:
		s.Goodbye.Title = value
	case KeyGoodbyeMessage:
		s.Goodbye.Message = value
	case KeyGoodbyeColor:
		s.Goodbye.Color = value
	case KeyGoodbyeImage:
		s.Goodbye.Image = value
	}
}

// ParseEnabled treats anything but an explicit false value as enabled.
func ParseEnabled(value string) bool {
	enabled, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return true
	}
	return enabled
}

// IsEmpty reports whether nothing is configured for the greeting.
func (g Greeting) IsEmpty() bool {
	return g.Title == "" && g.Message == "" && g.Image == ""
}
