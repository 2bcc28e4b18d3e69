package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/handlers/commands"
	"github.com/holyroller/holyroller/internal/raid"
)

const (
	maxPrefixLength = 5
	embedColor      = 0x8C1B1B
	maxValueLength  = 1024
)

var colorPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

type store interface {
	GetSetting(ctx context.Context, guildID, key string) (string, error)
	SetSetting(ctx context.Context, guildID, key, value string) error
	DeleteSetting(ctx context.Context, guildID, key string) error
	GetSettings(ctx context.Context, guildID string) (*db.GuildSettings, error)
	GetLastRaidIncident(ctx context.Context, guildID string) (*db.RaidIncident, error)
}

// Settings owns the per-guild configuration commands and the feature request link.
type Settings struct {
	store         store
	limits        raid.Limits
	defaultPrefix string
	logger        *log.Entry
}

func NewSettings(store store, limits raid.Limits, defaultPrefix string) *Settings {
	return &Settings{
		store:         store,
		limits:        limits,
		defaultPrefix: defaultPrefix,
		logger:        log.WithField("handler", "settings"),
	}
}

func (s *Settings) Commands() []*commands.Command {
	choices := func(values ...string) []*discordgo.ApplicationCommandOptionChoice {
		out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(values))
		for _, v := range values {
			out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v})
		}
		return out
	}
	str := func(name, desc string, required bool, values ...string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        name,
			Description: desc,
			Required:    required,
			Choices:     choices(values...),
		}
	}

	return []*commands.Command{
		{
			Name:        "prefix",
			Description: "Change the command prefix of this server",
			Usage:       "prefix <new prefix>",
			Permission:  discordgo.PermissionManageServer,
			Options:     []*discordgo.ApplicationCommandOption{str("prefix", "New prefix", true)},
			Run:         s.prefix,
		},
		{
			Name:        "channels",
			Description: "Set the log, welcome or goodbye channel",
			Usage:       "channels <log|welcome|goodbye> <#channel>",
			Permission:  discordgo.PermissionManageServer,
			Options: []*discordgo.ApplicationCommandOption{
				str("type", "Channel type", true, "log", "welcome", "goodbye"),
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Target channel",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
			Run: s.channels,
		},
		{
			Name:        "messages",
			Description: "Configure your welcome and goodbye messages",
			Usage:       "messages <welcome|goodbye> <title|message|color|image> <value>",
			Permission:  discordgo.PermissionManageServer,
			Options: []*discordgo.ApplicationCommandOption{
				str("target", "Message to configure", true, "welcome", "goodbye"),
				str("field", "Field to set", true, "title", "message", "color", "image"),
				str("value", "Value, message supports {user}, {mention} and {server}", true),
			},
			Run: s.messages,
		},
		{
			Name:        "settings",
			Description: "Show or delete stored settings",
			Usage:       "settings <show|delete> [key]",
			Permission:  discordgo.PermissionManageServer,
			Options: []*discordgo.ApplicationCommandOption{
				str("action", "What to do", true, "show", "delete"),
				str("key", "Setting to delete", false),
			},
			Run: s.settings,
		},
		{
			Name:        "raid",
			Description: "Configure raid protection",
			Usage:       "raid <enable|disable|info>",
			Permission:  discordgo.PermissionAdministrator,
			Options:     []*discordgo.ApplicationCommandOption{str("action", "What to do", true, "enable", "disable", "info")},
			Run:         s.raid,
		},
		{
			Name:        "request",
			Description: "Request a feature",
			Usage:       "request",
			Run:         s.request,
		},
	}
}

func (s *Settings) prefix(ctx context.Context, inv *commands.Invocation) error {
	prefix := inv.Arg(0)
	switch {
	case prefix == "":
		return inv.Reply.Reply(ctx, "Usage: `prefix <new prefix>`")
	case len(prefix) > maxPrefixLength || strings.ContainsAny(prefix, " \t\n`"):
		return inv.Reply.Reply(ctx, fmt.Sprintf("The prefix must be at most %d characters without spaces or backticks.", maxPrefixLength))
	}
	if err := s.store.SetSetting(ctx, inv.GuildID, db.KeyPrefix, prefix); err != nil {
		return err
	}
	return inv.Reply.Reply(ctx, fmt.Sprintf("Prefix set to `%s`", prefix))
}

var channelKeys = map[string]string{
	"log":     db.KeyLogChannel,
	"logs":    db.KeyLogChannel,
	"logging": db.KeyLogChannel,
	"welcome": db.KeyWelcomeChannel,
	"wlc":     db.KeyWelcomeChannel,
	"goodbye": db.KeyGoodbyeChannel,
	"bye":     db.KeyGoodbyeChannel,
}

func (s *Settings) channels(ctx context.Context, inv *commands.Invocation) error {
	key, ok := channelKeys[strings.ToLower(inv.Arg(0))]
	if !ok {
		return inv.Reply.Reply(ctx, "Invalid channel type. Use log, welcome or goodbye.")
	}
	channelID, ok := commands.ParseChannelID(inv.Arg(1))
	if !ok {
		return inv.Reply.Reply(ctx, "Please mention a text channel, for example `#logs`.")
	}
	if err := s.store.SetSetting(ctx, inv.GuildID, key, channelID); err != nil {
		return err
	}
	return inv.Reply.Reply(ctx, fmt.Sprintf("The %s channel is now <#%s>.", strings.TrimSuffix(strings.TrimSuffix(key, "_channel_id"), "_id"), channelID))
}

var messageKeys = map[string]map[string]string{
	"welcome": {
		"title":   db.KeyWelcomeTitle,
		"message": db.KeyWelcomeMessage,
		"color":   db.KeyWelcomeColor,
		"image":   db.KeyWelcomeImage,
	},
	"goodbye": {
		"title":   db.KeyGoodbyeTitle,
		"message": db.KeyGoodbyeMessage,
		"color":   db.KeyGoodbyeColor,
		"image":   db.KeyGoodbyeImage,
	},
}

func (s *Settings) messages(ctx context.Context, inv *commands.Invocation) error {
	target := strings.ToLower(inv.Arg(0))
	if target == "wlc" {
		target = "welcome"
	}
	fields, ok := messageKeys[target]
	if !ok {
		return inv.Reply.Reply(ctx, "Invalid choice. Use welcome or goodbye.")
	}
	field := strings.ToLower(inv.Arg(1))
	if field == "colour" || field == "hex" {
		field = "color"
	}
	key, ok := fields[field]
	if !ok {
		return inv.Reply.Reply(ctx, "Invalid field. Use title, message, color or image.")
	}

	value := inv.Rest(2)
	switch {
	case value == "":
		return inv.Reply.Reply(ctx, "Please provide a value.")
	case len(value) > maxValueLength:
		return inv.Reply.Reply(ctx, fmt.Sprintf("The value must be at most %d characters.", maxValueLength))
	case field == "color" && !colorPattern.MatchString(value):
		return inv.Reply.Reply(ctx, "Colors must be hex values such as `#018600`.")
	case field == "color":
		value = "#" + strings.TrimPrefix(strings.ToLower(value), "#")
	case field == "image" && !strings.HasPrefix(value, "https://") && !strings.HasPrefix(value, "http://"):
		return inv.Reply.Reply(ctx, "Images must be links starting with https://")
	}

	if err := s.store.SetSetting(ctx, inv.GuildID, key, value); err != nil {
		return err
	}
	return inv.Reply.Reply(ctx, fmt.Sprintf("The %s %s has been updated.", target, field))
}

func (s *Settings) settings(ctx context.Context, inv *commands.Invocation) error {
	switch strings.ToLower(inv.Arg(0)) {
	case "show", "":
		settings, err := s.store.GetSettings(ctx, inv.GuildID)
		if err != nil {
			return err
		}
		return inv.Reply.ReplyEmbed(ctx, s.settingsEmbed(settings))
	case "delete", "reset":
		key := strings.ToLower(inv.Arg(1))
		if !db.IsSettingKey(key) {
			return inv.Reply.Reply(ctx, fmt.Sprintf("Unknown setting. Known settings: `%s`", strings.Join(db.SettingKeys(), "`, `")))
		}
		err := s.store.DeleteSetting(ctx, inv.GuildID, key)
		if errors.Is(err, db.ErrNotFound) {
			return inv.Reply.Reply(ctx, fmt.Sprintf("`%s` is not set.", key))
		}
		if err != nil {
			return err
		}
		return inv.Reply.Reply(ctx, fmt.Sprintf("`%s` has been reset.", key))
	}
	return inv.Reply.Reply(ctx, "Usage: `settings <show|delete> [key]`")
}

func (s *Settings) raid(ctx context.Context, inv *commands.Invocation) error {
	switch strings.ToLower(inv.Arg(0)) {
	case "enable", "on":
		if err := s.store.SetSetting(ctx, inv.GuildID, db.KeyRaidResponseEnabled, "true"); err != nil {
			return err
		}
		return inv.Reply.Reply(ctx, "✅ Raid protection enabled.")
	case "disable", "off":
		if err := s.store.SetSetting(ctx, inv.GuildID, db.KeyRaidResponseEnabled, "false"); err != nil {
			return err
		}
		return inv.Reply.Reply(ctx, "❌ Raid protection disabled.")
	case "info", "":
		enabled := true
		if value, err := s.store.GetSetting(ctx, inv.GuildID, db.KeyRaidResponseEnabled); err == nil {
			enabled = db.ParseEnabled(value)
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		var last *db.RaidIncident
		if incident, err := s.store.GetLastRaidIncident(ctx, inv.GuildID); err == nil {
			last = incident
		} else if !errors.Is(err, db.ErrNotFound) {
			s.logger.WithField("guild_id", inv.GuildID).WithField("error", err.Error()).Warn("cant read last raid incident")
		}
		return inv.Reply.ReplyEmbed(ctx, RaidInfoEmbed(s.limits, enabled, last))
	}
	return inv.Reply.Reply(ctx, "Usage: `raid <enable|disable|info>`")
}

func (s *Settings) settingsEmbed(settings *db.GuildSettings) *discordgo.MessageEmbed {
	prefix := settings.Prefix
	if prefix == "" {
		prefix = s.defaultPrefix
	}
	channel := func(id string) string {
		if id == "" {
			return "Not set"
		}
		return "<#" + id + ">"
	}
	greeting := func(g db.Greeting) string {
		if g.IsEmpty() {
			return "Not set"
		}
		return fmt.Sprintf("Title: %s\nMessage: %s\nColor: %s\nImage: %s", orDash(g.Title), orDash(g.Message), orDash(g.Color), orDash(g.Image))
	}
	return &discordgo.MessageEmbed{
		Title: "Server settings",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Prefix", Value: "`" + prefix + "`", Inline: true},
			{Name: "Raid protection", Value: onOff(settings.RaidResponseEnabled), Inline: true},
			{Name: "Log channel", Value: channel(settings.LogChannelID), Inline: true},
			{Name: "Welcome channel", Value: channel(settings.WelcomeChannelID), Inline: true},
			{Name: "Goodbye channel", Value: channel(settings.GoodbyeChannelID), Inline: true},
			{Name: "Welcome message", Value: greeting(settings.Welcome)},
			{Name: "Goodbye message", Value: greeting(settings.Goodbye)},
		},
	}
}

// RaidInfoEmbed describes the raid protection of a guild.
func RaidInfoEmbed(limits raid.Limits, enabled bool, last *db.RaidIncident) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🛡️ Raid Protection",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: onOff(enabled), Inline: true},
			{Name: "Threshold", Value: fmt.Sprintf("%d joins in %s", limits.JoinThreshold, formatWindow(limits.Window)), Inline: true},
			{Name: "Alerts", Value: "Log channel, administrators and the server owner"},
			{Name: "Lockdown", Value: fmt.Sprintf("Invites and DMs paused for %s", formatLockdown(limits.LockdownDuration))},
			{Name: "Account Checks", Value: "New accounts (< 7 days), missing avatars, bot-like usernames"},
		},
	}
	if last != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Last raid",
			Value: fmt.Sprintf("<t:%d:R> with %d joins, lockdown %s",
				last.DetectedAt.Unix(), last.JoinCount, appliedOrFailed(last.LockdownApplied)),
		})
	}
	return embed
}

func formatWindow(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	}
	return d.String()
}

func formatLockdown(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int64(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int64(d/time.Minute))
	}
	return d.String()
}

func onOff(enabled bool) string {
	if enabled {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}

func appliedOrFailed(applied bool) string {
	if applied {
		return "applied"
	}
	return "failed"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
