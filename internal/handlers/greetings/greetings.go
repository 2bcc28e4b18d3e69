package greetings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/bot"
	"github.com/holyroller/holyroller/internal/db"
)

// DefaultColor is used when no valid color is stored.
const DefaultColor = 0x018600

const footerTimeLayout = "2006-01-02 15:04:05"

type settingsSource interface {
	GetSettings(ctx context.Context, guildID string) (*db.GuildSettings, error)
}

type channelSender interface {
	SendChannelMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
	GuildName(ctx context.Context, guildID string) (string, error)
}

// Greeter posts the configured welcome and goodbye messages.
type Greeter struct {
	settings settingsSource
	sender   channelSender
	logger   *log.Entry
}

func NewGreeter(settings settingsSource, sender channelSender) *Greeter {
	return &Greeter{
		settings: settings,
		sender:   sender,
		logger:   log.WithField("handler", "greetings"),
	}
}

func (g *Greeter) Handle(ctx context.Context, ev *bot.Event) (bool, error) {
	var (
		user    *discordgo.User
		welcome bool
	)
	switch e := ev.Payload.(type) {
	case *discordgo.GuildMemberAdd:
		if e.Member == nil {
			return true, nil
		}
		user, welcome = e.User, true
	case *discordgo.GuildMemberRemove:
		if e.Member == nil {
			return true, nil
		}
		user = e.User
	default:
		return true, nil
	}
	if user == nil || user.Bot {
		return true, nil
	}

	settings, err := g.settings.GetSettings(ctx, ev.GuildID)
	if err != nil {
		return true, errors.WithMessage(err, "cant read greeting settings")
	}
	channelID, greeting := settings.GoodbyeChannelID, settings.Goodbye
	if welcome {
		channelID, greeting = settings.WelcomeChannelID, settings.Welcome
	}
	if channelID == "" || greeting.IsEmpty() {
		return true, nil
	}

	serverName, err := g.sender.GuildName(ctx, ev.GuildID)
	if err != nil {
		g.logger.WithField("guild_id", ev.GuildID).WithField("error", err.Error()).Debug("cant resolve guild name")
	}
	msg := Render(greeting, user, serverName, ev.ReceivedAt)
	if err := g.sender.SendChannelMessage(ctx, channelID, msg); err != nil {
		g.logger.
			WithField("guild_id", ev.GuildID).
			WithField("user_id", user.ID).
			WithField("error", err.Error()).
			Warn("cant send greeting")
	}
	return true, nil
}

// Render builds the greeting for user. The member is mentioned outside the embed
// so the mention pings.
func Render(greeting db.Greeting, user *discordgo.User, serverName string, now time.Time) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title: greeting.Title,
		Color: ParseColor(greeting.Color),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s (%s)\nUTC: %s", user.Username, user.ID, now.UTC().Format(footerTimeLayout)),
		},
	}
	if greeting.Message != "" {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:   "\u200b",
			Value:  Expand(greeting.Message, user, serverName),
			Inline: true,
		}}
	}
	if greeting.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: greeting.Image}
	}
	return &discordgo.MessageSend{
		Content: user.Mention(),
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
}

// Expand substitutes {user}, {mention} and {server}.
func Expand(message string, user *discordgo.User, serverName string) string {
	return strings.NewReplacer(
		"{user}", user.Username,
		"{mention}", user.Mention(),
		"{server}", serverName,
	).Replace(message)
}

// ParseColor reads a #rrggbb value, falling back to DefaultColor.
func ParseColor(value string) int {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(value) != 6 {
		return DefaultColor
	}
	color, err := strconv.ParseInt(value, 16, 32)
	if err != nil {
		return DefaultColor
	}
	return int(color)
}
