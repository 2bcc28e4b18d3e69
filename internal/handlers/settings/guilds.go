package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/bot"
)

// freshJoinWindow separates a real guild join from the GuildCreate burst on connect.
const freshJoinWindow = time.Minute

type guildStore interface {
	EnsureGuild(ctx context.Context, guildID, prefix string, reset bool) error
	DeleteGuild(ctx context.Context, guildID string) error
}

type directMessenger interface {
	SendDirectMessage(ctx context.Context, userID, content string) error
}

// Guilds keeps guild settings rows in step with the guilds the bot is in.
type Guilds struct {
	store         guildStore
	dm            directMessenger
	defaultPrefix string
	logger        *log.Entry
}

func NewGuilds(store guildStore, dm directMessenger, defaultPrefix string) *Guilds {
	return &Guilds{
		store:         store,
		dm:            dm,
		defaultPrefix: defaultPrefix,
		logger:        log.WithField("handler", "guilds"),
	}
}

func (g *Guilds) Handle(ctx context.Context, ev *bot.Event) (bool, error) {
	switch e := ev.Payload.(type) {
	case *discordgo.GuildCreate:
		return true, g.joined(ctx, e.Guild, ev.ReceivedAt)
	case *discordgo.GuildDelete:
		if e.Guild == nil || e.Unavailable {
			return true, nil
		}
		if err := g.store.DeleteGuild(ctx, e.ID); err != nil {
			return true, errors.WithMessage(err, "cant delete guild settings")
		}
		g.logger.WithField("guild_id", e.ID).Info("left guild")
		return false, nil
	}
	return true, nil
}

func (g *Guilds) joined(ctx context.Context, guild *discordgo.Guild, now time.Time) error {
	if guild == nil || guild.Unavailable {
		return nil
	}
	fresh := !guild.JoinedAt.IsZero() && now.Sub(guild.JoinedAt) < freshJoinWindow
	if err := g.store.EnsureGuild(ctx, guild.ID, g.defaultPrefix, fresh); err != nil {
		return errors.WithMessage(err, "cant ensure guild settings")
	}
	if !fresh {
		return nil
	}

	logger := g.logger.WithField("guild_id", guild.ID)
	logger.WithField("name", guild.Name).Info("joined guild")
	if guild.OwnerID == "" {
		return nil
	}
	if err := g.dm.SendDirectMessage(ctx, guild.OwnerID, WelcomeOwnerMessage(guild.Name, g.defaultPrefix)); err != nil {
		logger.WithField("error", err.Error()).Warn("cant thank the owner")
	}
	return nil
}

func WelcomeOwnerMessage(guildName, prefix string) string {
	return fmt.Sprintf("Thank you for adding The Holy Roller to **%s**!\n"+
		"Set a log channel with `%schannels log #channel` so moderation actions and raid alerts have somewhere to go. "+
		"Raid protection is enabled by default, see `%sraid info`.", guildName, prefix, prefix)
}
