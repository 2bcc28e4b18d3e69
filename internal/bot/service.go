package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/infrastructure/discord"
)

type service struct {
	session       *discordgo.Session
	db            db.Client
	ops           *discord.Operations
	defaultPrefix string
}

func NewService(session *discordgo.Session, db db.Client, ops *discord.Operations, defaultPrefix string) *service {
	return &service{
		session:       session,
		db:            db,
		ops:           ops,
		defaultPrefix: defaultPrefix,
	}
}

func (s *service) GetSession() *discordgo.Session {
	return s.session
}

func (s *service) GetOps() *discord.Operations {
	return s.ops
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) DefaultPrefix() string {
	return s.defaultPrefix
}

// GetSettings returns stored settings with the default prefix filled in.
func (s *service) GetSettings(ctx context.Context, guildID string) (*db.GuildSettings, error) {
	settings, err := s.db.GetSettings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if settings.Prefix == "" {
		settings.Prefix = s.defaultPrefix
	}
	return settings, nil
}

func (s *service) GetPrefix(ctx context.Context, guildID string) string {
	prefix, err := s.db.GetSetting(ctx, guildID, db.KeyPrefix)
	if err != nil || prefix == "" {
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			log.WithField("guild_id", guildID).WithField("error", err.Error()).Warn("cant read prefix")
		}
		return s.defaultPrefix
	}
	return prefix
}
