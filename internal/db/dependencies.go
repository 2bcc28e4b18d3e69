package db

import "context"

type Client interface {
	Close() error

	GetSetting(ctx context.Context, guildID, key string) (string, error)
	SetSetting(ctx context.Context, guildID, key, value string) error
	DeleteSetting(ctx context.Context, guildID, key string) error
	GetSettings(ctx context.Context, guildID string) (*GuildSettings, error)
	EnsureGuild(ctx context.Context, guildID, prefix string, reset bool) error
	DeleteGuild(ctx context.Context, guildID string) error

	AddRaidIncident(ctx context.Context, incident *RaidIncident) error
	GetLastRaidIncident(ctx context.Context, guildID string) (*RaidIncident, error)
}
