package bot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/infrastructure/discord"
)

// ServiceBot defines bot-specific operations
type ServiceBot interface {
	GetSession() *discordgo.Session
	GetOps() *discord.Operations
}

// ServiceDB defines database-specific operations
type ServiceDB interface {
	GetDB() db.Client
}

// Service defines the core bot service interface
type Service interface {
	ServiceBot
	ServiceDB
	GetSettings(ctx context.Context, guildID string) (*db.GuildSettings, error)
	GetPrefix(ctx context.Context, guildID string) string
	DefaultPrefix() string
}

// Event is a gateway event routed to a guild queue.
type Event struct {
	GuildID    string
	ReceivedAt time.Time
	Payload    any
}

// Handler defines the interface for all event handlers in the system
type Handler interface {
	Handle(ctx context.Context, ev *Event) (proceed bool, err error)
}
