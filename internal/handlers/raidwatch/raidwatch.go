package raidwatch

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/bot"
	"github.com/holyroller/holyroller/internal/raid"
)

type joinObserver interface {
	OnJoin(ctx context.Context, ev raid.JoinEvent, now time.Time)
}

// Watcher feeds member joins into the raid detector.
type Watcher struct {
	detector joinObserver
	logger   *log.Entry
}

func NewWatcher(detector joinObserver) *Watcher {
	return &Watcher{
		detector: detector,
		logger:   log.WithField("handler", "raidwatch"),
	}
}

func (w *Watcher) Handle(ctx context.Context, ev *bot.Event) (bool, error) {
	add, ok := ev.Payload.(*discordgo.GuildMemberAdd)
	if !ok || add.Member == nil || add.User == nil {
		return true, nil
	}
	join := JoinFromMember(add.Member, ev.ReceivedAt)
	if join.GuildID == "" {
		join.GuildID = ev.GuildID
	}
	w.logger.WithField("guild_id", join.GuildID).WithField("user_id", join.UserID).Trace("join observed")
	// the queue may run behind, so the window is measured in arrival time
	w.detector.OnJoin(ctx, join, ev.ReceivedAt)
	return true, nil
}

// JoinFromMember builds a join event stamped with the time the gateway delivered it.
func JoinFromMember(member *discordgo.Member, receivedAt time.Time) raid.JoinEvent {
	join := raid.JoinEvent{
		GuildID:   member.GuildID,
		UserID:    member.User.ID,
		Username:  member.User.Username,
		JoinedAt:  receivedAt,
		HasAvatar: member.User.Avatar != "",
	}
	if created, err := discordgo.SnowflakeTimestamp(member.User.ID); err == nil {
		join.AccountCreatedAt = created
	}
	return join
}
