package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/bot"
	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/modlog"
)

// Audit log lookbacks per event kind.
const (
	KickAuditWindow    = 10 * time.Second
	BanAuditWindow     = 20 * time.Second
	TimeoutAuditWindow = 30 * time.Second
	ChannelAuditWindow = 30 * time.Second
)

type AuditResolver interface {
	FindExecutor(ctx context.Context, guildID string, action discordgo.AuditLogAction, targetID string, window time.Duration) (actorID, reason string, found bool)
}

type recorder interface {
	Consume(guildID, userID string, expected modlog.Kind, window time.Duration) (modlog.Action, bool)
}

type settingsReader interface {
	GetSetting(ctx context.Context, guildID, key string) (string, error)
}

type gateway interface {
	SendChannelEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
	User(ctx context.Context, userID string) (*discordgo.User, error)
	BanReason(ctx context.Context, guildID, userID string) (string, error)
}

// Logger narrates membership, moderation, message and server events into the
// guild's log channel. Actions done through the bot's own commands are taken from
// the recorder; everything else is attributed through the audit log.
type Logger struct {
	settings      settingsReader
	recorder      recorder
	audit         AuditResolver
	gateway       gateway
	consumeWindow time.Duration
	logger        *log.Entry

	mu     sync.Mutex
	guilds map[string]guildSnapshot
}

func NewLogger(settings settingsReader, recorder recorder, audit AuditResolver, gateway gateway, consumeWindow time.Duration) *Logger {
	if consumeWindow <= 0 {
		consumeWindow = modlog.DefaultWindow
	}
	return &Logger{
		settings:      settings,
		recorder:      recorder,
		audit:         audit,
		gateway:       gateway,
		consumeWindow: consumeWindow,
		logger:        log.WithField("handler", "eventlog"),
		guilds:        make(map[string]guildSnapshot),
	}
}

func (l *Logger) Handle(ctx context.Context, ev *bot.Event) (bool, error) {
	var (
		guildBefore guildSnapshot
		guildKnown  bool
	)
	switch e := ev.Payload.(type) {
	case *discordgo.GuildCreate:
		if e.Guild != nil {
			l.rememberGuild(e.Guild)
		}
		return true, nil
	case *discordgo.GuildUpdate:
		if e.Guild == nil {
			return true, nil
		}
		guildBefore, guildKnown = l.rememberGuild(e.Guild)
		if !guildKnown {
			return true, nil
		}
	case *discordgo.GuildDelete:
		if e.Guild != nil && !e.Unavailable {
			l.forgetGuild(e.ID)
		}
		return true, nil
	}

	logChannelID, err := l.settings.GetSetting(ctx, ev.GuildID, db.KeyLogChannel)
	if errors.Is(err, db.ErrNotFound) || (err == nil && logChannelID == "") {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("log channel lookup: %w", err)
	}

	n := &narration{Logger: l, guildID: ev.GuildID, logChannelID: logChannelID, now: ev.ReceivedAt}
	if n.now.IsZero() {
		n.now = time.Now()
	}

	switch e := ev.Payload.(type) {
	case *discordgo.GuildMemberAdd:
		if e.Member != nil && e.User != nil {
			n.memberJoined(ctx, e.User)
		}
	case *discordgo.GuildMemberRemove:
		if e.Member != nil && e.User != nil {
			n.memberRemoved(ctx, e.User)
		}
	case *discordgo.GuildBanAdd:
		if e.User != nil {
			n.banChanged(ctx, e.User, modlog.KindBanned)
		}
	case *discordgo.GuildBanRemove:
		if e.User != nil {
			n.banChanged(ctx, e.User, modlog.KindUnbanned)
		}
	case *discordgo.GuildMemberUpdate:
		if e.Member != nil && e.User != nil {
			n.memberUpdated(ctx, e.BeforeUpdate, e.Member)
		}
	case *discordgo.MessageDelete:
		n.messageDeleted(ctx, e.BeforeDelete)
	case *discordgo.MessageUpdate:
		if e.Message != nil {
			n.messageEdited(ctx, e.BeforeUpdate, e.Message)
		}
	case *discordgo.ChannelCreate:
		if e.Channel != nil {
			n.channelChanged(ctx, e.Channel, true)
		}
	case *discordgo.ChannelDelete:
		if e.Channel != nil {
			n.channelChanged(ctx, e.Channel, false)
		}
	case *discordgo.ChannelUpdate:
		if e.Channel != nil {
			n.channelUpdated(ctx, e.BeforeUpdate, e.Channel)
		}
	case *discordgo.GuildRoleCreate:
		if e.GuildRole != nil && e.Role != nil {
			n.roleCreated(ctx, e.Role)
		}
	case *discordgo.GuildUpdate:
		n.guildUpdated(ctx, guildBefore, e.Guild)
	case *discordgo.InviteCreate:
		if e.Invite != nil {
			n.inviteCreated(ctx, e)
		}
	}
	return true, nil
}

// narration carries the per-event context of one log entry.
type narration struct {
	*Logger
	guildID      string
	logChannelID string
	now          time.Time
}

func (n *narration) memberJoined(ctx context.Context, user *discordgo.User) {
	n.send(ctx, "", &discordgo.MessageEmbed{
		Title:       "Member Joined",
		Description: fmt.Sprintf("%s (%s) joined the server.", user.Mention(), user.ID),
		Color:       colorGreen,
		Timestamp:   n.timestamp(),
		Footer:      n.footer(userLabel(user), user.ID),
	})
}

func (n *narration) memberRemoved(ctx context.Context, user *discordgo.User) {
	if action, ok := n.recorder.Consume(n.guildID, user.ID, modlog.KindKicked, n.consumeWindow); ok {
		n.sendAction(ctx, user, action)
		return
	}
	if actorID, reason, found := n.audit.FindExecutor(ctx, n.guildID, discordgo.AuditLogActionMemberKick, user.ID, KickAuditWindow); found {
		n.sendAction(ctx, user, modlog.Action{Kind: modlog.KindKicked, ActorID: actorID, Reason: reason})
		return
	}
	n.send(ctx, "", &discordgo.MessageEmbed{
		Title:       "Member Left",
		Description: fmt.Sprintf("%s (%s) left the server.", user.Mention(), user.ID),
		Color:       colorRed,
		Timestamp:   n.timestamp(),
		Footer:      n.footer(userLabel(user), user.ID),
	})
}

func (n *narration) banChanged(ctx context.Context, user *discordgo.User, kind modlog.Kind) {
	if action, ok := n.recorder.Consume(n.guildID, user.ID, kind, n.consumeWindow); ok {
		n.sendAction(ctx, user, action)
		return
	}
	auditAction := discordgo.AuditLogActionMemberBanAdd
	if kind == modlog.KindUnbanned {
		auditAction = discordgo.AuditLogActionMemberBanRemove
	}
	action := modlog.Action{Kind: kind}
	action.ActorID, action.Reason, _ = n.audit.FindExecutor(ctx, n.guildID, auditAction, user.ID, BanAuditWindow)
	if action.Reason == "" && kind == modlog.KindBanned {
		reason, err := n.gateway.BanReason(ctx, n.guildID, user.ID)
		if err != nil {
			n.logger.WithField("guild_id", n.guildID).WithField("user_id", user.ID).WithField("error", err.Error()).Debug("cant read ban reason")
		}
		action.Reason = reason
	}
	n.sendAction(ctx, user, action)
}

func (n *narration) memberUpdated(ctx context.Context, before, after *discordgo.Member) {
	timedOut := isTimedOut(after, n.now)
	if before != nil && sameTimeout(before.CommunicationDisabledUntil, after.CommunicationDisabledUntil) {
		return
	}
	kind := modlog.KindUnmuted
	if timedOut {
		kind = modlog.KindMuted
	}
	if action, ok := n.recorder.Consume(n.guildID, after.User.ID, kind, n.consumeWindow); ok {
		n.sendTimeout(ctx, after, action)
		return
	}
	// without the cached member there is no way to tell a timeout change from any other update
	if before == nil {
		return
	}
	action := modlog.Action{Kind: kind}
	action.ActorID, action.Reason, _ = n.audit.FindExecutor(ctx, n.guildID, discordgo.AuditLogActionMemberUpdate, after.User.ID, TimeoutAuditWindow)
	n.sendTimeout(ctx, after, action)
}

func (n *narration) sendTimeout(ctx context.Context, member *discordgo.Member, action modlog.Action) {
	var until *time.Time
	if action.Kind == modlog.KindMuted {
		until = member.CommunicationDisabledUntil
		if action.Duration > 0 && !action.RecordedAt.IsZero() {
			t := action.RecordedAt.Add(action.Duration)
			until = &t
		}
	}
	n.sendActionUntil(ctx, member.User, action, until)
}

func (n *narration) messageDeleted(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "Message Deleted",
		Description: fmt.Sprintf("**Author:** %s\n**Channel:** <#%s>\n**Content:** %s",
			msg.Author.Mention(), msg.ChannelID, truncate(msg.Content, maxDescription)),
		Color:     colorRed,
		Timestamp: n.timestamp(),
		Footer:    n.footer(userLabel(msg.Author), msg.Author.ID),
	}
	if lines := attachmentLines(msg.Attachments); lines != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Attachments", Value: lines})
	}
	if image := firstImage(msg.Attachments); image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: image}
	}
	n.send(ctx, "", embed)
}

func (n *narration) messageEdited(ctx context.Context, before, after *discordgo.Message) {
	if before == nil || before.Author == nil || before.Author.Bot || before.Content == after.Content {
		return
	}
	n.send(ctx, "", &discordgo.MessageEmbed{
		Title: "Message Edited",
		Description: fmt.Sprintf("**Author:** %s\n**Channel:** <#%s>\n[Jump to message](https://discord.com/channels/%s/%s/%s)",
			before.Author.Mention(), before.ChannelID, n.guildID, before.ChannelID, before.ID),
		Color:     colorOrange,
		Timestamp: n.timestamp(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Before", Value: orNone(truncate(before.Content, maxFieldValue))},
			{Name: "After", Value: orNone(truncate(after.Content, maxFieldValue))},
		},
		Footer: n.footer(userLabel(before.Author), before.Author.ID),
	})
}

func (n *narration) channelChanged(ctx context.Context, channel *discordgo.Channel, created bool) {
	auditAction := discordgo.AuditLogActionChannelDelete
	embed := &discordgo.MessageEmbed{
		Title:       "Channel Deleted",
		Description: fmt.Sprintf("Channel `%s` was deleted.", channel.Name),
		Color:       colorRed,
		Timestamp:   n.timestamp(),
	}
	if created {
		auditAction = discordgo.AuditLogActionChannelCreate
		embed.Title = "Channel Created"
		embed.Description = fmt.Sprintf("Channel %s was created.", channel.Mention())
		embed.Color = colorGreen
	}

	n.attribute(ctx, embed, auditAction, channel.ID)
	n.send(ctx, "", embed)
}

func (n *narration) sendAction(ctx context.Context, user *discordgo.User, action modlog.Action) {
	n.sendActionUntil(ctx, user, action, nil)
}

func (n *narration) sendActionUntil(ctx context.Context, user *discordgo.User, action modlog.Action, until *time.Time) {
	actorName := n.userName(ctx, action.ActorID)
	embed := ModerationEmbed(user, action.Kind, actorName, action.ActorID, action.Reason, until, n.now)
	n.send(ctx, action.LogChannelID, embed)
}

// send prefers the channel stored with a recorded action over the configured one.
func (n *narration) send(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) {
	if channelID == "" {
		channelID = n.logChannelID
	}
	if err := n.gateway.SendChannelEmbed(ctx, channelID, embed); err != nil {
		n.logger.
			WithField("guild_id", n.guildID).
			WithField("channel_id", channelID).
			WithField("title", embed.Title).
			WithField("error", err.Error()).
			Warn("cant send log entry")
	}
}

func (n *narration) userName(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	user, err := n.gateway.User(ctx, userID)
	if err != nil || user == nil {
		return "<@" + userID + ">"
	}
	return userLabel(user)
}

func (n *narration) footer(name, id string) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Action made by: %s (%s).\nUTC: %s", name, id, n.utc())}
}

func (n *narration) unknownFooter() *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: "Action made by: Unknown.\nUTC: " + n.utc()}
}

func (n *narration) timestamp() string {
	return n.now.UTC().Format(time.RFC3339)
}

func (n *narration) utc() string {
	return n.now.UTC().Format(footerTimeLayout)
}

func isTimedOut(member *discordgo.Member, now time.Time) bool {
	return member.CommunicationDisabledUntil != nil && member.CommunicationDisabledUntil.After(now)
}

func sameTimeout(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
