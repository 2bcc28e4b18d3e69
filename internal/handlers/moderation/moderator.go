package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/db"
	hrerrors "github.com/holyroller/holyroller/internal/errors"
	"github.com/holyroller/holyroller/internal/handlers/commands"
	"github.com/holyroller/holyroller/internal/modlog"
)

const (
	DefaultReason = "No reason provided"

	MsgNoPrivileges   = "The bot is missing permissions."
	MsgMissingArgs    = "You're missing one or more required arguments. Usage: `%s`"
	MsgBadUser        = "I couldn't find that user."
	MsgNotMember      = "Unable to %s a member who's not in the server."
	MsgAlreadyBanned  = "Unable to ban a user who's already banned."
	MsgNotBanned      = "That user is not banned in this server."
	MsgNotMuted       = "That member is not muted."
	MsgSetupLogging   = "\nPlease consider setting up the logging feature by running `/channels log`."
	msgSelfKick       = "Trying to give yourself the boot? No."
	msgSelfBan        = "Banning yourself? Not on my watch."
	msgSelfUnban      = "You're already in the server you want to be unbanned from."
	msgSelfMute       = "You can't mute yourself."
	msgSelfUnmute     = "You can't unmute yourself."
	msgDirectNotice   = "You've been %s from **%s**"
	msgDirectNoticeBy = "You've been %s from **%s** for **%s**"
)

type memberOps interface {
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	Unban(ctx context.Context, guildID, userID string) error
	Timeout(ctx context.Context, guildID, userID string, until *time.Time) error
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	BanReason(ctx context.Context, guildID, userID string) (string, error)
	SendDirectMessage(ctx context.Context, userID, content string) error
	GuildName(ctx context.Context, guildID string) (string, error)
}

type settingsReader interface {
	GetSetting(ctx context.Context, guildID, key string) (string, error)
}

// Moderator runs the moderation commands and records each action so the event
// logger can attribute the resulting gateway event.
type Moderator struct {
	ops      memberOps
	settings settingsReader
	recorder *modlog.Recorder
	ttl      time.Duration
	now      func() time.Time
	logger   *log.Entry
}

func NewModerator(ops memberOps, settings settingsReader, recorder *modlog.Recorder, ttl time.Duration) *Moderator {
	return &Moderator{
		ops:      ops,
		settings: settings,
		recorder: recorder,
		ttl:      ttl,
		now:      time.Now,
		logger:   log.WithField("handler", "moderation"),
	}
}

func (m *Moderator) Commands() []*commands.Command {
	user := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: desc, Required: true}
	}
	reason := &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the action"}

	return []*commands.Command{
		{
			Name:        "kick",
			Description: "Kick a member from the server",
			Usage:       "kick <@user> [reason]",
			Permission:  discordgo.PermissionKickMembers,
			Options:     []*discordgo.ApplicationCommandOption{user("Member to kick"), reason},
			Run:         m.kick,
		},
		{
			Name:        "ban",
			Description: "Ban a user from the server",
			Usage:       "ban <@user> [reason]",
			Permission:  discordgo.PermissionBanMembers,
			Options:     []*discordgo.ApplicationCommandOption{user("User to ban"), reason},
			Run:         m.ban,
		},
		{
			Name:        "unban",
			Description: "Lift a ban",
			Usage:       "unban <user id> [reason]",
			Permission:  discordgo.PermissionBanMembers,
			Options:     []*discordgo.ApplicationCommandOption{user("User to unban"), reason},
			Run:         m.unban,
		},
		{
			Name:        "mute",
			Aliases:     []string{"timeout", "stfu"},
			Description: "Time out a member",
			Usage:       "mute <@user> <duration: 10m, 2h, 1d> [reason]",
			Permission:  discordgo.PermissionModerateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				user("Member to mute"),
				{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "Duration such as 10m, 2h or 1d", Required: true},
				reason,
			},
			Run: m.mute,
		},
		{
			Name:        "unmute",
			Description: "Remove a member's timeout",
			Usage:       "unmute <@user> [reason]",
			Permission:  discordgo.PermissionModerateMembers,
			Options:     []*discordgo.ApplicationCommandOption{user("Member to unmute"), reason},
			Run:         m.unmute,
		},
	}
}

// target resolves the first argument and refuses self targeting. A false result
// means a reply was already sent.
func (m *Moderator) target(ctx context.Context, inv *commands.Invocation, usage, selfMsg string) (string, bool, error) {
	if inv.Arg(0) == "" {
		return "", false, inv.Reply.Reply(ctx, fmt.Sprintf(MsgMissingArgs, usage))
	}
	userID, ok := commands.ParseUserID(inv.Arg(0))
	if !ok {
		return "", false, inv.Reply.Reply(ctx, MsgBadUser)
	}
	if userID == inv.Author.ID {
		return "", false, inv.Reply.Reply(ctx, selfMsg)
	}
	return userID, true, nil
}

func (m *Moderator) kick(ctx context.Context, inv *commands.Invocation) error {
	userID, ok, err := m.target(ctx, inv, "kick <@user> [reason]", msgSelfKick)
	if !ok {
		return err
	}
	if _, err := m.ops.Member(ctx, inv.GuildID, userID); err != nil {
		if errors.Is(err, hrerrors.ErrNotFound) {
			return inv.Reply.Reply(ctx, fmt.Sprintf(MsgNotMember, "kick"))
		}
		return err
	}

	reason := reasonOrDefault(inv.Rest(1))
	m.notify(ctx, inv.GuildID, userID, "kicked", inv.Rest(1))
	return m.apply(ctx, inv, modlog.Action{Kind: modlog.KindKicked, UserID: userID, Reason: reason}, func() error {
		return m.ops.Kick(ctx, inv.GuildID, userID, reason)
	}, fmt.Sprintf("User <@%s> has been kicked%s.", userID, forReason(inv.Rest(1))))
}

func (m *Moderator) ban(ctx context.Context, inv *commands.Invocation) error {
	userID, ok, err := m.target(ctx, inv, "ban <@user> [reason]", msgSelfBan)
	if !ok {
		return err
	}
	if _, err := m.ops.BanReason(ctx, inv.GuildID, userID); err == nil {
		return inv.Reply.Reply(ctx, MsgAlreadyBanned)
	} else if !errors.Is(err, hrerrors.ErrNotFound) {
		return err
	}

	reason := reasonOrDefault(inv.Rest(1))
	if _, err := m.ops.Member(ctx, inv.GuildID, userID); err == nil {
		m.notify(ctx, inv.GuildID, userID, "banned", inv.Rest(1))
	}
	return m.apply(ctx, inv, modlog.Action{Kind: modlog.KindBanned, UserID: userID, Reason: reason}, func() error {
		return m.ops.Ban(ctx, inv.GuildID, userID, reason)
	}, fmt.Sprintf("User <@%s> has been banned%s.", userID, forReason(inv.Rest(1))))
}

func (m *Moderator) unban(ctx context.Context, inv *commands.Invocation) error {
	userID, ok, err := m.target(ctx, inv, "unban <user id> [reason]", msgSelfUnban)
	if !ok {
		return err
	}
	if _, err := m.ops.BanReason(ctx, inv.GuildID, userID); err != nil {
		if errors.Is(err, hrerrors.ErrNotFound) {
			return inv.Reply.Reply(ctx, MsgNotBanned)
		}
		return err
	}

	return m.apply(ctx, inv, modlog.Action{Kind: modlog.KindUnbanned, UserID: userID, Reason: reasonOrDefault(inv.Rest(1))}, func() error {
		return m.ops.Unban(ctx, inv.GuildID, userID)
	}, fmt.Sprintf("User <@%s> has been unbanned%s.", userID, forReason(inv.Rest(1))))
}

func (m *Moderator) mute(ctx context.Context, inv *commands.Invocation) error {
	usage := "mute <@user> <duration> [reason]"
	userID, ok, err := m.target(ctx, inv, usage, msgSelfMute)
	if !ok {
		return err
	}
	if inv.Arg(1) == "" {
		return inv.Reply.Reply(ctx, fmt.Sprintf(MsgMissingArgs, usage))
	}
	duration, err := ParseMuteDuration(inv.Arg(1))
	if err != nil {
		return inv.Reply.Reply(ctx, durationMessage(err))
	}
	if _, err := m.ops.Member(ctx, inv.GuildID, userID); err != nil {
		if errors.Is(err, hrerrors.ErrNotFound) {
			return inv.Reply.Reply(ctx, fmt.Sprintf(MsgNotMember, "mute"))
		}
		return err
	}

	until := m.now().Add(duration)
	m.notify(ctx, inv.GuildID, userID, "muted", inv.Rest(2))
	return m.apply(ctx, inv, modlog.Action{Kind: modlog.KindMuted, UserID: userID, Reason: reasonOrDefault(inv.Rest(2)), Duration: duration}, func() error {
		return m.ops.Timeout(ctx, inv.GuildID, userID, &until)
	}, fmt.Sprintf("User <@%s> has been muted for %s%s.", userID, FormatDuration(duration), forReason(inv.Rest(2))))
}

func (m *Moderator) unmute(ctx context.Context, inv *commands.Invocation) error {
	userID, ok, err := m.target(ctx, inv, "unmute <@user> [reason]", msgSelfUnmute)
	if !ok {
		return err
	}
	member, err := m.ops.Member(ctx, inv.GuildID, userID)
	if err != nil {
		if errors.Is(err, hrerrors.ErrNotFound) {
			return inv.Reply.Reply(ctx, fmt.Sprintf(MsgNotMember, "unmute"))
		}
		return err
	}
	if member.CommunicationDisabledUntil == nil || !member.CommunicationDisabledUntil.After(m.now()) {
		return inv.Reply.Reply(ctx, MsgNotMuted)
	}

	return m.apply(ctx, inv, modlog.Action{Kind: modlog.KindUnmuted, UserID: userID, Reason: reasonOrDefault(inv.Rest(1))}, func() error {
		return m.ops.Timeout(ctx, inv.GuildID, userID, nil)
	}, fmt.Sprintf("User <@%s> has been unmuted%s.", userID, forReason(inv.Rest(1))))
}

// apply registers the action when a log channel exists, runs the platform call and
// reports the outcome. A failed call takes the registration back.
func (m *Moderator) apply(ctx context.Context, inv *commands.Invocation, action modlog.Action, call func() error, success string) error {
	action.GuildID = inv.GuildID
	action.ActorID = inv.Author.ID
	entry := m.logger.WithFields(log.Fields{
		"guild_id": inv.GuildID,
		"user_id":  action.UserID,
		"action":   action.Kind,
	})

	logChannelID, err := m.settings.GetSetting(ctx, inv.GuildID, db.KeyLogChannel)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		entry.WithField("error", err.Error()).Warn("cant read log channel")
	}
	if logChannelID != "" {
		action.LogChannelID = logChannelID
		m.recorder.Register(action, m.ttl)
	}

	if err := call(); err != nil {
		if logChannelID != "" {
			m.recorder.Consume(action.GuildID, action.UserID, action.Kind, 0)
		}
		if errors.Is(err, hrerrors.ErrNoPrivileges) {
			entry.Warn("missing permissions")
			return inv.Reply.Reply(ctx, MsgNoPrivileges)
		}
		return err
	}

	entry.WithField("actor_id", action.ActorID).Info("moderation action applied")
	if logChannelID == "" {
		success += MsgSetupLogging
	}
	return inv.Reply.Reply(ctx, success)
}

// notify DMs the target before the action, best effort.
func (m *Moderator) notify(ctx context.Context, guildID, userID, verb, reason string) {
	server, err := m.ops.GuildName(ctx, guildID)
	if err != nil {
		server = "the server"
	}
	content := fmt.Sprintf(msgDirectNotice, verb, server)
	if reason != "" {
		content = fmt.Sprintf(msgDirectNoticeBy, verb, server, reason)
	}
	if err := m.ops.SendDirectMessage(ctx, userID, content); err != nil {
		m.logger.WithField("user_id", userID).WithField("error", err.Error()).Debug("cant notify target")
	}
}

func durationMessage(err error) string {
	switch {
	case errors.Is(err, ErrDurationNotValid):
		return "Please insert a duration greater than 0."
	case errors.Is(err, ErrDurationTooLong):
		return fmt.Sprintf("Please insert a duration of at most %d days.", MaxMuteDays)
	}
	return "Invalid time format. Valid units are **s, m, h, d** (for example `10m`)."
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return DefaultReason
	}
	return reason
}

func forReason(reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf(" for **%s**", reason)
}
