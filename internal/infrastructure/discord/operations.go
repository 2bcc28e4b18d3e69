package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	hrerrors "github.com/holyroller/holyroller/internal/errors"
)

const (
	membersPageSize = 1000
	auditLogLimit   = 25
)

// MemberIdentity is the part of a guild member the raid responder needs.
type MemberIdentity struct {
	ID       string
	Username string
}

// Operations provides common Discord REST operations
type Operations struct {
	session *discordgo.Session
	logger  *log.Entry
	now     func() time.Time
}

// NewOperations creates a new Operations instance
func NewOperations(session *discordgo.Session) *Operations {
	return &Operations{
		session: session,
		logger:  log.WithField("component", "discord"),
		now:     time.Now,
	}
}

// SendChannelEmbed posts an embed to a guild text channel
func (o *Operations) SendChannelEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	if _, err := o.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "send embed to channel %s", channelID)
	}
	return nil
}

// SendChannelMessage posts a complex message to a guild text channel
func (o *Operations) SendChannelMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	if _, err := o.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "send message to channel %s", channelID)
	}
	return nil
}

// SendDirectEmbed opens a DM channel with the user and posts an embed
func (o *Operations) SendDirectEmbed(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	channel, err := o.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return wrap(err, "open dm with %s", userID)
	}
	return o.SendChannelEmbed(ctx, channel.ID, embed)
}

// SendDirectMessage opens a DM channel with the user and posts plain text
func (o *Operations) SendDirectMessage(ctx context.Context, userID, content string) error {
	channel, err := o.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return wrap(err, "open dm with %s", userID)
	}
	if _, err := o.session.ChannelMessageSend(channel.ID, content, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "send dm to %s", userID)
	}
	return nil
}

// GuildOwnerID returns the owner of the guild, preferring the state cache
func (o *Operations) GuildOwnerID(ctx context.Context, guildID string) (string, error) {
	guild, err := o.guild(ctx, guildID)
	if err != nil {
		return "", err
	}
	return guild.OwnerID, nil
}

// ListAdministrators returns non-bot members holding the administrator permission.
// The owner is included because the owner implicitly holds every permission.
func (o *Operations) ListAdministrators(ctx context.Context, guildID string) ([]MemberIdentity, error) {
	guild, err := o.guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	roles := guild.Roles
	if len(roles) == 0 {
		if roles, err = o.session.GuildRoles(guildID, discordgo.WithContext(ctx)); err != nil {
			return nil, wrap(err, "list roles of %s", guildID)
		}
	}
	rolesByID := make(map[string]*discordgo.Role, len(roles))
	for _, role := range roles {
		rolesByID[role.ID] = role
	}

	var (
		admins []MemberIdentity
		after  string
	)
	for {
		members, err := o.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrap(err, "list members of %s", guildID)
		}
		for _, member := range members {
			if member.User == nil || member.User.Bot {
				continue
			}
			if IsAdministrator(member, rolesByID, guildID, guild.OwnerID) {
				admins = append(admins, MemberIdentity{ID: member.User.ID, Username: member.User.Username})
			}
		}
		if len(members) < membersPageSize {
			return admins, nil
		}
		after = members[len(members)-1].User.ID
	}
}

// Lock pauses invites and direct messages in the guild until the given time
func (o *Operations) Lock(ctx context.Context, guildID string, until time.Time) error {
	payload := struct {
		InvitesDisabledUntil string `json:"invites_disabled_until"`
		DMsDisabledUntil     string `json:"dms_disabled_until"`
	}{
		InvitesDisabledUntil: until.UTC().Format(time.RFC3339),
		DMsDisabledUntil:     until.UTC().Format(time.RFC3339),
	}
	endpoint := discordgo.EndpointGuild(guildID)
	if _, err := o.session.RequestWithBucketID(http.MethodPut, endpoint+"/incident-actions", payload, endpoint, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "lock guild %s", guildID)
	}
	return nil
}

// FindExecutor looks for the newest audit log entry of the given action against
// targetID created within window. Lookup failures are logged and reported as not found.
func (o *Operations) FindExecutor(ctx context.Context, guildID string, action discordgo.AuditLogAction, targetID string, window time.Duration) (actorID, reason string, found bool) {
	entry := o.logger.WithFields(log.Fields{
		"guild_id":  guildID,
		"target_id": targetID,
		"action":    int(action),
	})
	auditLog, err := o.session.GuildAuditLog(guildID, "", "", int(action), auditLogLimit, discordgo.WithContext(ctx))
	if err != nil {
		entry.WithField("error", wrap(err, "read audit log").Error()).Warn("audit lookup failed")
		return "", "", false
	}
	return MatchAuditEntry(auditLog.AuditLogEntries, action, targetID, window, o.now())
}

// MatchAuditEntry picks the first entry of the action against targetID that is
// younger than window relative to now.
func MatchAuditEntry(entries []*discordgo.AuditLogEntry, action discordgo.AuditLogAction, targetID string, window time.Duration, now time.Time) (actorID, reason string, found bool) {
	for _, e := range entries {
		if e == nil || e.TargetID != targetID {
			continue
		}
		if e.ActionType != nil && *e.ActionType != action {
			continue
		}
		createdAt, err := discordgo.SnowflakeTimestamp(e.ID)
		if err != nil || now.Sub(createdAt) > window {
			continue
		}
		return e.UserID, e.Reason, true
	}
	return "", "", false
}

// Kick removes a member from the guild
func (o *Operations) Kick(ctx context.Context, guildID, userID, reason string) error {
	if err := o.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "kick %s from %s", userID, guildID)
	}
	return nil
}

// Ban bans a user from the guild without deleting their messages
func (o *Operations) Ban(ctx context.Context, guildID, userID, reason string) error {
	if err := o.session.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "ban %s from %s", userID, guildID)
	}
	return nil
}

// Unban lifts a ban
func (o *Operations) Unban(ctx context.Context, guildID, userID string) error {
	if err := o.session.GuildBanDelete(guildID, userID, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "unban %s from %s", userID, guildID)
	}
	return nil
}

// Timeout sets or clears (nil until) a member's communication timeout
func (o *Operations) Timeout(ctx context.Context, guildID, userID string, until *time.Time) error {
	if err := o.session.GuildMemberTimeout(guildID, userID, until, discordgo.WithContext(ctx)); err != nil {
		return wrap(err, "timeout %s in %s", userID, guildID)
	}
	return nil
}

// Member returns a guild member, or hrerrors.ErrNotFound when the user is not in the guild
func (o *Operations) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if member, err := o.session.State.Member(guildID, userID); err == nil {
		return member, nil
	}
	member, err := o.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap(err, "get member %s of %s", userID, guildID)
	}
	return member, nil
}

// BanReason returns the reason of an existing ban, hrerrors.ErrNotFound when not banned
func (o *Operations) BanReason(ctx context.Context, guildID, userID string) (string, error) {
	ban, err := o.session.GuildBan(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap(err, "get ban of %s in %s", userID, guildID)
	}
	return ban.Reason, nil
}

// User resolves a user by id
func (o *Operations) User(ctx context.Context, userID string) (*discordgo.User, error) {
	user, err := o.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap(err, "get user %s", userID)
	}
	return user, nil
}

// GuildName returns the cached guild name, falling back to REST
func (o *Operations) GuildName(ctx context.Context, guildID string) (string, error) {
	guild, err := o.guild(ctx, guildID)
	if err != nil {
		return "", err
	}
	return guild.Name, nil
}

func (o *Operations) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if guild, err := o.session.State.Guild(guildID); err == nil && guild.OwnerID != "" {
		return guild, nil
	}
	guild, err := o.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap(err, "get guild %s", guildID)
	}
	return guild, nil
}

// IsAdministrator reports whether the member is the owner or holds a role with
// the administrator permission. The @everyone role shares the guild id.
func IsAdministrator(member *discordgo.Member, roles map[string]*discordgo.Role, guildID, ownerID string) bool {
	if member == nil || member.User == nil {
		return false
	}
	if member.User.ID == ownerID {
		return true
	}
	if everyone, ok := roles[guildID]; ok && everyone.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, roleID := range member.Roles {
		role, ok := roles[roleID]
		if ok && role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}

// wrap annotates REST failures and maps permission and lookup failures onto the
// shared sentinel errors.
func wrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w: %w", msg, hrerrors.ErrNoPrivileges, err)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", msg, hrerrors.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
