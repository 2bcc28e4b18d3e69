package eventlog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// guildSnapshot holds the guild settings an update is diffed against. The
// gateway does not carry the previous guild and the state cache is already
// overwritten when handlers run.
type guildSnapshot struct {
	Name                 string
	Icon                 string
	OwnerID              string
	AfkChannelID         string
	SystemChannelID      string
	RulesChannelID       string
	VerificationLevel    discordgo.VerificationLevel
	DefaultNotifications discordgo.MessageNotifications
	ContentFilter        discordgo.ExplicitContentFilterLevel
}

func snapshotOf(g *discordgo.Guild) guildSnapshot {
	return guildSnapshot{
		Name:                 g.Name,
		Icon:                 g.Icon,
		OwnerID:              g.OwnerID,
		AfkChannelID:         g.AfkChannelID,
		SystemChannelID:      g.SystemChannelID,
		RulesChannelID:       g.RulesChannelID,
		VerificationLevel:    g.VerificationLevel,
		DefaultNotifications: g.DefaultMessageNotifications,
		ContentFilter:        g.ExplicitContentFilter,
	}
}

// rememberGuild stores the latest snapshot and returns the previous one.
func (l *Logger) rememberGuild(g *discordgo.Guild) (guildSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	before, ok := l.guilds[g.ID]
	l.guilds[g.ID] = snapshotOf(g)
	return before, ok
}

func (l *Logger) forgetGuild(guildID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.guilds, guildID)
}

// change is one attribute that may differ between two versions of an object.
type change struct {
	label         string
	before, after string
}

// diffBlocks renders the changed attributes as Before and After blocks.
func diffBlocks(changes []change) (before, after string, changed bool) {
	var b, a []string
	for _, c := range changes {
		if c.before == c.after {
			continue
		}
		b = append(b, c.label+": "+orNone(c.before))
		a = append(a, c.label+": "+orNone(c.after))
	}
	if len(b) == 0 {
		return "", "", false
	}
	return truncate(strings.Join(b, "\n"), maxFieldValue), truncate(strings.Join(a, "\n"), maxFieldValue), true
}

func channelRef(id string) string {
	if id == "" {
		return ""
	}
	return "<#" + id + ">"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func (n *narration) channelUpdated(ctx context.Context, before, after *discordgo.Channel) {
	if before == nil {
		return
	}
	beforeBlock, afterBlock, changed := diffBlocks([]change{
		{"Name", before.Name, after.Name},
		{"Topic", before.Topic, after.Topic},
		{"NSFW", yesNo(before.NSFW), yesNo(after.NSFW)},
		{"Category", channelRef(before.ParentID), channelRef(after.ParentID)},
		{"Bitrate", strconv.Itoa(before.Bitrate), strconv.Itoa(after.Bitrate)},
		{"User limit", strconv.Itoa(before.UserLimit), strconv.Itoa(after.UserLimit)},
		{"Slowmode", strconv.Itoa(before.RateLimitPerUser) + "s", strconv.Itoa(after.RateLimitPerUser) + "s"},
		{"Permission overwrites", overwriteSummary(before.PermissionOverwrites), overwriteSummary(after.PermissionOverwrites)},
	})
	if !changed {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Channel Updated",
		Description: fmt.Sprintf("The channel %s was updated.", after.Mention()),
		Color:       colorOrange,
		Timestamp:   n.timestamp(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Before", Value: beforeBlock},
			{Name: "After", Value: afterBlock},
		},
	}
	n.attribute(ctx, embed, discordgo.AuditLogActionChannelUpdate, after.ID)
	n.send(ctx, "", embed)
}

// overwriteSummary lists the overwrite targets with their allow and deny masks.
func overwriteSummary(overwrites []*discordgo.PermissionOverwrite) string {
	lines := make([]string, 0, len(overwrites))
	for _, o := range overwrites {
		if o == nil {
			continue
		}
		target := "<@&" + o.ID + ">"
		if o.Type == discordgo.PermissionOverwriteTypeMember {
			target = "<@" + o.ID + ">"
		}
		lines = append(lines, fmt.Sprintf("%s allow %d deny %d", target, o.Allow, o.Deny))
	}
	return strings.Join(lines, ", ")
}

func (n *narration) roleCreated(ctx context.Context, role *discordgo.Role) {
	embed := &discordgo.MessageEmbed{
		Title:       "Role Created",
		Description: fmt.Sprintf("Role `%s` (%s) was created.", role.Name, role.ID),
		Color:       colorGreen,
		Timestamp:   n.timestamp(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Role Summary", Value: roleSummary(role)},
		},
	}
	n.attribute(ctx, embed, discordgo.AuditLogActionRoleCreate, role.ID)
	n.send(ctx, "", embed)
}

var permissionNames = []struct {
	bit  int64
	name string
}{
	{discordgo.PermissionAdministrator, "administrator"},
	{discordgo.PermissionManageGuild, "manage_guild"},
	{discordgo.PermissionManageRoles, "manage_roles"},
	{discordgo.PermissionManageChannels, "manage_channels"},
	{discordgo.PermissionManageWebhooks, "manage_webhooks"},
	{discordgo.PermissionKickMembers, "kick_members"},
	{discordgo.PermissionBanMembers, "ban_members"},
	{discordgo.PermissionModerateMembers, "moderate_members"},
	{discordgo.PermissionManageMessages, "manage_messages"},
	{discordgo.PermissionMentionEveryone, "mention_everyone"},
}

func roleSummary(role *discordgo.Role) string {
	var perms []string
	for _, p := range permissionNames {
		if role.Permissions&p.bit == p.bit {
			perms = append(perms, p.name)
		}
	}
	return truncate(fmt.Sprintf("Name: %s | ID: %s | Permissions: %s", role.Name, role.ID, orNone(strings.Join(perms, ", "))), maxFieldValue)
}

func (n *narration) guildUpdated(ctx context.Context, before guildSnapshot, after *discordgo.Guild) {
	current := snapshotOf(after)
	beforeBlock, afterBlock, changed := diffBlocks([]change{
		{"Name", before.Name, current.Name},
		{"Icon", before.Icon, current.Icon},
		{"Owner", userRef(before.OwnerID), userRef(current.OwnerID)},
		{"AFK channel", channelRef(before.AfkChannelID), channelRef(current.AfkChannelID)},
		{"System channel", channelRef(before.SystemChannelID), channelRef(current.SystemChannelID)},
		{"Rules channel", channelRef(before.RulesChannelID), channelRef(current.RulesChannelID)},
		{"Verification level", strconv.Itoa(int(before.VerificationLevel)), strconv.Itoa(int(current.VerificationLevel))},
		{"Default notifications", strconv.Itoa(int(before.DefaultNotifications)), strconv.Itoa(int(current.DefaultNotifications))},
		{"Content filter", strconv.Itoa(int(before.ContentFilter)), strconv.Itoa(int(current.ContentFilter))},
	})
	if !changed {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Server Settings Updated",
		Description: fmt.Sprintf("The settings of server `%s` (%s) were updated.", before.Name, after.ID),
		Color:       colorOrange,
		Timestamp:   n.timestamp(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Before", Value: beforeBlock},
			{Name: "After", Value: afterBlock},
		},
	}
	n.attribute(ctx, embed, discordgo.AuditLogActionGuildUpdate, after.ID)
	n.send(ctx, "", embed)
}

func userRef(id string) string {
	if id == "" {
		return ""
	}
	return "<@" + id + ">"
}

func (n *narration) inviteCreated(ctx context.Context, invite *discordgo.InviteCreate) {
	maxUses := "Unlimited"
	if invite.MaxUses > 0 {
		maxUses = strconv.Itoa(invite.MaxUses)
	}
	expires := "Never"
	if invite.MaxAge > 0 {
		expires = (time.Duration(invite.MaxAge) * time.Second).String()
	}
	inviter := "Unknown"
	if invite.Inviter != nil {
		inviter = invite.Inviter.Mention()
	}
	embed := &discordgo.MessageEmbed{
		Title: "New Invite Created",
		Description: fmt.Sprintf("Invite `%s` created by %s.\nChannel: <#%s>\nMax Uses: %s\nExpires: %s",
			invite.Code, inviter, invite.ChannelID, maxUses, expires),
		Color:     colorBlue,
		Timestamp: n.timestamp(),
	}
	if invite.Inviter != nil {
		embed.Footer = n.footer(userLabel(invite.Inviter), invite.Inviter.ID)
	} else {
		embed.Footer = n.unknownFooter()
	}
	n.send(ctx, "", embed)
}

// attribute sets the footer to the audit log executor of the action, if any.
func (n *narration) attribute(ctx context.Context, embed *discordgo.MessageEmbed, action discordgo.AuditLogAction, targetID string) {
	actorID, _, found := n.audit.FindExecutor(ctx, n.guildID, action, targetID, ChannelAuditWindow)
	if !found {
		embed.Footer = n.unknownFooter()
		return
	}
	embed.Footer = n.footer(n.userName(ctx, actorID), actorID)
}
