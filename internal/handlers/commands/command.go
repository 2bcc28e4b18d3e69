package commands

import (
	"context"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Replier answers the invocation through the channel it arrived on.
type Replier interface {
	Reply(ctx context.Context, content string) error
	ReplyEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error
}

type Invocation struct {
	GuildID     string
	ChannelID   string
	Author      *discordgo.User
	Permissions int64
	Name        string
	Args        []string
	Reply       Replier
}

// Arg returns the i-th argument or an empty string.
func (inv *Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Rest joins the arguments starting at i.
func (inv *Invocation) Rest(i int) string {
	if i >= len(inv.Args) {
		return ""
	}
	return strings.TrimSpace(strings.Join(inv.Args[i:], " "))
}

// Command is available both as a slash command and with the guild prefix.
// Options double as the positional order of prefix arguments.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Permission  int64
	Options     []*discordgo.ApplicationCommandOption
	Run         func(ctx context.Context, inv *Invocation) error
}

func (c *Command) definition() *discordgo.ApplicationCommand {
	permission := c.Permission
	def := &discordgo.ApplicationCommand{
		Name:        c.Name,
		Description: c.Description,
		Options:     c.Options,
	}
	if permission != 0 {
		def.DefaultMemberPermissions = &permission
	}
	dmPermission := false
	def.DMPermission = &dmPermission
	return def
}

var (
	userMentionPattern    = regexp.MustCompile(`^<@!?(\d+)>$`)
	channelMentionPattern = regexp.MustCompile(`^<#(\d+)>$`)
	snowflakePattern      = regexp.MustCompile(`^\d{15,21}$`)
)

// ParseUserID accepts a user mention or a raw id.
func ParseUserID(s string) (string, bool) {
	return parseID(s, userMentionPattern)
}

// ParseChannelID accepts a channel mention or a raw id.
func ParseChannelID(s string) (string, bool) {
	return parseID(s, channelMentionPattern)
}

func parseID(s string, mention *regexp.Regexp) (string, bool) {
	s = strings.TrimSpace(s)
	if m := mention.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if snowflakePattern.MatchString(s) {
		return s, true
	}
	return "", false
}
