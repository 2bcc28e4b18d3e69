package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/bot"
	"github.com/holyroller/holyroller/internal/handlers/base"
)

const (
	MsgNoPermission  = "You don't have permissions to do that :)"
	MsgUnknown       = "Unknown command."
	MsgCommandFailed = "Something went wrong while running that command."
)

// Router turns prefixed messages and slash interactions into invocations.
type Router struct {
	*base.BaseHandler
	commands map[string]*Command
	ordered  []*Command
}

func NewRouter(s bot.Service) *Router {
	return &Router{
		BaseHandler: base.NewBaseHandler(s, "commands"),
		commands:    make(map[string]*Command),
	}
}

func (r *Router) Register(cmds ...*Command) {
	for _, c := range cmds {
		if c == nil {
			continue
		}
		r.ordered = append(r.ordered, c)
		r.commands[c.Name] = c
		for _, alias := range c.Aliases {
			r.commands[alias] = c
		}
	}
}

// Lookup resolves a command by name or alias.
func (r *Router) Lookup(name string) (*Command, bool) {
	c, ok := r.commands[strings.ToLower(name)]
	return c, ok
}

// ApplicationCommands returns the slash command definitions of all registered commands.
func (r *Router) ApplicationCommands() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.ordered))
	for _, c := range r.ordered {
		defs = append(defs, c.definition())
	}
	return defs
}

// SyncApplicationCommands overwrites the global slash commands of the application.
func (r *Router) SyncApplicationCommands(ctx context.Context, appID string) error {
	s := r.GetService().GetSession()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", r.ApplicationCommands(), discordgo.WithContext(ctx)); err != nil {
		return errors.WithMessage(err, "overwrite application commands")
	}
	return nil
}

func (r *Router) Handle(ctx context.Context, ev *bot.Event) (bool, error) {
	if err := r.ValidateEvent(ev); err != nil {
		return true, nil
	}
	switch e := ev.Payload.(type) {
	case *discordgo.MessageCreate:
		return true, r.handleMessage(ctx, e)
	case *discordgo.InteractionCreate:
		return true, r.handleInteraction(ctx, e)
	}
	return true, nil
}

func (r *Router) handleMessage(ctx context.Context, m *discordgo.MessageCreate) error {
	if m.Author == nil || m.Author.Bot {
		return nil
	}
	prefix := r.GetService().GetPrefix(ctx, m.GuildID)
	name, args, ok := ParsePrefixed(m.Content, prefix)
	if !ok {
		return nil
	}
	c, ok := r.Lookup(name)
	if !ok {
		return nil
	}

	s := r.GetService().GetSession()
	permissions, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		r.GetLogger().WithField("guild_id", m.GuildID).WithField("error", err.Error()).Warn("cant resolve author permissions")
	}

	return r.run(ctx, c, &Invocation{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		Author:      m.Author,
		Permissions: permissions,
		Name:        name,
		Args:        args,
		Reply: &messageReplier{
			session:   s,
			channelID: m.ChannelID,
			messageID: m.ID,
			guildID:   m.GuildID,
		},
	})
}

func (r *Router) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) error {
	if i.Type != discordgo.InteractionApplicationCommand || i.Member == nil {
		return nil
	}
	data := i.ApplicationCommandData()
	replier := &interactionReplier{session: r.GetService().GetSession(), interaction: i.Interaction}

	c, ok := r.Lookup(data.Name)
	if !ok {
		return replier.Reply(ctx, MsgUnknown)
	}
	return r.run(ctx, c, &Invocation{
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		Author:      i.Member.User,
		Permissions: i.Member.Permissions,
		Name:        c.Name,
		Args:        OptionArgs(c.Options, data.Options),
		Reply:       replier,
	})
}

func (r *Router) run(ctx context.Context, c *Command, inv *Invocation) error {
	entry := r.GetLogger().WithFields(log.Fields{
		"guild_id": inv.GuildID,
		"command":  c.Name,
	})
	if inv.Author == nil {
		return nil
	}
	entry = entry.WithField("user_id", inv.Author.ID)

	if !HasPermission(inv.Permissions, c.Permission) {
		entry.Debug("permission denied")
		return inv.Reply.Reply(ctx, MsgNoPermission)
	}
	if err := c.Run(ctx, inv); err != nil {
		entry.WithField("error", err.Error()).Error("command failed")
		_ = inv.Reply.Reply(ctx, MsgCommandFailed)
		return errors.WithMessage(err, "command "+c.Name)
	}
	return nil
}

// HasPermission reports whether granted covers required. Administrators pass every check.
func HasPermission(granted, required int64) bool {
	if required == 0 || granted&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return granted&required == required
}

// ParsePrefixed splits "<prefix><name> args..." into the lowercased name and the arguments.
func ParsePrefixed(content, prefix string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(content[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// OptionArgs flattens slash command options into the positional order of defs.
// Trailing options that were not supplied are dropped.
func OptionArgs(defs []*discordgo.ApplicationCommandOption, given []*discordgo.ApplicationCommandInteractionDataOption) []string {
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(given))
	for _, o := range given {
		byName[o.Name] = o
	}
	args := make([]string, len(defs))
	last := -1
	for i, def := range defs {
		o, ok := byName[def.Name]
		if !ok {
			continue
		}
		args[i] = optionString(o)
		last = i
	}
	return args[:last+1]
}

func optionString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch o.Type {
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(o.IntValue(), 10)
	case discordgo.ApplicationCommandOptionBoolean:
		return strconv.FormatBool(o.BoolValue())
	case discordgo.ApplicationCommandOptionNumber:
		return strconv.FormatFloat(o.FloatValue(), 'f', -1, 64)
	}
	if s, ok := o.Value.(string); ok {
		return s
	}
	return ""
}
