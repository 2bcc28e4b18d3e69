package raid

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/iamwavecut/tool"
)

const (
	alertColor         = 0xED4245
	maxMemberFields    = 20
	lockdownReason     = "Raid detected - automatic lockdown"
	memberLineTemplate = `**{{ .name }}** ({{ .id }})
Created: {{ .age }} ago
Flags: {{ .flags }}`
)

type alertOptions struct {
	guildName string
	limits    Limits
	now       time.Time
	direct    bool
}

// buildAlert renders the raid alert. The direct variant, sent to admins and the
// owner, names the guild and omits the actions field.
func buildAlert(joins []JoinEvent, opts alertOptions) *discordgo.MessageEmbed {
	description := fmt.Sprintf("%d rapid member joins detected in %s", len(joins), formatSeconds(opts.limits.Window))
	if opts.direct && opts.guildName != "" {
		description = fmt.Sprintf("%s\nServer: **%s**", description, opts.guildName)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🚨 RAID ALERT 🚨",
		Description: description,
		Color:       alertColor,
		Timestamp:   opts.now.UTC().Format(time.RFC3339),
	}

	shown := joins
	if len(shown) > maxMemberFields {
		shown = shown[:maxMemberFields]
	}
	for i, j := range shown {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: fmt.Sprintf("Member %d", i+1),
			Value: tool.ExecTemplate(memberLineTemplate, map[string]any{
				"name":  j.Username,
				"id":    j.UserID,
				"age":   AccountAge(j.AccountCreatedAt, opts.now),
				"flags": Flags(j, opts.now).String(),
			}),
		})
	}
	if hidden := len(joins) - len(shown); hidden > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "More",
			Value: fmt.Sprintf("+%d more members", hidden),
		})
	}

	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Detection Window", Value: formatSeconds(opts.limits.Window), Inline: true},
		&discordgo.MessageEmbedField{Name: "Threshold", Value: fmt.Sprintf("%d joins", opts.limits.JoinThreshold), Inline: true},
	)
	if !opts.direct {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Actions Taken",
			Value: fmt.Sprintf("Invites and DMs paused for %s. Review the members above.", opts.limits.LockdownDuration),
		})
	}
	return embed
}

func formatSeconds(d time.Duration) string {
	seconds := d.Seconds()
	if seconds == float64(int64(seconds)) {
		return fmt.Sprintf("%d seconds", int64(seconds))
	}
	return fmt.Sprintf("%.1f seconds", seconds)
}
