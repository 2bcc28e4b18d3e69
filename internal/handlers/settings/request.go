package settings

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/holyroller/holyroller/internal/handlers/commands"
)

// IssueTrackerURL is where feature requests and bug reports are filed.
const IssueTrackerURL = "https://github.com/Local-Drug-Lord/The-Holy-Roller-bot-V1/issues/new/choose"

const requestColor = 0x298600

func RequestEmbed(now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Request a feature :tools:",
		Color: requestColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Github request:", Value: IssueTrackerURL},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "UTC: " + now.UTC().Format("2006-01-02 15:04:05")},
	}
}

func (s *Settings) request(ctx context.Context, inv *commands.Invocation) error {
	return inv.Reply.ReplyEmbed(ctx, RequestEmbed(time.Now()))
}
