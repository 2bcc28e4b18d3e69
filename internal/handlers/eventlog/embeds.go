package eventlog

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/holyroller/holyroller/internal/modlog"
)

const (
	colorModeration = 0x8C1B1B
	colorGreen      = 0x2ECC71
	colorRed        = 0xE74C3C
	colorOrange     = 0xE67E22
	colorBlue       = 0x3498DB

	footerTimeLayout = "2006-01-02 15:04:05"
	maxDescription   = 3800
	maxFieldValue    = 1024

	// embed field names cannot be empty
	blankName = "\u200b"
)

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// ModerationEmbed renders a kick, ban, unban, mute or unmute. An empty actor is
// reported as Unknown; until is shown for mutes only.
func ModerationEmbed(user *discordgo.User, kind modlog.Kind, actorName, actorID, reason string, until *time.Time, now time.Time) *discordgo.MessageEmbed {
	if actorName == "" {
		actorName = "Unknown"
	}
	line := fmt.Sprintf("User **%s** was %s by **%s**.", userLabel(user), kind, actorName)
	if reason != "" {
		line = fmt.Sprintf("User **%s** was %s by **%s** for **%s**.", userLabel(user), kind, actorName, reason)
	}

	embed := &discordgo.MessageEmbed{
		Title:  "Moderation action!",
		Color:  colorModeration,
		Fields: []*discordgo.MessageEmbedField{{Name: blankName, Value: line, Inline: true}},
	}
	if kind == modlog.KindMuted && until != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  blankName,
			Value: fmt.Sprintf("Time: **%s**", TimeoutDisplay(*until, now)),
		})
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: blankName, Value: fmt.Sprintf("User ID: **%s**", user.ID)})

	if actorID == "" {
		actorID = "unknown"
	}
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("Action made by: %s (%s).\nUTC: %s", actorName, actorID, now.UTC().Format(footerTimeLayout)),
	}
	return embed
}

// TimeoutDisplay shows the expiry in UTC with the remaining H:MM:SS.
func TimeoutDisplay(until, now time.Time) string {
	remaining := until.Sub(now).Truncate(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	h := int64(remaining / time.Hour)
	m := int64(remaining%time.Hour) / int64(time.Minute)
	s := int64(remaining%time.Minute) / int64(time.Second)
	return fmt.Sprintf("%s UTC (%d:%02d:%02d)", until.UTC().Format(footerTimeLayout), h, m, s)
}

func userLabel(user *discordgo.User) string {
	if user == nil {
		return "Unknown"
	}
	if user.Username == "" {
		return "<@" + user.ID + ">"
	}
	return user.Username
}

func attachmentLines(attachments []*discordgo.MessageAttachment) string {
	lines := make([]string, 0, len(attachments))
	for _, a := range attachments {
		lines = append(lines, a.Filename+": "+a.URL)
	}
	return truncate(strings.Join(lines, "\n"), maxFieldValue)
}

func firstImage(attachments []*discordgo.MessageAttachment) string {
	for _, a := range attachments {
		if strings.HasPrefix(a.ContentType, "image") || imageExtensions[strings.ToLower(path.Ext(a.Filename))] {
			return a.URL
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
