package commands

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type messageReplier struct {
	session   *discordgo.Session
	channelID string
	messageID string
	guildID   string
}

func (r *messageReplier) Reply(ctx context.Context, content string) error {
	return r.send(ctx, &discordgo.MessageSend{Content: content})
}

func (r *messageReplier) ReplyEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	return r.send(ctx, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}})
}

func (r *messageReplier) send(ctx context.Context, msg *discordgo.MessageSend) error {
	msg.Reference = &discordgo.MessageReference{
		MessageID: r.messageID,
		ChannelID: r.channelID,
		GuildID:   r.guildID,
	}
	msg.AllowedMentions = &discordgo.MessageAllowedMentions{}
	_, err := r.session.ChannelMessageSendComplex(r.channelID, msg, discordgo.WithContext(ctx))
	return err
}

// interactionReplier answers with the interaction response first and follow-ups afterwards.
type interactionReplier struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

func (r *interactionReplier) Reply(ctx context.Context, content string) error {
	return r.send(ctx, content, nil)
}

func (r *interactionReplier) ReplyEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	return r.send(ctx, "", []*discordgo.MessageEmbed{embed})
}

func (r *interactionReplier) send(ctx context.Context, content string, embeds []*discordgo.MessageEmbed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.responded {
		err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:         content,
				Embeds:          embeds,
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			},
		}, discordgo.WithContext(ctx))
		if err == nil {
			r.responded = true
		}
		return err
	}
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content:         content,
		Embeds:          embeds,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return err
}
