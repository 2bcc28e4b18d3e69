package greetings

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/holyroller/holyroller/internal/bot"
	"github.com/holyroller/holyroller/internal/db"
)

func TestParseColor(t *testing.T) {
	t.Parallel()
	cases := map[string]int{
		"#ff0000": 0xff0000,
		"00FF00":  0x00ff00,
		"":        DefaultColor,
		"#fff":    DefaultColor,
		"#zzzzzz": DefaultColor,
	}
	for in, want := range cases {
		if got := ParseColor(in); got != want {
			t.Fatalf("ParseColor(%q) = %#x, want %#x", in, got, want)
		}
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	user := &discordgo.User{ID: "42", Username: "newbie"}
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	greeting := db.Greeting{
		Title:   "Welcome!",
		Message: "Hi {mention} ({user}), welcome to {server}",
		Image:   "https://example.com/hi.png",
	}

	msg := Render(greeting, user, "Chapel", now)
	if msg.Content != "<@42>" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
	embed := msg.Embeds[0]
	if embed.Title != "Welcome!" || embed.Color != DefaultColor {
		t.Fatalf("unexpected embed %+v", embed)
	}
	if got := embed.Fields[0].Value; got != "Hi <@42> (newbie), welcome to Chapel" {
		t.Fatalf("unexpected message %q", got)
	}
	if embed.Image == nil || embed.Image.URL != greeting.Image {
		t.Fatalf("image not set")
	}
	if embed.Footer.Text != "newbie (42)\nUTC: 2024-03-01 10:30:00" {
		t.Fatalf("unexpected footer %q", embed.Footer.Text)
	}
}

type fakeSettings struct {
	settings *db.GuildSettings
	err      error
}

func (f *fakeSettings) GetSettings(context.Context, string) (*db.GuildSettings, error) {
	return f.settings, f.err
}

type fakeSender struct {
	sent map[string]*discordgo.MessageSend
}

func (f *fakeSender) SendChannelMessage(_ context.Context, channelID string, msg *discordgo.MessageSend) error {
	if f.sent == nil {
		f.sent = map[string]*discordgo.MessageSend{}
	}
	f.sent[channelID] = msg
	return nil
}

func (f *fakeSender) GuildName(context.Context, string) (string, error) {
	return "Chapel", nil
}

func TestHandle(t *testing.T) {
	t.Parallel()
	settings := db.DefaultGuildSettings("1", "!")
	settings.WelcomeChannelID = "10"
	settings.GoodbyeChannelID = "20"
	settings.Welcome = db.Greeting{Message: "hello {server}"}
	sender := &fakeSender{}
	g := NewGreeter(&fakeSettings{settings: settings}, sender)
	user := &discordgo.User{ID: "42", Username: "newbie"}

	add := &discordgo.GuildMemberAdd{Member: &discordgo.Member{User: user}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: "1", Payload: add}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	remove := &discordgo.GuildMemberRemove{Member: &discordgo.Member{User: user}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: "1", Payload: remove}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg := sender.sent["10"]; msg == nil || !strings.Contains(msg.Embeds[0].Fields[0].Value, "hello Chapel") {
		t.Fatalf("welcome not sent: %+v", sender.sent)
	}
	if _, ok := sender.sent["20"]; ok {
		t.Fatalf("empty goodbye must not be sent")
	}
}

func TestHandleSkipsBotsAndReportsStoreErrors(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	g := NewGreeter(&fakeSettings{err: errors.New("locked")}, sender)

	botUser := &discordgo.GuildMemberAdd{Member: &discordgo.Member{User: &discordgo.User{ID: "9", Bot: true}}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: "1", Payload: botUser}); err != nil {
		t.Fatalf("bots must be skipped before reading settings, got %v", err)
	}
	human := &discordgo.GuildMemberAdd{Member: &discordgo.Member{User: &discordgo.User{ID: "8"}}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: "1", Payload: human}); err == nil {
		t.Fatalf("expected settings error")
	}
}
