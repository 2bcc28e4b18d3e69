package settings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/holyroller/holyroller/internal/bot"
	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/handlers/commands"
	"github.com/holyroller/holyroller/internal/raid"
)

const guildID = "100000000000000001"

type fakeStore struct {
	mu       sync.Mutex
	values   map[string]string
	last     *db.RaidIncident
	ensured  []bool
	deleted  []string
	setError error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) GetSetting(_ context.Context, _ string, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", db.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) SetSetting(_ context.Context, _ string, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setError != nil {
		return f.setError
	}
	f.values[key] = value
	return nil
}

func (f *fakeStore) DeleteSetting(_ context.Context, _ string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return db.ErrNotFound
	}
	delete(f.values, key)
	return nil
}

func (f *fakeStore) GetSettings(_ context.Context, guildID string) (*db.GuildSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := db.DefaultGuildSettings(guildID, "")
	for k, v := range f.values {
		s.Apply(k, v)
	}
	return s, nil
}

func (f *fakeStore) GetLastRaidIncident(context.Context, string) (*db.RaidIncident, error) {
	if f.last == nil {
		return nil, db.ErrNotFound
	}
	return f.last, nil
}

func (f *fakeStore) EnsureGuild(_ context.Context, _ string, _ string, reset bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, reset)
	return nil
}

func (f *fakeStore) DeleteGuild(_ context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, guildID)
	return nil
}

type fakeReplier struct {
	texts  []string
	embeds []*discordgo.MessageEmbed
}

func (r *fakeReplier) Reply(_ context.Context, content string) error {
	r.texts = append(r.texts, content)
	return nil
}

func (r *fakeReplier) ReplyEmbed(_ context.Context, embed *discordgo.MessageEmbed) error {
	r.embeds = append(r.embeds, embed)
	return nil
}

func (r *fakeReplier) lastText() string {
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func invoke(t *testing.T, s *Settings, name string, args ...string) *fakeReplier {
	t.Helper()
	for _, c := range s.Commands() {
		if c.Name != name {
			continue
		}
		r := &fakeReplier{}
		inv := &commands.Invocation{GuildID: guildID, Name: name, Args: args, Reply: r}
		if err := c.Run(context.Background(), inv); err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		return r
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestPrefix(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := NewSettings(store, raid.DefaultLimits(), "!")

	if r := invoke(t, s, "prefix", "?"); !strings.Contains(r.lastText(), "`?`") {
		t.Fatalf("unexpected reply %q", r.lastText())
	}
	if store.values[db.KeyPrefix] != "?" {
		t.Fatalf("prefix not stored: %v", store.values)
	}

	invoke(t, s, "prefix", "toolong")
	if store.values[db.KeyPrefix] != "?" {
		t.Fatalf("long prefix must be rejected, got %q", store.values[db.KeyPrefix])
	}
}

func TestChannels(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := NewSettings(store, raid.DefaultLimits(), "!")

	invoke(t, s, "channels", "log", "<#200000000000000002>")
	invoke(t, s, "channels", "bye", "200000000000000003")
	r := invoke(t, s, "channels", "welcome", "general")

	if store.values[db.KeyLogChannel] != "200000000000000002" {
		t.Fatalf("log channel not stored: %v", store.values)
	}
	if store.values[db.KeyGoodbyeChannel] != "200000000000000003" {
		t.Fatalf("goodbye channel not stored: %v", store.values)
	}
	if _, ok := store.values[db.KeyWelcomeChannel]; ok {
		t.Fatalf("invalid channel must not be stored")
	}
	if !strings.Contains(r.lastText(), "mention a text channel") {
		t.Fatalf("unexpected reply %q", r.lastText())
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := NewSettings(store, raid.DefaultLimits(), "!")

	invoke(t, s, "messages", "welcome", "message", "Hello", "{mention},", "welcome", "to", "{server}")
	invoke(t, s, "messages", "goodbye", "colour", "FF0000")
	r := invoke(t, s, "messages", "welcome", "color", "green")

	if got := store.values[db.KeyWelcomeMessage]; got != "Hello {mention}, welcome to {server}" {
		t.Fatalf("unexpected welcome message %q", got)
	}
	if got := store.values[db.KeyGoodbyeColor]; got != "#ff0000" {
		t.Fatalf("color must be normalized, got %q", got)
	}
	if _, ok := store.values[db.KeyWelcomeColor]; ok {
		t.Fatalf("invalid color must not be stored")
	}
	if !strings.Contains(r.lastText(), "hex") {
		t.Fatalf("unexpected reply %q", r.lastText())
	}

	invoke(t, s, "messages", "welcome", "image", "ftp://example.com/a.png")
	if _, ok := store.values[db.KeyWelcomeImage]; ok {
		t.Fatalf("non http image must not be stored")
	}
}

func TestSettingsShowAndDelete(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.values[db.KeyLogChannel] = "200000000000000002"
	s := NewSettings(store, raid.DefaultLimits(), "!")

	r := invoke(t, s, "settings", "show")
	if len(r.embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(r.embeds))
	}
	fields := map[string]string{}
	for _, f := range r.embeds[0].Fields {
		fields[f.Name] = f.Value
	}
	if fields["Prefix"] != "`!`" || fields["Log channel"] != "<#200000000000000002>" || fields["Welcome channel"] != "Not set" {
		t.Fatalf("unexpected fields %v", fields)
	}

	invoke(t, s, "settings", "delete", db.KeyLogChannel)
	if _, ok := store.values[db.KeyLogChannel]; ok {
		t.Fatalf("setting not deleted")
	}
	if r := invoke(t, s, "settings", "delete", db.KeyLogChannel); !strings.Contains(r.lastText(), "is not set") {
		t.Fatalf("unexpected reply %q", r.lastText())
	}
	if r := invoke(t, s, "settings", "delete", "nope"); !strings.Contains(r.lastText(), "Unknown setting") {
		t.Fatalf("unexpected reply %q", r.lastText())
	}
}

func TestRaidToggleAndInfo(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := NewSettings(store, raid.DefaultLimits(), "!")

	invoke(t, s, "raid", "disable")
	if store.values[db.KeyRaidResponseEnabled] != "false" {
		t.Fatalf("raid protection not disabled: %v", store.values)
	}

	store.last = &db.RaidIncident{DetectedAt: time.Unix(1700000000, 0), JoinCount: 6, LockdownApplied: true}
	r := invoke(t, s, "raid", "info")
	if len(r.embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(r.embeds))
	}
	fields := map[string]string{}
	for _, f := range r.embeds[0].Fields {
		fields[f.Name] = f.Value
	}
	if fields["Status"] != "❌ Disabled" {
		t.Fatalf("unexpected status %q", fields["Status"])
	}
	if fields["Threshold"] != "4 joins in 2 seconds" {
		t.Fatalf("unexpected threshold %q", fields["Threshold"])
	}
	if !strings.Contains(fields["Lockdown"], "1 hour") {
		t.Fatalf("unexpected lockdown %q", fields["Lockdown"])
	}
	if fields["Last raid"] != "<t:1700000000:R> with 6 joins, lockdown applied" {
		t.Fatalf("unexpected last raid %q", fields["Last raid"])
	}

	invoke(t, s, "raid", "enable")
	if !db.ParseEnabled(store.values[db.KeyRaidResponseEnabled]) {
		t.Fatalf("raid protection not enabled")
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.setError = errors.New("disk full")
	s := NewSettings(store, raid.DefaultLimits(), "!")

	for _, c := range s.Commands() {
		if c.Name != "prefix" {
			continue
		}
		inv := &commands.Invocation{GuildID: guildID, Args: []string{"?"}, Reply: &fakeReplier{}}
		if err := c.Run(context.Background(), inv); err == nil {
			t.Fatalf("expected store error")
		}
	}
}

type fakeDM struct {
	mu   sync.Mutex
	sent map[string]string
}

func (f *fakeDM) SendDirectMessage(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[userID] = content
	return nil
}

func TestGuildJoinAndLeave(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	dm := &fakeDM{}
	g := NewGuilds(store, dm, "!")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	reconnect := &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: guildID, Name: "Old", OwnerID: "1", JoinedAt: now.Add(-48 * time.Hour)}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: guildID, ReceivedAt: now, Payload: reconnect}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh := &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: guildID, Name: "New", OwnerID: "2", JoinedAt: now.Add(-time.Second)}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: guildID, ReceivedAt: now, Payload: fresh}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.ensured) != 2 || store.ensured[0] || !store.ensured[1] {
		t.Fatalf("unexpected ensure calls %v", store.ensured)
	}
	if _, ok := dm.sent["1"]; ok {
		t.Fatalf("owner must not be thanked on reconnect")
	}
	if !strings.Contains(dm.sent["2"], "Thank you for adding The Holy Roller to **New**") {
		t.Fatalf("unexpected owner message %q", dm.sent["2"])
	}

	outage := &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: guildID, Unavailable: true}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: guildID, Payload: outage}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("outage must not delete settings")
	}
	removed := &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: guildID}}
	if _, err := g.Handle(context.Background(), &bot.Event{GuildID: guildID, Payload: removed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != guildID {
		t.Fatalf("unexpected deletes %v", store.deleted)
	}
}

func TestRequestLinksIssueTracker(t *testing.T) {
	t.Parallel()
	s := NewSettings(newFakeStore(), raid.DefaultLimits(), "!")

	r := invoke(t, s, "request")
	if len(r.embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(r.embeds))
	}
	embed := r.embeds[0]
	if embed.Fields[0].Value != IssueTrackerURL || !strings.HasPrefix(embed.Footer.Text, "UTC: ") {
		t.Fatalf("unexpected embed %+v", embed)
	}
	for _, c := range s.Commands() {
		if c.Name == "request" && c.Permission != 0 {
			t.Fatalf("request must be open to everyone")
		}
	}
}
