package raid

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/infrastructure/discord"
)

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (f *fakeSettings) GetSetting(_ context.Context, guildID, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[guildID+"/"+key]
	if !ok {
		return "", db.ErrNotFound
	}
	return v, nil
}

type recordingResponder struct {
	mu    sync.Mutex
	calls [][]JoinEvent
}

func (r *recordingResponder) Execute(_ context.Context, _ string, joins []JoinEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, joins)
}

func (r *recordingResponder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeDiscord records every outbound call in order.
type fakeDiscord struct {
	mu        sync.Mutex
	journal   []string
	admins    []discord.MemberIdentity
	ownerID   string
	adminsErr error
	ownerErr  error
	lockErr   error
	failDM    map[string]error
	failLog   error
	panicLog  bool
	lockedAt  time.Time
}

func (f *fakeDiscord) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journal = append(f.journal, s)
}

func (f *fakeDiscord) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.journal...)
}

func (f *fakeDiscord) SendChannelEmbed(_ context.Context, channelID string, _ *discordgo.MessageEmbed) error {
	if f.panicLog {
		panic("log channel exploded")
	}
	f.record("channel:" + channelID)
	return f.failLog
}

func (f *fakeDiscord) SendDirectEmbed(_ context.Context, userID string, _ *discordgo.MessageEmbed) error {
	f.record("dm:" + userID)
	return f.failDM[userID]
}

func (f *fakeDiscord) ListAdministrators(context.Context, string) ([]discord.MemberIdentity, error) {
	return f.admins, f.adminsErr
}

func (f *fakeDiscord) GuildOwnerID(context.Context, string) (string, error) {
	return f.ownerID, f.ownerErr
}

func (f *fakeDiscord) Lock(_ context.Context, _ string, until time.Time) error {
	f.record("lock")
	f.mu.Lock()
	f.lockedAt = until
	f.mu.Unlock()
	return f.lockErr
}

type fakeIncidents struct {
	mu        sync.Mutex
	incidents []*db.RaidIncident
}

func (f *fakeIncidents) AddRaidIncident(_ context.Context, incident *db.RaidIncident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents = append(f.incidents, incident)
	return nil
}

var errBoom = errors.New("boom")
