package modlog

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/observability"
)

const (
	DefaultTTL    = 8 * time.Second
	DefaultWindow = 10 * time.Second
)

type Kind string

const (
	KindKicked   Kind = "kicked"
	KindBanned   Kind = "banned"
	KindUnbanned Kind = "unbanned"
	KindMuted    Kind = "muted"
	KindUnmuted  Kind = "unmuted"
)

// Action is what a moderation command did, kept until the matching gateway
// event is narrated by the event logger.
type Action struct {
	GuildID      string
	UserID       string
	Kind         Kind
	RecordedAt   time.Time
	ActorID      string
	Reason       string
	Duration     time.Duration
	LogChannelID string
}

type key struct {
	guildID string
	userID  string
}

type entry struct {
	action     Action
	generation uint64
}

// Recorder holds at most one pending Action per (guild, user). Entries are
// read once and expire on their own.
type Recorder struct {
	mu         sync.Mutex
	entries    map[key]entry
	generation uint64

	now      func() time.Time
	schedule func(d time.Duration, f func())
	logger   *log.Entry
}

func NewRecorder() *Recorder {
	return &Recorder{
		entries: make(map[key]entry),
		now:     time.Now,
		schedule: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		logger: log.WithField("component", "modlog"),
	}
}

// Register stores the action, replacing any pending one for the same member, and
// schedules its eviction after ttl. A non-positive ttl means DefaultTTL.
func (r *Recorder) Register(action Action, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := key{guildID: action.GuildID, userID: action.UserID}

	r.mu.Lock()
	if action.RecordedAt.IsZero() {
		action.RecordedAt = r.now()
	}
	r.generation++
	generation := r.generation
	r.entries[k] = entry{action: action, generation: generation}
	r.mu.Unlock()

	observability.RecordModlogRegistration(string(action.Kind))
	r.logger.WithFields(log.Fields{
		"guild_id": action.GuildID,
		"user_id":  action.UserID,
		"action":   action.Kind,
	}).Trace("registered")

	r.schedule(ttl, func() { r.evict(k, generation) })
}

// Consume returns and removes the pending action if it has the expected kind and
// was recorded within window. A kind mismatch leaves the entry in place. A
// non-positive window means DefaultWindow.
func (r *Recorder) Consume(guildID, userID string, expected Kind, window time.Duration) (Action, bool) {
	if window <= 0 {
		window = DefaultWindow
	}
	k := key{guildID: guildID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[k]
	switch {
	case !ok:
		observability.RecordModlogConsume("miss")
		return Action{}, false
	case e.action.Kind != expected:
		observability.RecordModlogConsume("kind_mismatch")
		return Action{}, false
	case r.now().Sub(e.action.RecordedAt) > window:
		observability.RecordModlogConsume("stale")
		return Action{}, false
	}

	delete(r.entries, k)
	observability.RecordModlogConsume("hit")
	return e.action, true
}

// Len reports the number of pending entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Recorder) evict(k key, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[k]; ok && e.generation == generation {
		delete(r.entries, k)
	}
}
