package raid

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/observability"
)

const (
	DefaultWindow           = 2 * time.Second
	DefaultJoinThreshold    = 4
	DefaultLockdownDuration = time.Hour
)

// Limits are shared by the detector and the alert so both report the same values.
type Limits struct {
	Window           time.Duration
	JoinThreshold    int
	LockdownDuration time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		Window:           DefaultWindow,
		JoinThreshold:    DefaultJoinThreshold,
		LockdownDuration: DefaultLockdownDuration,
	}
}

// JoinEvent is a single observed member join.
type JoinEvent struct {
	GuildID          string
	UserID           string
	Username         string
	JoinedAt         time.Time
	AccountCreatedAt time.Time
	HasAvatar        bool
}

type SettingsStore interface {
	GetSetting(ctx context.Context, guildID, key string) (string, error)
}

type Responder interface {
	Execute(ctx context.Context, guildID string, joins []JoinEvent)
}

type guildWindow struct {
	mu    sync.Mutex
	joins []JoinEvent
	fired bool
}

// Detector keeps a sliding window of recent joins per guild and hands the window
// to the responder when it reaches the join threshold.
type Detector struct {
	settings  SettingsStore
	responder Responder
	limits    Limits

	mu     sync.Mutex
	guilds map[string]*guildWindow
	logger *log.Entry
}

func NewDetector(settings SettingsStore, responder Responder, limits Limits) *Detector {
	return &Detector{
		settings:  settings,
		responder: responder,
		limits:    limits,
		guilds:    make(map[string]*guildWindow),
		logger:    log.WithField("component", "raid_detector"),
	}
}

// OnJoin records the join observed at now and triggers the responder once per
// raid episode. It never fails.
func (d *Detector) OnJoin(ctx context.Context, ev JoinEvent, now time.Time) {
	if !d.enabled(ctx, ev.GuildID) {
		return
	}

	snapshot, fire := d.window(ev.GuildID).observe(ev, now, d.limits)
	if !fire {
		return
	}

	observability.RecordRaidDetection()
	d.logger.WithFields(log.Fields{
		"guild_id": ev.GuildID,
		"joins":    len(snapshot),
	}).Warn("raid detected")
	d.responder.Execute(ctx, ev.GuildID, snapshot)
}

// Pending returns a copy of the guild's current window.
func (d *Detector) Pending(guildID string) []JoinEvent {
	w := d.window(guildID)
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]JoinEvent(nil), w.joins...)
}

func (d *Detector) enabled(ctx context.Context, guildID string) bool {
	value, err := d.settings.GetSetting(ctx, guildID, db.KeyRaidResponseEnabled)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return true
	case err != nil:
		d.logger.WithField("guild_id", guildID).WithField("error", err.Error()).Warn("cant read raid setting, assuming enabled")
		return true
	}
	return db.ParseEnabled(value)
}

func (d *Detector) window(guildID string) *guildWindow {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.guilds[guildID]
	if !ok {
		w = &guildWindow{}
		d.guilds[guildID] = w
	}
	return w
}

// observe appends, prunes and checks under the window lock. The window re-arms
// once a join sees it below the threshold again.
func (w *guildWindow) observe(ev JoinEvent, now time.Time, limits Limits) ([]JoinEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.joins = append(w.joins, ev)
	cutoff := now.Add(-limits.Window)
	kept := w.joins[:0]
	for _, j := range w.joins {
		if j.JoinedAt.After(cutoff) {
			kept = append(kept, j)
		}
	}
	clear(w.joins[len(kept):])
	w.joins = kept

	if len(w.joins) < limits.JoinThreshold {
		w.fired = false
		return nil, false
	}
	if w.fired {
		return nil, false
	}
	w.fired = true
	return append([]JoinEvent(nil), w.joins...), true
}
