package raid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/holyroller/holyroller/internal/db"
	"github.com/holyroller/holyroller/internal/infrastructure/discord"
	"github.com/holyroller/holyroller/internal/infra"
	"github.com/holyroller/holyroller/internal/observability"
)

const (
	stepLogChannel = "log_channel"
	stepAdminDM    = "admin_dm"
	stepOwnerDM    = "owner_dm"
	stepLockdown   = "lockdown"
	stepPersist    = "persist"

	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"

	defaultAdminDMConcurrency = 4
)

type Notifier interface {
	SendChannelEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
	SendDirectEmbed(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

type Guilds interface {
	ListAdministrators(ctx context.Context, guildID string) ([]discord.MemberIdentity, error)
	GuildOwnerID(ctx context.Context, guildID string) (string, error)
	Lock(ctx context.Context, guildID string, until time.Time) error
}

type guildNamer interface {
	GuildName(ctx context.Context, guildID string) (string, error)
}

type IncidentStore interface {
	AddRaidIncident(ctx context.Context, incident *db.RaidIncident) error
}

// AlertResponder alerts the log channel, the administrators and the owner, then
// locks the guild. Every step is isolated, a failing step never blocks the next.
type AlertResponder struct {
	settings  SettingsStore
	notifier  Notifier
	guilds    Guilds
	incidents IncidentStore
	limits    Limits

	dmConcurrency int
	tracer        trace.Tracer
	now           func() time.Time
	logger        *log.Entry
}

func NewAlertResponder(settings SettingsStore, notifier Notifier, guilds Guilds, incidents IncidentStore, limits Limits, dmConcurrency int) *AlertResponder {
	if dmConcurrency < 1 {
		dmConcurrency = defaultAdminDMConcurrency
	}
	return &AlertResponder{
		settings:      settings,
		notifier:      notifier,
		guilds:        guilds,
		incidents:     incidents,
		limits:        limits,
		dmConcurrency: dmConcurrency,
		tracer:        otel.Tracer("github.com/holyroller/holyroller/internal/raid"),
		now:           time.Now,
		logger:        log.WithField("component", "raid_responder"),
	}
}

func (r *AlertResponder) Execute(ctx context.Context, guildID string, joins []JoinEvent) {
	ctx, span := r.tracer.Start(ctx, "raid.respond", trace.WithAttributes(
		attribute.String("guild_id", guildID),
		attribute.Int("joins", len(joins)),
	))
	defer span.End()

	now := r.now()
	incident := &db.RaidIncident{
		ID:            uuid.New(),
		GuildID:       guildID,
		DetectedAt:    now.UTC(),
		JoinCount:     len(joins),
		LockdownUntil: now.Add(r.limits.LockdownDuration).UTC(),
	}
	entry := r.logger.WithFields(log.Fields{
		"guild_id":    guildID,
		"incident_id": incident.ID,
	})

	opts := alertOptions{limits: r.limits, now: now}
	if namer, ok := r.guilds.(guildNamer); ok {
		if name, err := namer.GuildName(ctx, guildID); err == nil {
			opts.guildName = name
		}
	}

	if channelID := r.logChannel(ctx, guildID, entry); channelID != "" {
		embed := buildAlert(joins, opts)
		incident.LogAlertSent = r.step(entry, stepLogChannel, func() error {
			return r.notifier.SendChannelEmbed(ctx, channelID, embed)
		})
	} else {
		observability.RecordRaidStep(stepLogChannel, outcomeSkipped)
	}

	opts.direct = true
	direct := buildAlert(joins, opts)

	notified := r.notifyAdmins(ctx, guildID, direct, entry)
	incident.AdminsNotified = len(notified)

	if ownerID, err := r.guilds.GuildOwnerID(ctx, guildID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant resolve guild owner")
		observability.RecordRaidStep(stepOwnerDM, outcomeFailed)
	} else if _, done := notified[ownerID]; done || ownerID == "" {
		observability.RecordRaidStep(stepOwnerDM, outcomeSkipped)
	} else {
		incident.OwnerNotified = r.step(entry.WithField("user_id", ownerID), stepOwnerDM, func() error {
			return r.notifier.SendDirectEmbed(ctx, ownerID, direct)
		})
	}

	incident.LockdownApplied = r.step(entry.WithField("until", incident.LockdownUntil), stepLockdown, func() error {
		return r.guilds.Lock(ctx, guildID, incident.LockdownUntil)
	})
	if incident.LockdownApplied {
		entry.WithField("reason", lockdownReason).Info("guild locked down")
	} else {
		span.SetStatus(codes.Error, "lockdown failed")
	}

	if r.incidents != nil {
		r.step(entry, stepPersist, func() error {
			return r.incidents.AddRaidIncident(ctx, incident)
		})
	}
}

func (r *AlertResponder) logChannel(ctx context.Context, guildID string, entry *log.Entry) string {
	channelID, err := r.settings.GetSetting(ctx, guildID, db.KeyLogChannel)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			entry.WithField("error", err.Error()).Warn("cant read log channel")
		}
		return ""
	}
	return channelID
}

// notifyAdmins DMs every administrator concurrently and returns the ids that were
// reached. The set is complete when it returns.
func (r *AlertResponder) notifyAdmins(ctx context.Context, guildID string, embed *discordgo.MessageEmbed, entry *log.Entry) map[string]struct{} {
	notified := make(map[string]struct{})

	admins, err := r.guilds.ListAdministrators(ctx, guildID)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant list administrators")
		observability.RecordRaidStep(stepAdminDM, outcomeFailed)
		return notified
	}

	var (
		mu        sync.Mutex
		g         errgroup.Group
		scheduled = make(map[string]struct{}, len(admins))
	)
	g.SetLimit(r.dmConcurrency)
	for _, admin := range admins {
		if _, seen := scheduled[admin.ID]; seen || admin.ID == "" {
			continue
		}
		scheduled[admin.ID] = struct{}{}
		g.Go(func() error {
			ok := r.step(entry.WithField("user_id", admin.ID), stepAdminDM, func() error {
				return r.notifier.SendDirectEmbed(ctx, admin.ID, embed)
			})
			if ok {
				mu.Lock()
				notified[admin.ID] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return notified
}

// step runs f inside its own fault boundary and reports success.
func (r *AlertResponder) step(entry *log.Entry, name string, f func() error) bool {
	var err error
	if infra.Recover("raid_"+name, func() { err = f() }) {
		err = fmt.Errorf("%s panicked", name)
	}
	if err != nil {
		entry.WithField("step", name).WithField("error", err.Error()).Warn("raid response step failed")
		observability.RecordRaidStep(name, outcomeFailed)
		return false
	}
	observability.RecordRaidStep(name, outcomeOK)
	return true
}
