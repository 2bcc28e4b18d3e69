package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gammazero/workerpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/infra"
	"github.com/holyroller/holyroller/internal/observability"
)

const (
	DefaultEventTimeout = 30 * time.Second
)

// EventProcessor runs handlers for gateway events. Events of one guild are
// handled one at a time in arrival order, different guilds run in parallel.
type EventProcessor struct {
	handlers []namedHandler
	timeout  time.Duration
	now      func() time.Time
	logger   *log.Entry

	runMutex sync.Mutex
	started  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	queues   map[string]*workerpool.WorkerPool
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewEventProcessor keeps the registered handlers named in enabled, in that order.
func NewEventProcessor(enabled []string, registered map[string]Handler, timeout time.Duration) *EventProcessor {
	logger := log.WithField("component", "event_processor")
	handlers := make([]namedHandler, 0, len(enabled))
	for _, name := range enabled {
		handler, ok := registered[name]
		if !ok || handler == nil {
			logger.Warnf("no registered handler: %s", name)
			continue
		}
		handlers = append(handlers, namedHandler{name: name, handler: handler})
	}
	if timeout <= 0 {
		timeout = DefaultEventTimeout
	}
	return &EventProcessor{
		handlers: handlers,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
		queues:   make(map[string]*workerpool.WorkerPool),
	}
}

func (p *EventProcessor) Start(ctx context.Context) error {
	p.runMutex.Lock()
	defer p.runMutex.Unlock()
	if p.started {
		return nil
	}
	p.runCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.started = true
	return nil
}

// Stop stops accepting events and drains the guild queues.
func (p *EventProcessor) Stop(ctx context.Context) error {
	p.runMutex.Lock()
	if !p.started {
		p.runMutex.Unlock()
		return nil
	}
	p.started = false
	queues := p.queues
	p.queues = make(map[string]*workerpool.WorkerPool)
	cancel := p.cancel
	p.runMutex.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, q := range queues {
			q.StopWait()
		}
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Dispatch stamps the gateway payload and queues it on its guild. Payloads
// without a guild are dropped.
func (p *EventProcessor) Dispatch(payload any) {
	guildID, ok := GuildIDOf(payload)
	if !ok {
		return
	}
	ev := &Event{GuildID: guildID, ReceivedAt: p.now(), Payload: payload}

	p.runMutex.Lock()
	defer p.runMutex.Unlock()
	if !p.started {
		return
	}
	q, ok := p.queues[guildID]
	if !ok {
		q = workerpool.New(1)
		p.queues[guildID] = q
	}
	runCtx := p.runCtx
	q.Submit(func() {
		ctx, cancel := context.WithTimeout(runCtx, p.timeout)
		defer cancel()
		infra.Recover("event_"+EventName(payload), func() {
			if err := p.Process(ctx, ev); err != nil {
				p.logger.WithFields(log.Fields{
					"guild_id": guildID,
					"event":    EventName(payload),
					"error":    err.Error(),
				}).Error("event processing failed")
			}
		})
		if leftGuild(payload) {
			p.releaseQueue(guildID, q)
		}
	})
}

// releaseQueue forgets the queue of a guild the bot left. It runs on the
// queue's own worker, so the pool is drained from another goroutine.
func (p *EventProcessor) releaseQueue(guildID string, q *workerpool.WorkerPool) {
	p.runMutex.Lock()
	if p.queues[guildID] == q {
		delete(p.queues, guildID)
	}
	p.runMutex.Unlock()
	go q.StopWait()
}

func leftGuild(payload any) bool {
	e, ok := payload.(*discordgo.GuildDelete)
	return ok && e.Guild != nil && !e.Unavailable
}

// Process runs the handlers in order until one declines to proceed.
func (p *EventProcessor) Process(ctx context.Context, ev *Event) error {
	if ev == nil || ev.Payload == nil {
		return errors.New("event is nil")
	}
	defer observability.StartEventProcessing(EventName(ev.Payload))()

	for _, h := range p.handlers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		proceed, err := h.handler.Handle(ctx, ev)
		if err != nil {
			return errors.WithMessage(err, h.name+" handling error")
		}
		if !proceed {
			p.logger.WithField("handler", h.name).Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// QueueCount reports the number of live guild queues.
func (p *EventProcessor) QueueCount() int {
	p.runMutex.Lock()
	defer p.runMutex.Unlock()
	return len(p.queues)
}

// GuildIDOf extracts the guild of the event types the bot handles.
func GuildIDOf(payload any) (string, bool) {
	var guildID string
	switch e := payload.(type) {
	case *discordgo.GuildMemberAdd:
		if e.Member != nil {
			guildID = e.GuildID
		}
	case *discordgo.GuildMemberRemove:
		if e.Member != nil {
			guildID = e.GuildID
		}
	case *discordgo.GuildMemberUpdate:
		if e.Member != nil {
			guildID = e.GuildID
		}
	case *discordgo.GuildBanAdd:
		guildID = e.GuildID
	case *discordgo.GuildBanRemove:
		guildID = e.GuildID
	case *discordgo.MessageCreate:
		if e.Message != nil {
			guildID = e.GuildID
		}
	case *discordgo.MessageUpdate:
		if e.Message != nil {
			guildID = e.GuildID
		}
	case *discordgo.MessageDelete:
		if e.Message != nil {
			guildID = e.GuildID
		}
	case *discordgo.ChannelCreate:
		if e.Channel != nil {
			guildID = e.GuildID
		}
	case *discordgo.ChannelDelete:
		if e.Channel != nil {
			guildID = e.GuildID
		}
	case *discordgo.ChannelUpdate:
		if e.Channel != nil {
			guildID = e.GuildID
		}
	case *discordgo.GuildRoleCreate:
		if e.GuildRole != nil {
			guildID = e.GuildID
		}
	case *discordgo.GuildUpdate:
		if e.Guild != nil {
			guildID = e.ID
		}
	case *discordgo.InviteCreate:
		guildID = e.GuildID
	case *discordgo.GuildCreate:
		if e.Guild != nil {
			guildID = e.ID
		}
	case *discordgo.GuildDelete:
		if e.Guild != nil {
			guildID = e.ID
		}
	case *discordgo.InteractionCreate:
		if e.Interaction != nil {
			guildID = e.GuildID
		}
	}
	return guildID, guildID != ""
}

// EventName is the metric and log label of a payload.
func EventName(payload any) string {
	switch payload.(type) {
	case *discordgo.GuildMemberAdd:
		return "member_add"
	case *discordgo.GuildMemberRemove:
		return "member_remove"
	case *discordgo.GuildMemberUpdate:
		return "member_update"
	case *discordgo.GuildBanAdd:
		return "ban_add"
	case *discordgo.GuildBanRemove:
		return "ban_remove"
	case *discordgo.MessageCreate:
		return "message_create"
	case *discordgo.MessageUpdate:
		return "message_update"
	case *discordgo.MessageDelete:
		return "message_delete"
	case *discordgo.ChannelCreate:
		return "channel_create"
	case *discordgo.ChannelDelete:
		return "channel_delete"
	case *discordgo.ChannelUpdate:
		return "channel_update"
	case *discordgo.GuildRoleCreate:
		return "role_create"
	case *discordgo.GuildUpdate:
		return "guild_update"
	case *discordgo.InviteCreate:
		return "invite_create"
	case *discordgo.GuildCreate:
		return "guild_create"
	case *discordgo.GuildDelete:
		return "guild_delete"
	case *discordgo.InteractionCreate:
		return "interaction_create"
	}
	return fmt.Sprintf("%T", payload)
}
