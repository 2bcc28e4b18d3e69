package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/bot"
	"github.com/holyroller/holyroller/internal/config"
	"github.com/holyroller/holyroller/internal/db/sqlite"
	"github.com/holyroller/holyroller/internal/handlers/commands"
	"github.com/holyroller/holyroller/internal/handlers/eventlog"
	"github.com/holyroller/holyroller/internal/handlers/greetings"
	"github.com/holyroller/holyroller/internal/handlers/moderation"
	"github.com/holyroller/holyroller/internal/handlers/raidwatch"
	"github.com/holyroller/holyroller/internal/handlers/settings"
	"github.com/holyroller/holyroller/internal/infra"
	"github.com/holyroller/holyroller/internal/infrastructure/discord"
	"github.com/holyroller/holyroller/internal/lifecycle"
	"github.com/holyroller/holyroller/internal/modlog"
	"github.com/holyroller/holyroller/internal/observability"
	"github.com/holyroller/holyroller/internal/raid"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.HrFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observability.Init(ctx); err != nil {
		log.WithField("error", err.Error()).Fatal("cant init observability")
	}

	workDir, err := infra.EnsureWorkDir(cfg.DotPath)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant prepare work dir")
	}
	dbClient, err := sqlite.NewSQLiteClient(ctx, workDir, cfg.DBFile)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant open database")
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithField("error", err.Error()).Error("cant close database")
		}
	}()

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant initialize discord session")
	}
	session.Identify.Intents = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	session.SyncEvents = true
	session.State.MaxMessageCount = cfg.MessageCache
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		session.LogLevel = discordgo.LogDebug
	}

	ops := discord.NewOperations(session)
	service := bot.NewService(session, dbClient, ops, cfg.DefaultPrefix)
	recorder := modlog.NewRecorder()

	limits := raid.Limits{
		Window:           cfg.Raid.Window,
		JoinThreshold:    cfg.Raid.JoinThreshold,
		LockdownDuration: cfg.Raid.LockdownDuration,
	}
	responder := raid.NewAsyncResponder(
		raid.NewAlertResponder(dbClient, ops, ops, dbClient, limits, cfg.Raid.AdminDMConcurrency),
	)
	detector := raid.NewDetector(dbClient, responder, limits)

	router := commands.NewRouter(service)
	router.Register(moderation.NewModerator(ops, dbClient, recorder, cfg.ModLog.TTL).Commands()...)
	router.Register(settings.NewSettings(dbClient, limits, cfg.DefaultPrefix).Commands()...)

	processor := bot.NewEventProcessor(cfg.EnabledHandlers, map[string]bot.Handler{
		"guilds":    settings.NewGuilds(dbClient, ops, cfg.DefaultPrefix),
		"commands":  router,
		"raidwatch": raidwatch.NewWatcher(detector),
		"greetings": greetings.NewGreeter(service, ops),
		"eventlog":  eventlog.NewLogger(dbClient, recorder, ops, ops, cfg.ModLog.ConsumeWindow),
	}, cfg.EventTimeout)

	// the processor stops first so no event reaches a stopped responder
	runtime := lifecycle.NewRuntime()
	runtime.Register("metrics", observability.NewMetricsServer(cfg.MetricsAddr, prometheus.DefaultGatherer))
	runtime.Register("raid_responder", responder)
	runtime.Register("event_processor", processor)
	if err := runtime.Start(ctx); err != nil {
		log.WithField("error", err.Error()).Fatal("cant start runtime")
	}

	session.AddHandler(func(_ *discordgo.Session, payload interface{}) {
		processor.Dispatch(payload)
	})
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.WithField("user", r.User.Username).WithField("guilds", len(r.Guilds)).Info("connected")
		appID := r.User.ID
		go infra.GoRecoverable(0, "sync_commands", func() {
			syncCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := router.SyncApplicationCommands(syncCtx, appID); err != nil {
				log.WithField("error", err.Error()).Error("cant sync application commands")
			}
		})
	})

	if err := session.Open(); err != nil {
		log.WithField("error", err.Error()).Fatal("cant open discord session")
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case <-infra.MonitorExecutable(ctx):
		log.Warn("executable file was modified")
	}

	if err := session.Close(); err != nil {
		log.WithField("error", err.Error()).Warn("cant close discord session")
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := runtime.Stop(stopCtx); err != nil {
		log.WithField("error", err.Error()).Error("cant stop runtime")
	}
	if err := observability.Shutdown(stopCtx); err != nil {
		log.WithField("error", err.Error()).Error("cant shutdown tracing")
	}
}
