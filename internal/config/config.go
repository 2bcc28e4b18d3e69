package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		DiscordToken    string        `env:"TOKEN,required"`
		EnabledHandlers []string      `env:"HANDLERS,default=guilds,commands,raidwatch,greetings,eventlog"`
		LogLevel        int           `env:"LOG_LEVEL,default=4"`
		DotPath         string        `env:"DOT_PATH,default=~/.holyroller"`
		DBFile          string        `env:"DB_FILE,default=holyroller.db"`
		DefaultPrefix   string        `env:"DEFAULT_PREFIX,default=!"`
		MetricsAddr     string        `env:"METRICS_ADDR,default=:2112"`
		EventTimeout    time.Duration `env:"EVENT_TIMEOUT,default=30s"`
		MessageCache    int           `env:"MESSAGE_CACHE,default=500"`
		Raid            Raid
		ModLog          ModLog
	}

	Raid struct {
		Window             time.Duration `env:"RAID_WINDOW,default=2s"`
		JoinThreshold      int           `env:"RAID_THRESHOLD,default=4"`
		LockdownDuration   time.Duration `env:"RAID_LOCKDOWN,default=1h"`
		AdminDMConcurrency int           `env:"ADMIN_DM_CONCURRENCY,default=4"`
	}

	ModLog struct {
		TTL           time.Duration `env:"MODLOG_TTL,default=8s"`
		ConsumeWindow time.Duration `env:"MODLOG_WINDOW,default=10s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("HR_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		if err := cfg.validate(); err != nil {
			globalErr = err
			return
		}
		dotPath, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = dotPath
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

func (c *Config) validate() error {
	switch {
	case c.Raid.Window <= 0:
		return fmt.Errorf("raid window must be positive, got %s", c.Raid.Window)
	case c.Raid.JoinThreshold < 1:
		return fmt.Errorf("raid threshold must be at least 1, got %d", c.Raid.JoinThreshold)
	case c.Raid.LockdownDuration <= 0:
		return fmt.Errorf("raid lockdown must be positive, got %s", c.Raid.LockdownDuration)
	case c.Raid.AdminDMConcurrency < 1:
		return fmt.Errorf("admin dm concurrency must be at least 1, got %d", c.Raid.AdminDMConcurrency)
	case c.ModLog.TTL <= 0 || c.ModLog.ConsumeWindow <= 0:
		return fmt.Errorf("modlog ttl and window must be positive")
	}
	return nil
}
