// Package app wires configuration, logging, storage, the bot session, and
// the broadcast pipeline into one process, and keeps them in sync with
// config hot reloads.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cibot/internal/botstrings"
	"cibot/internal/broadcast"
	"cibot/internal/compose"
	"cibot/internal/config"
	"cibot/internal/digest"
	"cibot/internal/files"
	"cibot/internal/registry"
	"cibot/internal/session"
	"cibot/internal/transport"
	"cibot/internal/transport/telegram"
	logx "cibot/pkg/logx"
)

// consoleSink echoes outbound notifications to stdout when
// broadcast.log_to_console is on, mirroring them into the process log
// stream for operators without chat access.
type consoleSink struct{}

func (consoleSink) Println(text string) { fmt.Println(text) }

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	repo     registry.Repository
	reg      *registry.Registry
	caster   *broadcast.Broadcaster
	sessions *session.Manager
	digests  *digest.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	repo, err := registry.OpenRepository(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	if repo != nil {
		log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
	}

	reg, err := registry.New(registry.ParsePolicy(cfg.Approval), repo, log.With(logx.String("comp", "registry")))
	if err != nil {
		if repo != nil {
			_ = repo.Close()
		}
		logSvc.Close()
		return nil, err
	}

	strs := botstrings.Load(cfg.Strings)
	composer := compose.New(compose.MapExpander{}, log.With(logx.String("comp", "compose")))
	router := files.NewRouter(composer, log.With(logx.String("comp", "files")))

	pollTimeout, err := config.DurationOr("bot.poll_timeout", cfg.Bot.PollTimeout, 10*time.Second)
	if err != nil {
		if repo != nil {
			_ = repo.Close()
		}
		logSvc.Close()
		return nil, err
	}
	factory := func(botName, token string) (transport.Client, error) {
		return telegram.New(telegram.Config{
			Token:       token,
			PollTimeout: pollTimeout,
		}, log.With(logx.String("comp", "telegram"), logx.String("bot", botName)))
	}

	sessions := session.New(session.Config{}, factory, config.OpenToken, reg, composer, strs, log)
	caster := broadcast.New(mapBroadcastConfig(cfg), sessions, reg, composer, router, consoleSink{}, log.With(logx.String("comp", "broadcast")))
	digests := digest.New(caster, reg, strs, log)

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		repo:     repo,
		reg:      reg,
		caster:   caster,
		sessions: sessions,
		digests:  digests,
	}, nil
}

// Broadcaster exposes the notification pipeline to callers that deliver
// build events (CLI hooks, HTTP adapters).
func (a *App) Broadcaster() *broadcast.Broadcaster { return a.caster }

func (a *App) Registry() *registry.Registry { return a.reg }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if strings.TrimSpace(cfg.Bot.Token) != "" && !config.IsSealed(cfg.Bot.Token) {
		a.log.Warn("bot token is stored in plaintext; consider sealing it",
			logx.String("key_env", config.TokenKeyEnv))
	}
	if err := a.sessions.Start(ctx, cfg.Bot.Name, cfg.Bot.Token); err != nil {
		// The watch loop retries when credentials change; starting degraded
		// beats refusing to boot over a flaky bot API.
		a.log.Error("initial session start failed", logx.Err(err))
	}

	if err := a.digests.Reschedule(ctx, mapDigestConfig(cfg)); err != nil {
		cancel()
		return fmt.Errorf("digest: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(ctx, sub, cfg)
	}()

	a.log.Info("started", logx.String("bot", cfg.Bot.Name))
	return nil
}

// reloadLoop applies committed config snapshots as they arrive. Sections
// that can be swapped at runtime are; the rest log a restart notice.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config, last *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			changed, attrs := config.SummarizeChange(last, cfg)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append(attrs, logx.Any("sections", changed))...)

			for _, section := range changed {
				switch section {
				case "logging":
					a.logs.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: cfg.Logging.File.Enabled,
							Path:    cfg.Logging.File.Path,
						},
					})
				case "bot":
					if err := a.sessions.Start(ctx, cfg.Bot.Name, cfg.Bot.Token); err != nil {
						a.log.Error("session restart failed", logx.Err(err))
					}
				case "broadcast":
					a.caster.Apply(mapBroadcastConfig(cfg))
				case "digest":
					if err := a.digests.Reschedule(ctx, mapDigestConfig(cfg)); err != nil {
						a.log.Warn("digest reschedule failed", logx.Err(err))
					}
				case "approval", "storage", "strings":
					a.log.Warn("section change requires restart", logx.String("section", section))
				}
			}
			last = cfg
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.digests.Stop()
	if err := a.sessions.Close(ctx); err != nil {
		a.log.Warn("session close failed", logx.Err(err))
	}
	a.wg.Wait()
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

func mapStorageConfig(cfg *config.Config) registry.Config {
	if cfg.Storage == nil {
		return registry.Config{}
	}
	busy, _ := config.DurationOr("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	return registry.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		Workers:      cfg.Broadcast.Workers,
		RatePerSec:   cfg.Broadcast.RatePerSec,
		LogToConsole: cfg.Broadcast.LogToConsole,
	}
}

func mapDigestConfig(cfg *config.Config) digest.Config {
	if cfg.Digest == nil {
		return digest.Config{}
	}
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Schedule: cfg.Digest.Schedule,
		Template: cfg.Digest.Template,
		BotName:  cfg.Bot.Name,
	}
}
