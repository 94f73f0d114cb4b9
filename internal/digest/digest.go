// Package digest periodically broadcasts a subscriber status summary.
// It is off by default; operators enable it with a cron schedule.
package digest

import (
	"context"
	"strconv"
	"sync"

	"github.com/robfig/cron/v3"

	"cibot/internal/botstrings"
	"cibot/internal/broadcast"
	"cibot/internal/compose"
	"cibot/internal/registry"
	logx "cibot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string
	// Template overrides the default digest template when non-empty.
	Template string
	// BotName only feeds the ${BOT_NAME} macro; it has no lifecycle meaning.
	BotName string
}

// Service wraps one cron entry. Reschedule replaces the entry in place, so
// config reloads never accumulate stale schedules.
type Service struct {
	caster  *broadcast.Broadcaster
	reg     *registry.Registry
	strings botstrings.Strings
	log     logx.Logger
	parser  cron.Parser

	mu  sync.Mutex
	c   *cron.Cron
	cfg Config
}

func New(caster *broadcast.Broadcaster, reg *registry.Registry, strs botstrings.Strings, log logx.Logger) *Service {
	return &Service{
		caster:  caster,
		reg:     reg,
		strings: strs,
		log:     log.With(logx.String("component", "digest")),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Reschedule applies cfg, replacing any running schedule. An invalid cron
// expression is returned as an error and the previous schedule stays down;
// a half-applied digest is worse than none.
func (s *Service) Reschedule(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	s.cfg = cfg
	if !cfg.Enabled {
		s.log.Debug("digest disabled")
		return nil
	}

	sched, err := s.parser.Parse(cfg.Schedule)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithParser(s.parser))
	c.Schedule(sched, cron.FuncJob(func() { s.emit(ctx) }))
	c.Start()
	s.c = c
	s.log.Info("digest scheduled", logx.String("schedule", cfg.Schedule))
	return nil
}

// Stop halts the schedule. Jobs already running finish on their own.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
}

func (s *Service) emit(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	body := cfg.Template
	if body == "" {
		body = s.strings.Get(botstrings.KeyDigest)
	}
	env := compose.Context{
		"SUBSCRIBER_COUNT": strconv.Itoa(len(s.reg.Approved())),
		"BOT_NAME":         cfg.BotName,
	}
	if err := s.caster.Send(ctx, broadcast.Message{Target: broadcast.ToAll(), Body: body, Env: env}); err != nil {
		s.log.Warn("digest send failed", logx.Err(err))
	}
}
