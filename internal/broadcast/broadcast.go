// Package broadcast delivers outbound notifications through the active bot
// session: directly for a single chat, fanned out over the approved
// subscriber snapshot for broadcast targets.
package broadcast

import (
	"bytes"
	"context"
	"errors"
	"io"
	"runtime/debug"
	"sync"

	"golang.org/x/time/rate"

	"cibot/internal/compose"
	"cibot/internal/files"
	"cibot/internal/registry"
	"cibot/internal/transport"
	logx "cibot/pkg/logx"
)

// Target addresses either one chat or the whole approved audience.
type Target struct {
	ChatID    int64
	Broadcast bool
}

func ToChat(id int64) Target { return Target{ChatID: id} }
func ToAll() Target          { return Target{Broadcast: true} }

// Message is an outbound text notification. Body is a raw template;
// composition happens once per send.
type Message struct {
	Target Target
	Body   string
	Env    compose.Context
}

// FileMessage is an outbound attachment. Content is read once and buffered
// so a broadcast can replay it per recipient.
type FileMessage struct {
	Target   Target
	Content  io.Reader
	FileName string
	Caption  string
	Env      compose.Context
}

// ClientProvider hands out the live bot-API client, or nil when no session
// has been started.
type ClientProvider interface {
	ActiveClient() transport.Client
}

// Sink is the build-log collaborator used when log_to_console is enabled.
type Sink interface {
	Println(text string)
}

type Config struct {
	Workers      int // bounded fan-out parallelism, default 4
	RatePerSec   int // bot API flood limit, default 25
	LogToConsole bool
}

type Broadcaster struct {
	sessions ClientProvider
	reg      *registry.Registry
	composer *compose.Composer
	router   *files.Router
	sink     Sink
	log      logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

var ErrNoSession = errors.New("no active bot session")

func New(cfg Config, sessions ClientProvider, reg *registry.Registry, composer *compose.Composer, router *files.Router, sink Sink, log logx.Logger) *Broadcaster {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Broadcaster{
		sessions: sessions,
		reg:      reg,
		composer: composer,
		router:   router,
		sink:     sink,
		log:      log,
	}
	b.Apply(cfg)
	return b
}

// Apply swaps runtime knobs; safe under concurrent sends.
func (b *Broadcaster) Apply(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	b.mu.Lock()
	b.cfg = cfg
	b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	b.mu.Unlock()
}

func (b *Broadcaster) snapshot() (Config, *rate.Limiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg, b.limiter
}

// Send composes and delivers a text notification. For a single chat the
// API error (if any) is returned; for a broadcast, per-recipient failures
// are isolated and only observable through logs.
func (b *Broadcaster) Send(ctx context.Context, msg Message) error {
	client := b.sessions.ActiveClient()
	if client == nil {
		b.log.Warn("text send skipped", logx.Err(ErrNoSession))
		return ErrNoSession
	}

	text := b.composer.Compose(msg.Body, msg.Env)
	b.echo(text)

	if !msg.Target.Broadcast {
		if err := b.sendOne(ctx, client, msg.Target.ChatID, text); err != nil {
			return err
		}
		return nil
	}

	b.fanOut(ctx, func(ctx context.Context, sub registry.Subscriber) error {
		return b.sendOne(ctx, client, sub.ChatID, text)
	})
	return nil
}

// SendFile routes an attachment the same way. The content reader is
// consumed exactly once regardless of audience size.
func (b *Broadcaster) SendFile(ctx context.Context, msg FileMessage) error {
	client := b.sessions.ActiveClient()
	if client == nil {
		b.log.Warn("file send skipped", logx.String("file", msg.FileName), logx.Err(ErrNoSession))
		return ErrNoSession
	}
	if msg.Content == nil {
		err := errors.New("file content unavailable")
		b.log.Warn("file send skipped", logx.String("file", msg.FileName), logx.Err(err))
		return err
	}
	content, err := io.ReadAll(msg.Content)
	if err != nil {
		b.log.Warn("file read failed", logx.String("file", msg.FileName), logx.Err(err))
		return err
	}

	send := func(ctx context.Context, chatID int64) error {
		return b.router.Send(ctx, client, transport.ChatTarget{ChatID: chatID},
			bytes.NewReader(content), msg.FileName, msg.Caption, msg.Env)
	}

	b.echo("sent file " + msg.FileName)

	if !msg.Target.Broadcast {
		return b.rateLimited(ctx, msg.Target.ChatID, func(c context.Context) error {
			return send(c, msg.Target.ChatID)
		})
	}

	b.fanOut(ctx, func(ctx context.Context, sub registry.Subscriber) error {
		return b.rateLimited(ctx, sub.ChatID, func(c context.Context) error {
			return send(c, sub.ChatID)
		})
	})
	return nil
}

// fanOut resolves the approved snapshot once and delivers to each recipient
// independently: one blocked or banned chat must never starve the rest.
func (b *Broadcaster) fanOut(ctx context.Context, deliver func(ctx context.Context, sub registry.Subscriber) error) {
	audience := b.reg.Approved()
	if len(audience) == 0 {
		b.log.Debug("broadcast with empty audience")
		return
	}
	cfg, _ := b.snapshot()
	workers := cfg.Workers
	if workers > len(audience) {
		workers = len(audience)
	}

	// Recovery wraps each delivery, not the worker loop: a panic for one
	// recipient must not take the worker down and strand the queue.
	deliverSafe := func(sub registry.Subscriber) {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("panic delivering broadcast", logx.Int64("chat_id", sub.ChatID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		// Per-recipient errors are already logged by deliver.
		_ = deliver(ctx, sub)
	}

	queue := make(chan registry.Subscriber)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for sub := range queue {
				deliverSafe(sub)
			}
		}()
	}
	for _, sub := range audience {
		queue <- sub
	}
	close(queue)
	wg.Wait()
}

func (b *Broadcaster) sendOne(ctx context.Context, client transport.Client, chatID int64, text string) error {
	return b.rateLimited(ctx, chatID, func(c context.Context) error {
		err := client.SendText(c, transport.ChatTarget{ChatID: chatID}, text, &transport.SendOptions{ParseMode: "Markdown"})
		if err != nil {
			b.log.Warn("message send failed", logx.Int64("chat_id", chatID), logx.String("op", "sendMessage"), logx.Err(err))
		}
		return err
	})
}

func (b *Broadcaster) rateLimited(ctx context.Context, chatID int64, fn func(ctx context.Context) error) error {
	_, lim := b.snapshot()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			b.log.Warn("send cancelled while rate limited", logx.Int64("chat_id", chatID), logx.Err(err))
			return err
		}
	}
	return fn(ctx)
}

// echo mirrors composed outbound text to the build-log sink when enabled.
func (b *Broadcaster) echo(text string) {
	cfg, _ := b.snapshot()
	if cfg.LogToConsole && b.sink != nil {
		b.sink.Println(text)
	}
}
