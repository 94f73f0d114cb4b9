// Package session owns the lifecycle of the bot connection. At most one
// client is live at a time; replacing it (new bot name or token) tears the
// old one down first. All lifecycle transitions run on a single worker
// goroutine, so concurrent Start calls never race a half-built session.
package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"cibot/internal/botstrings"
	"cibot/internal/compose"
	"cibot/internal/dispatch"
	"cibot/internal/registry"
	"cibot/internal/transport"
	logx "cibot/pkg/logx"
)

// ClientFactory builds a transport client for a credential pair. token is
// already in cleartext here; the manager itself only ever stores the sealed
// form.
type ClientFactory func(botName, token string) (transport.Client, error)

// TokenOpener turns a stored (possibly sealed) token into cleartext at the
// point of use. Identity is a valid opener for plaintext tokens.
type TokenOpener func(stored string) (string, error)

type Config struct {
	// RetryAttempts bounds how many times a failed client start is retried
	// before the manager gives up and waits for the next config change.
	RetryAttempts int
	// RetryBase is the first backoff delay; each attempt doubles it and adds
	// jitter.
	RetryBase    time.Duration
	UpdateBuffer int
	StopGrace    time.Duration
}

func (c *Config) normalize() {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.UpdateBuffer <= 0 {
		c.UpdateBuffer = 128
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
}

// ErrManagerClosed is returned by Start after Close.
var ErrManagerClosed = errors.New("session: manager closed")

type request struct {
	botName string
	token   string
	reply   chan error
}

// session is one live client plus its dispatcher loop.
type session struct {
	botName string
	token   string // stored form, compared for idempotency, never logged
	client  transport.Client
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager serializes session creation and teardown through one worker.
// Start with an unchanged (botName, token) pair is a no-op, so config
// reloads that touch unrelated keys never bounce the connection.
type Manager struct {
	cfg      Config
	factory  ClientFactory
	opener   TokenOpener
	reg      *registry.Registry
	composer *compose.Composer
	strings  botstrings.Strings
	log      logx.Logger

	reqs      chan request
	workerAck chan struct{}

	mu      sync.RWMutex
	current *session
	closed  bool
}

func New(cfg Config, factory ClientFactory, opener TokenOpener, reg *registry.Registry, composer *compose.Composer, strs botstrings.Strings, log logx.Logger) *Manager {
	cfg.normalize()
	if opener == nil {
		opener = func(s string) (string, error) { return s, nil }
	}
	m := &Manager{
		cfg:       cfg,
		factory:   factory,
		opener:    opener,
		reg:       reg,
		composer:  composer,
		strings:   strs,
		log:       log.With(logx.String("component", "session")),
		reqs:      make(chan request),
		workerAck: make(chan struct{}),
	}
	go m.worker()
	return m
}

// Start brings up a session for the pair, replacing any previous one. It
// blocks until the worker has applied the request and returns the creation
// error, if any. An empty name or token is not an error: the manager logs a
// warning and stays idle until a complete pair arrives.
func (m *Manager) Start(ctx context.Context, botName, token string) error {
	req := request{botName: botName, token: token, reply: make(chan error, 1)}
	select {
	case m.reqs <- req:
	case <-m.workerAck:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveClient returns the live transport client, or nil when no session is
// up. Broadcast uses this to decide between sending and ErrNoSession.
func (m *Manager) ActiveClient() transport.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	return m.current.client
}

// Close tears down the live session and stops the worker. Safe to call more
// than once.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.workerAck)
	m.teardown(ctx)
	return nil
}

func (m *Manager) worker() {
	for {
		select {
		case req := <-m.reqs:
			req.reply <- m.apply(req.botName, req.token)
		case <-m.workerAck:
			return
		}
	}
}

func (m *Manager) apply(botName, token string) error {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	if cur != nil && cur.botName == botName && cur.token == token {
		m.log.Debug("session unchanged, keeping client", logx.String("bot", botName))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopGrace)
	m.teardown(ctx)
	cancel()

	if botName == "" || token == "" {
		m.log.Warn("bot credentials incomplete, no session started")
		return nil
	}

	sess, err := m.connect(botName, token)
	if err != nil {
		m.log.Error("session start failed", logx.String("bot", botName), logx.Err(err))
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sess.cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), m.cfg.StopGrace)
		_ = sess.client.Stop(stopCtx)
		stopCancel()
		return ErrManagerClosed
	}
	m.current = sess
	m.mu.Unlock()
	m.log.Info("session started", logx.String("bot", botName))
	return nil
}

// connect builds and starts a client with bounded retries. Transient API
// failures (network, flood limits) are common right after a token change.
func (m *Manager) connect(botName, token string) (*session, error) {
	plain, err := m.opener(token)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.RetryAttempts; attempt++ {
		sess, err := m.startOnce(botName, token, plain)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if attempt == m.cfg.RetryAttempts {
			break
		}
		delay := m.cfg.RetryBase << (attempt - 1)
		delay += time.Duration(rand.Int63n(int64(delay) / 2))
		m.log.Warn("session start attempt failed, retrying",
			logx.String("bot", botName),
			logx.Int("attempt", attempt),
			logx.Duration("backoff", delay),
			logx.Err(err),
		)
		time.Sleep(delay)
	}
	return nil, lastErr
}

func (m *Manager) startOnce(botName, token, plain string) (*session, error) {
	client, err := m.factory(botName, plain)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, m.cfg.UpdateBuffer)
	if err := client.Start(ctx, updates); err != nil {
		cancel()
		return nil, err
	}

	d := dispatch.New(botName, client, m.reg, m.composer, m.strings, m.log)
	if menu, ok := client.(transport.CommandMenuUpdater); ok {
		if err := menu.UpdateMenuCommands(ctx, d.MenuCommands()); err != nil {
			// Menu sync is cosmetic; the session stays up without it.
			m.log.Warn("command menu update failed", logx.Err(err))
		}
	}

	sess := &session{
		botName: botName,
		token:   token,
		client:  client,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(sess.done)
		d.Run(ctx, updates)
	}()
	return sess, nil
}

// teardown stops the live session, if any. Errors are logged, not returned:
// a client that refuses to stop must not block the replacement from coming
// up.
func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.mu.Unlock()
	if sess == nil {
		return
	}

	if err := sess.client.Stop(ctx); err != nil {
		m.log.Warn("session stop failed", logx.String("bot", sess.botName), logx.Err(err))
	}
	sess.cancel()
	select {
	case <-sess.done:
	case <-ctx.Done():
		m.log.Warn("dispatcher did not drain before deadline", logx.String("bot", sess.botName))
	}
	m.log.Info("session stopped", logx.String("bot", sess.botName))
}
