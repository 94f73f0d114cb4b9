package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"cibot/internal/transport"
	logx "cibot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Client adapts telebot long polling and send calls to transport.Client.
type Client struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64

	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, log: log, bot: b, http: &http.Client{Timeout: 8 * time.Second}}, nil
}

// BotName returns the username Telegram reports for this token.
func (c *Client) BotName() string {
	if c.bot == nil || c.bot.Me == nil {
		return ""
	}
	return c.bot.Me.Username
}

func (c *Client) Start(ctx context.Context, out chan<- transport.Update) error {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = true
	c.out = out
	rctx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel
	c.runWG.Add(2)
	c.runMu.Unlock()

	// Periodic summary for dropped updates.
	go func() {
		defer c.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&c.droppedUpdates, 0); n > 0 {
					c.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n), logx.Int("chan_cap", cap(out)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&c.droppedUpdates, 0); n > 0 {
					c.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	}()

	c.bot.Handle(tele.OnText, func(tc tele.Context) error {
		m := tc.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		up := transport.Update{
			Message: &transport.Message{
				ID:       m.ID,
				ChatID:   m.Chat.ID,
				FromID:   m.Sender.ID,
				FromName: senderName(m),
				Text:     m.Text,
				Private:  m.Chat.Type == tele.ChatPrivate,
			},
		}
		select {
		case out <- up:
		default:
			atomic.AddUint64(&c.droppedUpdates, 1)
		}
		return nil
	})

	go func() {
		defer c.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			c.bot.Stop()
		}()
		c.log.Info("polling started", logx.String("bot", c.BotName()))
		c.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (c *Client) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on the
	// Telegram long-poll.
	c.runMu.Lock()
	cancel := c.runCancel
	c.runCancel = nil
	wasRunning := c.running
	c.running = false
	c.runMu.Unlock()

	if !wasRunning {
		c.log.Debug("telegram stop called but not running")
		return nil
	}

	if cancel != nil {
		cancel()
	}

	// telebot Stop is expected to be fast; run it async just in case.
	if c.bot != nil {
		go c.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		c.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is
	// still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		c.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		c.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		c.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (c *Client) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	chat := &tele.Chat{ID: to.ChatID}
	_, err := c.bot.Send(chat, text, sendOptions(opt))
	return err
}

func (c *Client) SendPhoto(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) error {
	p := &tele.Photo{File: tele.FromReader(f.Reader), Caption: f.Caption}
	_, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, p, sendOptions(opt))
	return err
}

func (c *Client) SendVideo(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) error {
	v := &tele.Video{File: tele.FromReader(f.Reader), FileName: f.Name, Caption: f.Caption}
	_, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, v, sendOptions(opt))
	return err
}

func (c *Client) SendAudio(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) error {
	a := &tele.Audio{File: tele.FromReader(f.Reader), FileName: f.Name, Caption: f.Caption}
	_, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, a, sendOptions(opt))
	return err
}

func (c *Client) SendDocument(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) error {
	d := &tele.Document{File: tele.FromReader(f.Reader), FileName: f.Name, Caption: f.Caption}
	_, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, d, sendOptions(opt))
	return err
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
}

func senderName(m *tele.Message) string {
	if m.Chat != nil && m.Chat.Type != tele.ChatPrivate && m.Chat.Title != "" {
		return m.Chat.Title
	}
	s := m.Sender
	if s.Username != "" {
		return s.Username
	}
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// UpdateMenuCommands updates Telegram's global /menu command list (setMyCommands).
func (c *Client) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	type cmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	payload := struct {
		Commands []cmd `json:"commands"`
	}{Commands: make([]cmd, 0, len(cmds))}

	for _, bc := range cmds {
		if bc.Command == "" {
			continue
		}
		d := bc.Description
		if d == "" {
			d = bc.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		payload.Commands = append(payload.Commands, cmd{Command: bc.Command, Description: d})
		if len(payload.Commands) >= 100 {
			break
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := "https://api.telegram.org/bot" + strings.TrimSpace(c.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.http
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
	}

	c.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)))
	return nil
}
