// Package dispatch parses inbound updates and routes recognized commands.
//
// Consumption is strictly sequential: one update is fully handled (command
// executed, single reply sent) before the next is read from the poll
// source. This trades throughput for the guarantee that no two command
// handlers run concurrently on the same bot.
package dispatch

import (
	"context"
	"runtime/debug"
	"strings"

	"cibot/internal/botstrings"
	"cibot/internal/compose"
	"cibot/internal/registry"
	"cibot/internal/transport"
	logx "cibot/pkg/logx"
)

type Dispatcher struct {
	botName  string
	client   transport.Client
	reg      *registry.Registry
	composer *compose.Composer
	strings  botstrings.Strings
	log      logx.Logger

	table  []Command
	byName map[string]Command
}

func New(botName string, client transport.Client, reg *registry.Registry, composer *compose.Composer, strs botstrings.Strings, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		botName:  botName,
		client:   client,
		reg:      reg,
		composer: composer,
		strings:  strs,
		log:      log,
	}
	d.table = commandTable()
	d.byName = make(map[string]Command, len(d.table))
	for _, c := range d.table {
		d.byName[c.Name] = c
	}
	return d
}

// Run consumes updates until the channel closes or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan transport.Update) {
	d.log.Info("dispatcher started", logx.String("bot", d.botName))
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped", logx.Err(ctx.Err()))
			return
		case up, ok := <-updates:
			if !ok {
				d.log.Info("dispatcher stopped (updates channel closed)")
				return
			}
			d.handle(ctx, up)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while handling update", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	if up.Message == nil || up.Message.Text == "" {
		return
	}
	msg := up.Message

	if strings.HasPrefix(msg.Text, "/") {
		d.handleCommand(ctx, msg)
		return
	}
	d.handleNonCommand(ctx, msg)
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg *transport.Message) {
	parts := strings.Fields(msg.Text)
	if len(parts) == 0 {
		return
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	// Telegram appends @botname to commands in groups.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	cmd, ok := d.byName[word]
	if !ok {
		_ = d.reply(ctx, msg.ChatID, botstrings.KeyNonCommand)
		return
	}

	d.log.Debug("command received",
		logx.String("cmd", cmd.Name),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
	)
	// Handlers only fail on the reply send, and reply logs that itself.
	_ = cmd.Handle(d, ctx, msg, parts[1:])
}

// handleNonCommand answers free text only where it is clearly addressed to
// the bot: always in private chats, in groups only behind an explicit
// @botname mention. Malformed mentions are silently ignored; groups are
// noisy and the bot must not respond to unrelated chatter.
func (d *Dispatcher) handleNonCommand(ctx context.Context, msg *transport.Message) {
	if msg.Private {
		_ = d.reply(ctx, msg.ChatID, botstrings.KeyNonCommand)
		return
	}
	if !d.isMention(msg.Text) {
		return
	}
	_ = d.reply(ctx, msg.ChatID, botstrings.KeyNonCommand)
}

// isMention reports whether text is "@<botName> <more...>" with an exact,
// case-sensitive name match and at least one non-empty token after the
// mention. A bare "@botname" or one trailed only by whitespace is not
// addressed to the bot.
func (d *Dispatcher) isMention(text string) bool {
	mention, rest, found := strings.Cut(text, " ")
	if !found || len(mention) < 2 || mention[0] != '@' {
		return false
	}
	if mention[1:] != d.botName {
		return false
	}
	return strings.TrimSpace(rest) != ""
}

// reply sends exactly one composed template to the chat.
func (d *Dispatcher) reply(ctx context.Context, chatID int64, key string) error {
	text := d.composer.Compose(d.strings.Get(key), nil)
	err := d.client.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, &transport.SendOptions{ParseMode: "Markdown"})
	if err != nil {
		d.log.Warn("reply send failed", logx.Int64("chat_id", chatID), logx.String("key", key), logx.Err(err))
	}
	return err
}
