package dispatch

import (
	"context"

	"cibot/internal/botstrings"
	"cibot/internal/transport"
)

// Kind enumerates the closed set of chat commands. There is no open
// registration; the bot supports exactly these five.
type Kind int

const (
	CmdStart Kind = iota
	CmdHelp
	CmdSub
	CmdUnsub
	CmdStatus
)

// Command binds one identifier to its handler. Handlers route to the other
// components and send exactly one reply in the invoking chat.
type Command struct {
	Kind           Kind
	Name           string
	DescriptionKey string
	Handle         func(d *Dispatcher, ctx context.Context, msg *transport.Message, args []string) error
}

// commandTable is the data-driven command set, keyed lookup built in New.
func commandTable() []Command {
	return []Command{
		{
			Kind: CmdStart, Name: "start", DescriptionKey: "command.start",
			Handle: func(d *Dispatcher, ctx context.Context, msg *transport.Message, _ []string) error {
				return d.reply(ctx, msg.ChatID, botstrings.KeyStart)
			},
		},
		{
			Kind: CmdHelp, Name: "help", DescriptionKey: "command.help",
			Handle: func(d *Dispatcher, ctx context.Context, msg *transport.Message, _ []string) error {
				return d.reply(ctx, msg.ChatID, botstrings.KeyHelp)
			},
		},
		{
			Kind: CmdSub, Name: "sub", DescriptionKey: "command.sub",
			Handle: func(d *Dispatcher, ctx context.Context, msg *transport.Message, _ []string) error {
				if already := d.reg.Subscribe(msg.FromName, msg.ChatID); already {
					return d.reply(ctx, msg.ChatID, botstrings.KeySubAlready)
				}
				return d.reply(ctx, msg.ChatID, botstrings.KeySubSuccess)
			},
		},
		{
			Kind: CmdUnsub, Name: "unsub", DescriptionKey: "command.unsub",
			Handle: func(d *Dispatcher, ctx context.Context, msg *transport.Message, _ []string) error {
				if !d.reg.IsSubscribed(msg.ChatID) {
					return d.reply(ctx, msg.ChatID, botstrings.KeyUnsubAlready)
				}
				d.reg.Unsubscribe(msg.ChatID)
				return d.reply(ctx, msg.ChatID, botstrings.KeyUnsubSuccess)
			},
		},
		{
			Kind: CmdStatus, Name: "status", DescriptionKey: "command.status",
			Handle: func(d *Dispatcher, ctx context.Context, msg *transport.Message, _ []string) error {
				switch {
				case !d.reg.IsSubscribed(msg.ChatID):
					return d.reply(ctx, msg.ChatID, botstrings.KeyStatusUnsub)
				case d.reg.IsApproved(msg.ChatID):
					return d.reply(ctx, msg.ChatID, botstrings.KeyStatusApproved)
				default:
					return d.reply(ctx, msg.ChatID, botstrings.KeyStatusUnapproved)
				}
			},
		},
	}
}

// MenuCommands returns the command table in the shape clients use for
// platform menu registration.
func (d *Dispatcher) MenuCommands() []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(d.table))
	for _, c := range d.table {
		out = append(out, transport.BotCommand{
			Command:     c.Name,
			Description: d.composer.Compose(d.strings.Get(c.DescriptionKey), nil),
		})
	}
	return out
}
