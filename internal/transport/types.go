package transport

import (
	"context"
	"io"
)

// Update is one inbound long-poll item. Only text messages are consumed.
type Update struct {
	Message *Message
}

type Message struct {
	ID       int
	ChatID   int64
	FromID   int64
	FromName string
	Text     string
	// Private reports a one-to-one chat (as opposed to a group/supergroup).
	Private bool
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// File is an outbound attachment. The caller owns Reader and is responsible
// for existence checks and closing; the transport only streams it.
type File struct {
	Reader  io.Reader
	Name    string
	Caption string
}

// Client is the bot-API surface the core depends on. One Client is bound to
// one (botName, token) pair for its whole lifetime; session replacement means
// a new Client.
type Client interface {
	// Start begins long polling and forwards updates to out until Stop or
	// context cancellation. It does not block.
	Start(ctx context.Context, out chan<- Update) error
	// Stop terminates the poll loop. Calling it twice is a no-op.
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, to ChatTarget, f File, opt *SendOptions) error
	SendVideo(ctx context.Context, to ChatTarget, f File, opt *SendOptions) error
	SendAudio(ctx context.Context, to ChatTarget, f File, opt *SendOptions) error
	SendDocument(ctx context.Context, to ChatTarget, f File, opt *SendOptions) error
}

// BotCommand is a command menu entry for platforms that support
// autocomplete menus.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface clients can implement to sync
// the platform command menu (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
