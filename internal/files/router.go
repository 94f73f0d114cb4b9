// Package files routes outbound attachments to the bot-API call matching
// their content type.
package files

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"cibot/internal/compose"
	"cibot/internal/emoji"
	"cibot/internal/transport"
	logx "cibot/pkg/logx"
)

// Category selects the outbound send operation for an attachment.
type Category int

const (
	Document Category = iota
	Photo
	Video
	Audio
)

func (c Category) String() string {
	switch c {
	case Photo:
		return "photo"
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "document"
	}
}

// Classify picks the attachment category by file extension
// (case-insensitive). Unknown or missing extensions fall back to Document.
func Classify(fileName string) Category {
	switch ext(fileName) {
	case "jpg", "jpeg", "png", "gif", "webp":
		return Photo
	case "mp4", "avi", "mov", "mkv":
		return Video
	case "mp3", "wav", "flac", "ogg", "m4a":
		return Audio
	default:
		return Document
	}
}

func ext(fileName string) string {
	e := filepath.Ext(fileName)
	if e == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

type Router struct {
	composer *compose.Composer
	log      logx.Logger
}

func NewRouter(composer *compose.Composer, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{composer: composer, log: log}
}

// Send classifies the file and delivers it through the matching client
// call. A non-empty caption is composed first and prefixed with the glyph
// for the file's content type (archives and logs get their own glyph even
// though they ship as documents).
func (r *Router) Send(ctx context.Context, client transport.Client, to transport.ChatTarget, content io.Reader, fileName, caption string, env compose.Context) error {
	if content == nil {
		return errors.New("file content unavailable")
	}
	cat := Classify(fileName)

	if caption != "" {
		caption = emoji.ForFile(fileName) + " " + r.composer.Compose(caption, env)
	}

	f := transport.File{Reader: content, Name: fileName, Caption: caption}
	opt := &transport.SendOptions{ParseMode: "Markdown"}

	var err error
	switch cat {
	case Photo:
		err = client.SendPhoto(ctx, to, f, opt)
	case Video:
		err = client.SendVideo(ctx, to, f, opt)
	case Audio:
		err = client.SendAudio(ctx, to, f, opt)
	default:
		err = client.SendDocument(ctx, to, f, opt)
	}
	if err != nil {
		r.log.Warn("file send failed",
			logx.Int64("chat_id", to.ChatID),
			logx.String("file", fileName),
			logx.String("kind", cat.String()),
			logx.Err(err),
		)
	}
	return err
}
