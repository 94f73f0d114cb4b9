// Package emoji holds the fixed placeholder catalog used in outbound
// messages. Placeholders are :name: tokens replaced by Unicode glyphs at
// composition time; the table is immutable.
package emoji

import (
	"path/filepath"
	"strings"
)

// Build status glyphs.
const (
	Success  = "✅"
	Failure  = "❌"
	Unstable = "⚠️"
	Aborted  = "🚫"
	NotBuilt = "⚪"
)

// Build process glyphs.
const (
	Building = "🔄"
	Finished = "🏁"
	Started  = "▶️"
	Stopped  = "⏹️"
)

// File type glyphs.
const (
	Document = "📄"
	Image    = "🖼️"
	Video    = "🎥"
	Audio    = "🎵"
	Archive  = "📦"
	Log      = "📝"
)

// Development and notification glyphs.
const (
	Rocket     = "🚀"
	Gear       = "⚙️"
	Hammer     = "🔨"
	Wrench     = "🔧"
	Chart      = "📊"
	Clock      = "🕐"
	Calendar   = "📅"
	Branch     = "🌿"
	Commit     = "💾"
	Merge      = "🔀"
	Bell       = "🔔"
	Fire       = "🔥"
	Sparkles   = "✨"
	Tada       = "🎉"
	ThumbsUp   = "👍"
	ThumbsDown = "👎"
	Eyes       = "👀"
	Robot      = "🤖"
	Builder    = "👷"
	Pipeline   = "🔗"
	TestTube   = "🧪"
	Bug        = "🐛"
)

var placeholders = map[string]string{
	":success:":   Success,
	":failure:":   Failure,
	":unstable:":  Unstable,
	":aborted:":   Aborted,
	":not_built:": NotBuilt,

	":building:": Building,
	":finished:": Finished,
	":started:":  Started,
	":stopped:":  Stopped,

	":document:": Document,
	":image:":    Image,
	":video:":    Video,
	":audio:":    Audio,
	":archive:":  Archive,
	":log:":      Log,

	":rocket:":   Rocket,
	":gear:":     Gear,
	":hammer:":   Hammer,
	":wrench:":   Wrench,
	":chart:":    Chart,
	":clock:":    Clock,
	":calendar:": Calendar,
	":branch:":   Branch,
	":commit:":   Commit,
	":merge:":    Merge,

	":bell:":        Bell,
	":fire:":        Fire,
	":sparkles:":    Sparkles,
	":tada:":        Tada,
	":thumbs_up:":   ThumbsUp,
	":thumbs_down:": ThumbsDown,
	":eyes:":        Eyes,
	":robot:":       Robot,

	":jenkins:":  Builder,
	":ci:":       Builder,
	":pipeline:": Pipeline,
	":test:":     TestTube,
	":bug:":      Bug,
}

// Replace substitutes every known :name: placeholder with its glyph.
// Unknown placeholders pass through verbatim.
func Replace(text string) string {
	if text == "" || !strings.ContainsRune(text, ':') {
		return text
	}
	return replacer.Replace(text)
}

// Table is immutable, so the replacer can be built once at init.
var replacer = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(placeholders))
	for k, v := range placeholders {
		pairs = append(pairs, k, v)
	}
	return strings.NewReplacer(pairs...)
}()

// ForStatus maps a build result string to its status glyph.
func ForStatus(result string) string {
	switch strings.ToUpper(strings.TrimSpace(result)) {
	case "SUCCESS":
		return Success
	case "FAILURE":
		return Failure
	case "UNSTABLE":
		return Unstable
	case "ABORTED":
		return Aborted
	default:
		return NotBuilt
	}
}

// ForFile maps a file name to the glyph representing its content type.
func ForFile(fileName string) string {
	switch ext(fileName) {
	case "jpg", "jpeg", "png", "gif", "webp", "svg":
		return Image
	case "mp4", "avi", "mov", "mkv", "webm":
		return Video
	case "mp3", "wav", "flac", "ogg", "m4a":
		return Audio
	case "zip", "tar", "gz", "rar", "7z", "jar", "war":
		return Archive
	case "log", "txt":
		return Log
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
