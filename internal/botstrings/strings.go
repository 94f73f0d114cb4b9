// Package botstrings holds the chat-facing template table. It is built once
// at process start (defaults merged with config overrides) and read-only
// afterwards, so lookups need no locking.
package botstrings

// Strings maps a template key to its raw text. Values may contain emoji
// placeholders and macros; composition happens at send time.
type Strings map[string]string

const (
	KeyHelp              = "message.help"
	KeyStart             = "message.start"
	KeyNonCommand        = "message.noncommand"
	KeySubSuccess        = "message.sub.success"
	KeySubAlready        = "message.sub.alreadysub"
	KeyUnsubSuccess      = "message.unsub.success"
	KeyUnsubAlready      = "message.unsub.alreadyunsub"
	KeyStatusApproved    = "message.status.approved"
	KeyStatusUnapproved  = "message.status.unapproved"
	KeyStatusUnsub       = "message.status.unsubscribed"
	KeyDigest            = "message.digest"
	KeyDescriptionPrefix = "command."
)

func defaults() Strings {
	return Strings{
		"command.start":  ":rocket: Start using the bot",
		"command.help":   ":robot: Get help message",
		"command.sub":    ":bell: Subscribe to notifications",
		"command.unsub":  ":bell: Unsubscribe from notifications",
		"command.status": ":eyes: Check subscription status",

		KeyStart: ":robot: Welcome! Use /help to see available commands or /sub to subscribe to build notifications.",
		KeyHelp: ":ci: *CI Bot Help*\n\n:sparkles: Available commands:\n" +
			"• /start - :rocket: Start using the bot\n" +
			"• /help - :gear: Show this help message\n" +
			"• /sub - :bell: Subscribe to notifications\n" +
			"• /unsub - :bell: Unsubscribe from notifications\n" +
			"• /status - :eyes: Check subscription status\n\n" +
			":tada: Emoji placeholders like `:success:`, `:failure:`, `:building:` are supported in templates.",
		KeyNonCommand: ":robot: I don't understand that. Use /help for available commands.",

		KeySubSuccess:   ":bell: You're now subscribed to build notifications! :tada:",
		KeySubAlready:   ":bell: You're already subscribed to notifications!",
		KeyUnsubSuccess: ":bell: You've been unsubscribed from notifications.",
		KeyUnsubAlready: ":bell: You're not currently subscribed to notifications.",

		KeyStatusApproved:   ":success: You're subscribed and approved for build notifications.",
		KeyStatusUnapproved: ":clock: You're subscribed; approval is still pending.",
		KeyStatusUnsub:      ":eyes: You're not subscribed. Use /sub to subscribe.",

		KeyDigest: ":ci: Daily status\n:bell: Approved subscribers: ${SUBSCRIBER_COUNT}\n:robot: Bot: ${BOT_NAME}",
	}
}

// Load merges config overrides onto the default table. Unknown override
// keys are accepted so operators can add custom templates.
func Load(overrides map[string]string) Strings {
	s := defaults()
	for k, v := range overrides {
		if v != "" {
			s[k] = v
		}
	}
	return s
}

// Get returns the template for key, or the key itself when absent so a
// misconfigured key stays visible in chat instead of sending nothing.
func (s Strings) Get(key string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return key
}
