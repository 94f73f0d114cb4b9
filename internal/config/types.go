package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Bot      BotConfig     `json:"bot"`
	Approval string        `json:"approval,omitempty"` // "all" (default) or "manual"
	Logging  LoggingConfig `json:"logging"`

	// Storage controls subscriber persistence. Nil means persistence is
	// disabled and subscriptions live only in memory.
	Storage *StorageConfig `json:"storage,omitempty"`

	Broadcast BroadcastConfig `json:"broadcast"`

	// Digest schedules a periodic status message to approved subscribers.
	// Nil or disabled means no digest.
	Digest *DigestConfig `json:"digest,omitempty"`

	// Strings overrides entries in the default chat template table. Keys use
	// the message.* / command.* namespace.
	Strings map[string]string `json:"strings,omitempty"`
}

type BotConfig struct {
	Name string `json:"name"`
	// Token may be plaintext or sealed ("enc:" prefix, see Seal). It is
	// compared and passed around in its stored form and never logged.
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the subscriber repository.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./cibot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// LogToConsole echoes every outbound notification to stdout as well.
	LogToConsole bool `json:"log_to_console,omitempty"`
}

type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron expression ("0 9 * * *" = daily at 09:00).
	Schedule string `json:"schedule"`
	// Template overrides the default digest message template.
	Template string `json:"template,omitempty"`
}

// Validate checks cross-field constraints that the strict decoder cannot.
// It does not require bot credentials: a config without them is valid and
// the bot simply stays offline until they arrive.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Approval)) {
	case "", "all", "manual":
	default:
		return fmt.Errorf("approval: unknown policy %q (want \"all\" or \"manual\")", c.Approval)
	}

	if _, err := DurationOr("bot.poll_timeout", c.Bot.PollTimeout, 0); err != nil {
		return err
	}

	if c.Storage != nil {
		switch strings.TrimSpace(c.Storage.Driver) {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return fmt.Errorf("storage.path: required for driver %q", c.Storage.Driver)
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := DurationOr("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
			return err
		}
	}

	if c.Broadcast.Workers < 0 {
		return fmt.Errorf("broadcast.workers: must be >= 0")
	}
	if c.Broadcast.RatePerSec < 0 {
		return fmt.Errorf("broadcast.rate_per_sec: must be >= 0")
	}

	if c.Digest != nil && c.Digest.Enabled && strings.TrimSpace(c.Digest.Schedule) == "" {
		return fmt.Errorf("digest.schedule: required when digest is enabled")
	}
	return nil
}

// DurationOr parses a duration-valued config field. The two duration knobs
// (bot.poll_timeout, storage.busy_timeout) are strings so the YAML and JSON
// paths share one representation; empty or zero falls back to def, and
// negative values are rejected rather than silently disabling a timeout.
func DurationOr(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
