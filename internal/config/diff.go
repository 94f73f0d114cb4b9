package config

import (
	"reflect"
	"sort"
	"strings"

	logx "cibot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Token values never appear in the output,
// only whether the credential pair changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Bot.Name != newCfg.Bot.Name ||
		oldCfg.Bot.Token != newCfg.Bot.Token ||
		strings.TrimSpace(oldCfg.Bot.PollTimeout) != strings.TrimSpace(newCfg.Bot.PollTimeout) {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.String("bot.name", newCfg.Bot.Name),
			logx.Bool("bot.token_set", strings.TrimSpace(newCfg.Bot.Token) != ""),
			logx.Bool("bot.credentials_changed", oldCfg.Bot.Name != newCfg.Bot.Name || oldCfg.Bot.Token != newCfg.Bot.Token),
			logx.String("bot.poll_timeout", strings.TrimSpace(newCfg.Bot.PollTimeout)),
		)
	}

	if !strings.EqualFold(strings.TrimSpace(oldCfg.Approval), strings.TrimSpace(newCfg.Approval)) {
		changed = append(changed, "approval")
		attrs = append(attrs, logx.String("approval", strings.TrimSpace(newCfg.Approval)))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Nil storage means disabled.
	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.workers", newCfg.Broadcast.Workers),
			logx.Int("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
			logx.Bool("broadcast.log_to_console", newCfg.Broadcast.LogToConsole),
		)
	}

	oldD, newD := derefDigest(oldCfg.Digest), derefDigest(newCfg.Digest)
	if oldD != newD {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newD.Enabled),
			logx.String("digest.schedule", strings.TrimSpace(newD.Schedule)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Strings, newCfg.Strings) {
		changed = append(changed, "strings")
		attrs = append(attrs, logx.Int("strings.override_count", len(newCfg.Strings)))
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefDigest(d *DigestConfig) DigestConfig {
	if d == nil {
		return DigestConfig{}
	}
	return *d
}
