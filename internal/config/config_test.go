package config

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cibot.yaml", `
bot:
  name: bot1
  token: "123:abc"
  poll_timeout: 10s
approval: manual
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: sqlite
  path: ./cibot.db
broadcast:
  workers: 4
  rate_per_sec: 2
  log_to_console: true
strings:
  message.help: "custom help"
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.Name != "bot1" || cfg.Bot.Token != "123:abc" {
		t.Fatalf("bot section mismatch: %+v", cfg.Bot)
	}
	if cfg.Approval != "manual" {
		t.Fatalf("approval = %q", cfg.Approval)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage mismatch: %+v", cfg.Storage)
	}
	if cfg.Broadcast.Workers != 4 || !cfg.Broadcast.LogToConsole {
		t.Fatalf("broadcast mismatch: %+v", cfg.Broadcast)
	}
	if cfg.Strings["message.help"] != "custom help" {
		t.Fatalf("strings override missing: %v", cfg.Strings)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get does not return the committed snapshot")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cibot.json", `{"bot":{"name":"bot1","token":"t"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"broadcast":{}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.Name != "bot1" {
		t.Fatalf("bot.name = %q", cfg.Bot.Name)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cibot.yaml", "bot:\n  name: bot1\n  token: t\n  typo_field: 1\n")
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cibot.json", `{"bot":{"name":"a","token":"t"}}{"bot":{}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty is valid", cfg: Config{}},
		{name: "bad approval", cfg: Config{Approval: "whitelist"}, wantErr: true},
		{name: "bad poll timeout", cfg: Config{Bot: BotConfig{PollTimeout: "fast"}}, wantErr: true},
		{name: "storage without path", cfg: Config{Storage: &StorageConfig{Driver: "file"}}, wantErr: true},
		{name: "unknown driver", cfg: Config{Storage: &StorageConfig{Driver: "redis", Path: "x"}}, wantErr: true},
		{name: "disabled storage", cfg: Config{Storage: &StorageConfig{Driver: "none"}}},
		{name: "negative workers", cfg: Config{Broadcast: BroadcastConfig{Workers: -1}}, wantErr: true},
		{name: "digest without schedule", cfg: Config{Digest: &DigestConfig{Enabled: true}}, wantErr: true},
		{name: "digest disabled without schedule", cfg: Config{Digest: &DigestConfig{}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSealAndOpenToken(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	t.Setenv(TokenKeyEnv, base64.StdEncoding.EncodeToString(key))

	sealed, err := Seal("123:secret")
	if err != nil {
		t.Fatal(err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("sealed token missing prefix: %q", sealed)
	}
	if strings.Contains(sealed, "secret") {
		t.Fatal("plaintext visible in sealed token")
	}

	plain, err := OpenToken(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "123:secret" {
		t.Fatalf("round trip = %q", plain)
	}
}

func TestOpenTokenPlaintextPassthrough(t *testing.T) {
	t.Parallel()
	got, err := OpenToken("123:plain")
	if err != nil {
		t.Fatal(err)
	}
	if got != "123:plain" {
		t.Fatalf("passthrough = %q", got)
	}
}

func TestOpenTokenWrongKey(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	t.Setenv(TokenKeyEnv, base64.StdEncoding.EncodeToString(key))
	sealed, err := Seal("123:secret")
	if err != nil {
		t.Fatal(err)
	}

	other := make([]byte, 32)
	if _, err := rand.Read(other); err != nil {
		t.Fatal(err)
	}
	t.Setenv(TokenKeyEnv, base64.StdEncoding.EncodeToString(other))
	if _, err := OpenToken(sealed); err == nil {
		t.Fatal("unseal with wrong key succeeded")
	}
}

func TestOpenTokenMissingKey(t *testing.T) {
	t.Setenv(TokenKeyEnv, "")
	if _, err := OpenToken("enc:AAAA"); err == nil {
		t.Fatal("sealed token opened without a key")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Bot:       BotConfig{Name: "bot1", Token: "a"},
		Logging:   LoggingConfig{Level: "info"},
		Broadcast: BroadcastConfig{Workers: 2},
	}
	newCfg := &Config{
		Bot:       BotConfig{Name: "bot1", Token: "b"},
		Logging:   LoggingConfig{Level: "debug"},
		Broadcast: BroadcastConfig{Workers: 2},
		Digest:    &DigestConfig{Enabled: true, Schedule: "0 9 * * *"},
	}

	changed, attrs := SummarizeChange(oldCfg, newCfg)
	want := []string{"bot", "digest", "logging"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs for changed sections")
	}
}

func TestSummarizeChangeNoChange(t *testing.T) {
	t.Parallel()
	cfg := &Config{Bot: BotConfig{Name: "bot1", Token: "a"}}
	changed, _ := SummarizeChange(cfg, cfg)
	if len(changed) != 0 {
		t.Fatalf("changed = %v, want empty", changed)
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{name: "empty falls back", raw: "", def: 10 * time.Second, want: 10 * time.Second},
		{name: "zero falls back", raw: "0s", def: 5 * time.Second, want: 5 * time.Second},
		{name: "explicit value", raw: "250ms", def: time.Second, want: 250 * time.Millisecond},
		{name: "whitespace trimmed", raw: " 2m ", want: 2 * time.Minute},
		{name: "garbage rejected", raw: "soon", wantErr: true},
		{name: "negative rejected", raw: "-5s", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := DurationOr("bot.poll_timeout", tt.raw, tt.def)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DurationOr(%q) accepted, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("DurationOr(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
