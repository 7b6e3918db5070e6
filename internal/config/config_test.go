package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"calendar": {"url": "https://example.com/team.ics", "refresh": "@every 10m"},
		"engine": {"scan_interval": "30s"},
		"storage": {"driver": "file", "path": "./reminders"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Calendar.Refresh != "@every 10m" {
		t.Fatalf("refresh = %q", cfg.Calendar.Refresh)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseYAMLCoercion(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: true
    path: /var/log/remindd.log
calendar:
  url: https://example.com/team.ics
telegram:
  enabled: true
  token: "123:abc"
  chat_id: -100200300
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "/var/log/remindd.log" {
		t.Fatalf("file logging = %+v", cfg.Logging.File)
	}
	if cfg.Telegram == nil || cfg.Telegram.ChatID != -100200300 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"calendar": {"url": "https://example.com/a.ics"},
		"calender": {"url": "typo"}
	}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown top-level key accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{Calendar: CalendarConfig{URL: "https://example.com/a.ics"}}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"minimal valid", func(c *Config) {}, false},
		{"missing url", func(c *Config) { c.Calendar.URL = "" }, true},
		{"bad scheme", func(c *Config) { c.Calendar.URL = "ftp://example.com/a.ics" }, true},
		{"file url", func(c *Config) { c.Calendar.URL = "file:///tmp/a.ics" }, false},
		{"bad duration", func(c *Config) { c.Engine.ScanInterval = "soon" }, true},
		{"negative duration", func(c *Config) { c.Engine.DisplayTimeout = "-5s" }, true},
		{"storage without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "file"} }, true},
		{"storage none", func(c *Config) { c.Storage = &StorageConfig{Driver: "none"} }, false},
		{"unknown storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis", Path: "x"} }, true},
		{"telegram enabled without token", func(c *Config) {
			c.Telegram = &TelegramConfig{Enabled: true, ChatID: 1}
		}, true},
		{"telegram enabled without chat", func(c *Config) {
			c.Telegram = &TelegramConfig{Enabled: true, Token: "t"}
		}, true},
		{"telegram disabled needs nothing", func(c *Config) {
			c.Telegram = &TelegramConfig{Enabled: false}
		}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "  "); err != nil || d != 0 {
		t.Fatalf("blank: d=%v err=%v", d, err)
	}
	if d, err := ParseDurationField("x", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("90s: d=%v err=%v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative accepted")
	}
	if _, err := ParseDurationField("x", "5 parsecs"); err == nil {
		t.Fatal("garbage accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: d=%v err=%v", d, err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Logging:  LoggingConfig{Level: "info", Console: true},
		Calendar: CalendarConfig{URL: "https://example.com/a.ics"},
	}
	newCfg := &Config{
		Logging:  LoggingConfig{Level: "debug", Console: true},
		Calendar: CalendarConfig{URL: "https://example.com/a.ics"},
		Telegram: &TelegramConfig{Enabled: true, Token: "secret", ChatID: 1},
	}
	changed, attrs := SummarizeChange(oldCfg, newCfg)
	if len(changed) != 2 || changed[0] != "logging" || changed[1] != "telegram" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs for changed sections")
	}

	if got, _ := SummarizeChange(newCfg, newCfg); len(got) != 0 {
		t.Fatalf("identical configs reported changes: %v", got)
	}
}
