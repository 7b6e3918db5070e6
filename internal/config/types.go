package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Calendar CalendarConfig `json:"calendar"`

	// Engine tunes scan and display timing. Omitted fields fall back to
	// engine defaults.
	Engine EngineConfig `json:"engine,omitempty"`

	// Storage is the reminder dedup store. Nil means disabled: reminders
	// still fire, but dismissals are forgotten on restart.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Telegram switches delivery from the log presenter to a Telegram
	// chat. Nil means log-only delivery.
	Telegram *TelegramConfig `json:"telegram,omitempty"`
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

// CalendarConfig points at the ICS feed and controls refresh cadence.
//
// All durations are Go duration strings (e.g. "10s", "5m").
type CalendarConfig struct {
	// URL of the ICS feed. http(s) or a file:// path.
	URL string `json:"url"`

	// Refresh is a cron spec for feed refreshes (robfig/cron syntax,
	// descriptors like "@every 5m" included). Default: "@every 5m".
	Refresh string `json:"refresh,omitempty"`

	// CacheDir holds the conditional-request cache (ETag/Last-Modified
	// plus feed body). Empty disables caching.
	CacheDir string `json:"cache_dir,omitempty"`

	// RequestTimeout bounds a single feed fetch. Default: "30s".
	RequestTimeout string `json:"request_timeout,omitempty"`

	// Window limits how far ahead events are loaded. Default: "720h"
	// (30 days; the longest reminder tier).
	Window string `json:"window,omitempty"`
}

// EngineConfig mirrors engine.Config with string durations.
type EngineConfig struct {
	// ScanInterval is the due-pass period. Default: "1m".
	ScanInterval string `json:"scan_interval,omitempty"`
	// DisplayTimeout auto-dismisses the active reminder. Default: "10s".
	DisplayTimeout string `json:"display_timeout,omitempty"`
	// ImportanceMarker selects the long reminder schedule when present in
	// an event description. Default: "!important".
	ImportanceMarker string `json:"importance_marker,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./remindd_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	// ThreadID targets a forum topic; 0 means the main chat.
	ThreadID int `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string for the bot long-poll. Default: "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// Validate rejects configs that cannot possibly run. Duration strings are
// checked here so a bad reload is refused before it reaches any service.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Calendar.URL) == "" {
		return errors.New("calendar.url is required")
	}
	u, err := url.Parse(strings.TrimSpace(c.Calendar.URL))
	if err != nil {
		return fmt.Errorf("calendar.url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "file", "":
	default:
		return fmt.Errorf("calendar.url: unsupported scheme %q", u.Scheme)
	}

	for _, f := range []struct{ path, raw string }{
		{"calendar.request_timeout", c.Calendar.RequestTimeout},
		{"calendar.window", c.Calendar.Window},
		{"engine.scan_interval", c.Engine.ScanInterval},
		{"engine.display_timeout", c.Engine.DisplayTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	if c.Storage != nil {
		driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		switch driver {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if (driver == "file" || driver == "sqlite" || driver == "sqlite3") &&
			strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for driver " + driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	if c.Telegram != nil && c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return errors.New("telegram.token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return errors.New("telegram.chat_id is required when telegram is enabled")
		}
		if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
			return err
		}
	}
	return nil
}
