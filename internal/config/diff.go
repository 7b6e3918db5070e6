package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindd/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (the Telegram token) are reduced to
// a "set/unset" boolean and never logged.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar) {
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.String("calendar.refresh", strings.TrimSpace(newCfg.Calendar.Refresh)),
			logx.Bool("calendar.cache_enabled", strings.TrimSpace(newCfg.Calendar.CacheDir) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.String("engine.scan_interval", strings.TrimSpace(newCfg.Engine.ScanInterval)),
			logx.String("engine.display_timeout", strings.TrimSpace(newCfg.Engine.DisplayTimeout)),
		)
	}

	// Storage: nil means disabled.
	var oDriver, nDriver string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet))
	}

	// Telegram (never log the token itself).
	oTG, nTG := oldCfg.Telegram, newCfg.Telegram
	if oTG == nil {
		oTG = &TelegramConfig{}
	}
	if nTG == nil {
		nTG = &TelegramConfig{}
	}
	if oTG.Enabled != nTG.Enabled ||
		oTG.ChatID != nTG.ChatID ||
		oTG.ThreadID != nTG.ThreadID ||
		strings.TrimSpace(oTG.PollTimeout) != strings.TrimSpace(nTG.PollTimeout) ||
		(strings.TrimSpace(oTG.Token) != "") != (strings.TrimSpace(nTG.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nTG.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(nTG.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
