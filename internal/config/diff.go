package config

import (
	"reflect"
	"sort"
	"strings"

	logx "notifyrelay/pkg/logx"
)

// Sections a relay can apply without restarting.
var hotSections = map[string]bool{"notification": true, "logging": true, "sinks": true, "pprof": true}

// SummarizeConfigChange returns the changed top-level sections and safe
// attrs for logging them. Secrets (the telegram token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *MasterConfig) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &MasterConfig{}
	}
	if newCfg == nil {
		newCfg = &MasterConfig{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Host) != strings.TrimSpace(newCfg.Host) ||
		oldCfg.Port != newCfg.Port ||
		strings.TrimSpace(oldCfg.URL) != strings.TrimSpace(newCfg.URL) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.host", newCfg.Host),
			logx.Int("server.port", newCfg.Port),
		)
	}

	oN, nN := oldCfg.NotificationOrEmpty(), newCfg.NotificationOrEmpty()
	if !reflect.DeepEqual(oN, nN) {
		changed = append(changed, "notification")
		attrs = append(attrs,
			logx.Bool("notification.subtitle_set", nN.Subtitle != ""),
			logx.Bool("notification.icon_set", nN.Icon != ""),
			logx.Bool("notification.timeout_set", nN.Timeout != nil),
			logx.Bool("notification.wait_set", nN.Wait != nil),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		lc := newCfg.LogxConfig("")
		attrs = append(attrs,
			logx.String("logging.level", lc.Level),
			logx.Bool("logging.console", lc.Console),
			logx.Bool("logging.file_enabled", lc.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sinks, newCfg.Sinks) {
		changed = append(changed, "sinks")
		var backends []string
		tokenSet := false
		if newCfg.Sinks != nil {
			backends = newCfg.Sinks.Backends
			tokenSet = newCfg.Sinks.Telegram != nil && strings.TrimSpace(newCfg.Sinks.Telegram.Token) != ""
		}
		attrs = append(attrs,
			logx.String("sinks.backends", strings.Join(backends, ",")),
			logx.Bool("sinks.telegram_token_set", tokenSet),
		)
	}

	if !reflect.DeepEqual(oldCfg.Audit, newCfg.Audit) {
		changed = append(changed, "audit")
		driver := ""
		if newCfg.Audit != nil {
			driver = strings.TrimSpace(newCfg.Audit.Driver)
		}
		attrs = append(attrs, logx.String("audit.driver", driver))
	}

	if !reflect.DeepEqual(oldCfg.Pprof, newCfg.Pprof) {
		changed = append(changed, "pprof")
		enabled, addr := false, ""
		if newCfg.Pprof != nil {
			enabled, addr = newCfg.Pprof.Enabled, newCfg.Pprof.Address
		}
		attrs = append(attrs, logx.Bool("pprof.enabled", enabled), logx.String("pprof.address", addr))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRestart reports the changed sections that only take effect after
// the relay restarts.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}
