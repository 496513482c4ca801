package sink

import (
	"fmt"
	"strings"

	"notifyrelay/internal/config"
)

// FromConfig builds the sink a relay delivers to. A nil section, or one
// with no backends, means the desktop sink alone.
func FromConfig(cfg *config.SinkConfig) (Sink, error) {
	backends := []string{"desktop"}
	if cfg != nil && len(cfg.Backends) > 0 {
		backends = cfg.Backends
	}

	seen := map[string]bool{}
	sinks := make([]Sink, 0, len(backends))
	for _, name := range backends {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "desktop":
			var opts []DesktopOption
			if cfg != nil && cfg.Desktop != nil {
				if cfg.Desktop.AppName != "" {
					opts = append(opts, WithAppName(cfg.Desktop.AppName))
				}
				if v := cfg.Desktop.PreferTerminalNotifier; v != nil {
					opts = append(opts, WithTerminalNotifier(*v))
				}
			}
			sinks = append(sinks, NewDesktop(opts...))
		case "dbus":
			appName := ""
			if cfg != nil && cfg.Desktop != nil {
				appName = cfg.Desktop.AppName
			}
			sinks = append(sinks, NewDBus(appName))
		case "telegram":
			if cfg == nil || cfg.Telegram == nil {
				return nil, fmt.Errorf("sinks.telegram: section missing")
			}
			tg, err := NewTelegram(TelegramConfig{
				Token:      cfg.Telegram.Token,
				ChatID:     cfg.Telegram.ChatID,
				ThreadID:   cfg.Telegram.ThreadID,
				RatePerSec: cfg.Telegram.RatePerSec,
				APIURL:     cfg.Telegram.APIURL,
			})
			if err != nil {
				return nil, fmt.Errorf("sinks.telegram: %w", err)
			}
			sinks = append(sinks, tg)
		default:
			return nil, fmt.Errorf("sinks.backends: unknown backend %q", name)
		}
	}

	switch len(sinks) {
	case 0:
		return nil, ErrNoSinks
	case 1:
		return sinks[0], nil
	default:
		return NewFanout(sinks...), nil
	}
}
