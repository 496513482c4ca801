package config

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	logx "notifyrelay/pkg/logx"
)

var (
	validatorOnce   sync.Once
	structValidator *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

func validateStruct(v any) error {
	return getValidator().Struct(v)
}

// ValidateMaster checks field constraints plus the cross-field rules the
// struct tags cannot express.
func ValidateMaster(cfg *MasterConfig) error {
	if cfg == nil {
		return fmt.Errorf("master config is nil")
	}
	if err := validateStruct(cfg); err != nil {
		return fmt.Errorf("master config: %w", err)
	}
	if cfg.Logging != nil && strings.TrimSpace(cfg.Logging.Level) != "" {
		if _, ok := logx.ParseLevel(cfg.Logging.Level); !ok {
			return fmt.Errorf("master config: logging.level: unknown level %q", cfg.Logging.Level)
		}
	}
	if s := cfg.Sinks; s != nil {
		if slices.Contains(s.Backends, "telegram") && s.Telegram == nil {
			return fmt.Errorf("master config: sinks.telegram is required when the telegram backend is enabled")
		}
		if _, err := DurationOrDefault("sinks.delivery_timeout", s.DeliveryTimeout, 0); err != nil {
			return fmt.Errorf("master config: %w", err)
		}
	}
	if a := cfg.Audit; a != nil {
		switch strings.ToLower(strings.TrimSpace(a.Driver)) {
		case "", "file", "sqlite":
		default:
			return fmt.Errorf("master config: audit.driver: unsupported driver %q", a.Driver)
		}
		if _, err := DurationOrDefault("audit.busy_timeout", a.BusyTimeout, 0); err != nil {
			return fmt.Errorf("master config: %w", err)
		}
	}
	return nil
}
