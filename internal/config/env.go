package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	logx "notifyrelay/pkg/logx"
)

const (
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 8079
	DefaultLogLevel = "info"
)

// Env is the environment tier, read once at process start and never
// refreshed.
type Env struct {
	Host     string
	Port     int
	LogLevel string

	// HostSet/PortSet report whether the value came from the environment
	// rather than the compiled default.
	HostSet bool
	PortSet bool

	Notification NotifierConfig
}

const (
	keyHost     = "host"
	keyPort     = "port"
	keyLogLevel = "log_level"

	keySoundQuestion = "notification_sound_question"
	keySoundError    = "notification_sound_error"
	keySoundStop     = "notification_sound_stop"
	keySoundDefault  = "notification_sound_default"
	keySubtitle      = "notification_subtitle"
	keyIcon          = "notification_icon"
	keyContentImage  = "notification_content_image"
	keyTimeout       = "notification_timeout"
	keyWait          = "notification_wait"
)

// LoadEnv builds the environment tier. dotenvPath names an optional .env
// file whose values sit underneath real environment variables; an empty
// path or a missing file is fine.
//
// Invalid PORT and LOG_LEVEL values fall back to their defaults with a
// warning, as do unparsable NOTIFICATION_TIMEOUT/NOTIFICATION_WAIT values.
func LoadEnv(dotenvPath string, log logx.Logger) (Env, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if dotenvPath != "" {
		v.SetConfigFile(dotenvPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) && !isViperNotFound(err) {
				return Env{}, fmt.Errorf("read %s: %w", dotenvPath, err)
			}
		}
	}

	env := Env{
		Host:     DefaultHost,
		Port:     DefaultPort,
		LogLevel: DefaultLogLevel,
	}

	if h := strings.TrimSpace(v.GetString(keyHost)); h != "" {
		env.Host = h
		env.HostSet = true
	}

	if raw := strings.TrimSpace(v.GetString(keyPort)); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 || p > 65535 {
			log.Warn("invalid PORT, using default", logx.String("value", raw), logx.Int("default", DefaultPort))
		} else {
			env.Port = p
			env.PortSet = true
		}
	}

	if raw := strings.TrimSpace(v.GetString(keyLogLevel)); raw != "" {
		if _, ok := logx.ParseLevel(raw); ok {
			env.LogLevel = strings.ToLower(raw)
		} else {
			log.Warn("invalid LOG_LEVEL, using default", logx.String("value", raw), logx.String("default", DefaultLogLevel))
		}
	}

	n := NotifierConfig{
		SoundQuestion: strings.TrimSpace(v.GetString(keySoundQuestion)),
		SoundError:    strings.TrimSpace(v.GetString(keySoundError)),
		SoundStop:     strings.TrimSpace(v.GetString(keySoundStop)),
		SoundDefault:  strings.TrimSpace(v.GetString(keySoundDefault)),
		Subtitle:      v.GetString(keySubtitle),
		Icon:          strings.TrimSpace(v.GetString(keyIcon)),
		ContentImage:  strings.TrimSpace(v.GetString(keyContentImage)),
	}
	if raw := strings.TrimSpace(v.GetString(keyTimeout)); raw != "" {
		t, err := strconv.Atoi(raw)
		if err != nil || t < 0 {
			log.Warn("invalid NOTIFICATION_TIMEOUT, ignoring", logx.String("value", raw))
		} else {
			n.Timeout = &t
		}
	}
	if raw := strings.TrimSpace(v.GetString(keyWait)); raw != "" {
		w, err := strconv.ParseBool(raw)
		if err != nil {
			log.Warn("invalid NOTIFICATION_WAIT, ignoring", logx.String("value", raw))
		} else {
			n.Wait = &w
		}
	}
	env.Notification = n
	return env, nil
}

func isViperNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

// LogxConfig maps the logging section onto logx.Config. level is used when
// the section does not set one (typically Env.LogLevel).
func (c *MasterConfig) LogxConfig(level string) logx.Config {
	out := logx.Config{Level: level, Console: true}
	if c == nil || c.Logging == nil {
		return out
	}
	if l := strings.TrimSpace(c.Logging.Level); l != "" {
		out.Level = l
	}
	if c.Logging.Console != nil {
		out.Console = *c.Logging.Console
	}
	out.File = logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path}
	return out
}
