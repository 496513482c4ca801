package config

// MasterConfig is the persisted relay configuration (master.json).
//
// host/port/url are required; every other section is optional. The
// notification section is the "file" tier of notification resolution.
type MasterConfig struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"required,min=1,max=65535"`
	URL  string `json:"url" validate:"required,url"`

	Notification *NotifierConfig `json:"notification,omitempty"`
	Logging      *LoggingConfig  `json:"logging,omitempty"`
	Sinks        *SinkConfig     `json:"sinks,omitempty"`
	Audit        *StorageConfig  `json:"audit,omitempty"`
	Pprof        *PprofConfig    `json:"pprof,omitempty"`
}

// NotifierConfig holds operator overrides for notification presentation.
// It is used both for the file tier and the environment tier.
//
// Timeout and Wait are pointers so an explicit 0/false is distinguishable from
// "not set" and falls through to the next tier only when nil.
type NotifierConfig struct {
	SoundQuestion string `json:"soundQuestion,omitempty"`
	SoundError    string `json:"soundError,omitempty"`
	SoundStop     string `json:"soundStop,omitempty"`
	SoundDefault  string `json:"soundDefault,omitempty"`

	Subtitle     string `json:"subtitle,omitempty"`
	Icon         string `json:"icon,omitempty"`
	ContentImage string `json:"contentImage,omitempty"`
	Timeout      *int   `json:"timeout,omitempty" validate:"omitempty,min=0"`
	Wait         *bool  `json:"wait,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SinkConfig selects where resolved notifications go.
//
// Example:
//
//	"sinks": {
//	  "backends": ["desktop", "telegram"],
//	  "delivery_timeout": "30s",
//	  "telegram": { "token": "...", "chat_id": 123, "thread_id": 0 }
//	}
//
// If the section is omitted, the desktop sink is used.
type SinkConfig struct {
	Backends        []string        `json:"backends,omitempty" validate:"dive,oneof=desktop dbus telegram"`
	DeliveryTimeout string          `json:"delivery_timeout,omitempty"`
	Desktop         *DesktopConfig  `json:"desktop,omitempty"`
	Telegram        *TelegramConfig `json:"telegram,omitempty"`
}

type DesktopConfig struct {
	// AppName is shown by notification daemons that display the sender.
	AppName string `json:"app_name,omitempty"`
	// PreferTerminalNotifier selects terminal-notifier on macOS when it is on
	// PATH (the default). Set it to false to always use osascript.
	PreferTerminalNotifier *bool `json:"prefer_terminal_notifier,omitempty"`
}

type TelegramConfig struct {
	Token      string `json:"token" validate:"required"`
	ChatID     int64  `json:"chat_id" validate:"required"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// APIURL overrides the Bot API endpoint (self-hosted bot API servers).
	APIURL string `json:"api_url,omitempty"`
}

// StorageConfig controls the lifecycle audit trail.
//
// Example:
//
//	"audit": { "driver": "file", "path": "~/.notifyrelay/audit" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the optional profiling listener. It is applied
// live on reload.
type PprofConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address,omitempty" validate:"omitempty,hostname_port"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}

// AgentConfig is written on machines that send notifications (agent.json).
type AgentConfig struct {
	MasterURL  string `json:"masterUrl" validate:"required,url"`
	AutoUpdate bool   `json:"autoUpdate"`
}

// NotificationOrEmpty returns the notification section or a zero value.
func (c *MasterConfig) NotificationOrEmpty() NotifierConfig {
	if c == nil || c.Notification == nil {
		return NotifierConfig{}
	}
	return *c.Notification
}
