package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path (build tag sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one lifecycle operation. Keep it compact and
// schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	Action     string    `json:"action"`
	Label      string    `json:"label"`
	Supervisor string    `json:"supervisor,omitempty"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms"`
	Host       string    `json:"host,omitempty"`
	User       string    `json:"user,omitempty"`
}
