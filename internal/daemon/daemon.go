// Package daemon installs and drives the relay as a per-user background
// service. The platform service manager (launchd, systemd) sits behind the
// Supervisor interface; the install record lives in daemon.json.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notifyrelay/internal/config"
)

const (
	// DefaultLabel names the service in the platform service manager.
	DefaultLabel = "com.notifyrelay.master"
	// DefaultRestartDelay is the pause between stop and start on restart.
	DefaultRestartDelay = time.Second
	// DefaultLogLines is how many log lines Logs returns when n <= 0.
	DefaultLogLines = 50

	// StandardPath is appended to the runtime directory in the service's PATH.
	StandardPath = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"
)

var (
	ErrNotInstalled = errors.New("service is not installed (run: notifyrelay install daemon)")
	ErrAborted      = errors.New("install aborted")
	// ErrNotLoaded is returned by a Supervisor when the platform service
	// manager does not know the label.
	ErrNotLoaded = errors.New("service not loaded")
)

// SupervisorError reports a failed call into the platform service manager.
type SupervisorError struct {
	Op    string
	Label string
	Err   error
}

func (e *SupervisorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Label, e.Err)
}

func (e *SupervisorError) Unwrap() error { return e.Err }

// Record is the persisted install record.
type Record = config.DaemonRecord

// Descriptor is the platform-neutral description of the service.
type Descriptor struct {
	Label            string
	ProgramPath      string
	Args             []string
	WorkingDirectory string
	StdoutLogPath    string
	StderrLogPath    string
	Environment      map[string]string
	RunAtLoad        bool
	KeepAlive        bool
}

// Command returns ProgramPath followed by Args.
func (d Descriptor) Command() []string {
	return append([]string{d.ProgramPath}, d.Args...)
}

// SupervisorStatus is what the platform service manager reports.
type SupervisorStatus struct {
	Running bool
	PID     int
}

// Supervisor adapts one platform service manager.
//
// Install writes the descriptor artifact, registers it and returns its
// path. Uninstall and Status return an error matching ErrNotLoaded when the
// label is unknown to the service manager.
type Supervisor interface {
	Name() string
	DescriptorPath(label string) string
	Install(ctx context.Context, d Descriptor) (string, error)
	Uninstall(ctx context.Context, label string) error
	Start(ctx context.Context, label string) error
	Stop(ctx context.Context, label string) error
	Status(ctx context.Context, label string) (SupervisorStatus, error)
}

// Status is the derived service state. It is never persisted.
type Status struct {
	Running        bool
	PID            int
	Label          string
	Supervisor     string
	DescriptorPath string
	LogPath        string
	ErrorLogPath   string

	// Set when PID is live and the process could be inspected.
	StartedAt time.Time
	RSSBytes  uint64
}

// InstallOptions controls Install.
type InstallOptions struct {
	// Force reinstalls without asking.
	Force bool
	// Confirm is asked before replacing an existing install. A nil Confirm
	// is treated as "no".
	Confirm func(existing *Record) (bool, error)
	// ProgramPath overrides os.Executable.
	ProgramPath string
}
