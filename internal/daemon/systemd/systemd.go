// Package systemd is the Linux Supervisor: a systemd user unit managed over
// the user bus.
package systemd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"notifyrelay/internal/daemon"
)

// unitManager is the subset of *dbus.Conn this package uses.
type unitManager interface {
	ReloadContext(ctx context.Context) error
	EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []enableChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) error
	StartUnitContext(ctx context.Context, name, mode string) error
	RestartUnitContext(ctx context.Context, name, mode string) error
	StopUnitContext(ctx context.Context, name, mode string) error
	GetUnitPropertiesContext(ctx context.Context, name string) (map[string]any, error)
	GetServicePropertiesContext(ctx context.Context, name string) (map[string]any, error)
	Close()
}

type enableChange struct {
	Type, Filename, Destination string
}

type Systemd struct {
	dir  string
	dial func(ctx context.Context) (unitManager, error)
}

// New writes units to <home>/.config/systemd/user.
func New(home string) *Systemd {
	return &Systemd{dir: filepath.Join(home, ".config", "systemd", "user"), dial: dialUser}
}

func (s *Systemd) Name() string { return "systemd" }

func unitName(label string) string { return label + ".service" }

func (s *Systemd) DescriptorPath(label string) string {
	return filepath.Join(s.dir, unitName(label))
}

// Render serializes d as a unit file.
func Render(d daemon.Descriptor) ([]byte, error) {
	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "notifyrelay notification relay"),
		unit.NewUnitOption("Unit", "After", "network.target"),
		unit.NewUnitOption("Service", "Type", "simple"),
		unit.NewUnitOption("Service", "ExecStart", execLine(d.Command())),
	}
	if d.WorkingDirectory != "" {
		opts = append(opts, unit.NewUnitOption("Service", "WorkingDirectory", d.WorkingDirectory))
	}
	keys := make([]string, 0, len(d.Environment))
	for k := range d.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, unit.NewUnitOption("Service", "Environment", quoteArg(k+"="+d.Environment[k])))
	}
	if d.StdoutLogPath != "" {
		opts = append(opts, unit.NewUnitOption("Service", "StandardOutput", "append:"+d.StdoutLogPath))
	}
	if d.StderrLogPath != "" {
		opts = append(opts, unit.NewUnitOption("Service", "StandardError", "append:"+d.StderrLogPath))
	}
	if d.KeepAlive {
		opts = append(opts,
			unit.NewUnitOption("Service", "Restart", "always"),
			unit.NewUnitOption("Service", "RestartSec", "2"),
		)
	}
	if d.RunAtLoad {
		opts = append(opts, unit.NewUnitOption("Install", "WantedBy", "default.target"))
	}
	return io.ReadAll(unit.Serialize(opts))
}

func (s *Systemd) Install(ctx context.Context, d daemon.Descriptor) (string, error) {
	data, err := Render(d)
	if err != nil {
		return "", fmt.Errorf("render unit: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := s.DescriptorPath(d.Label)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return path, err
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return path, fmt.Errorf("daemon-reload: %w", err)
	}
	if !d.RunAtLoad {
		return path, nil
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{unitName(d.Label)}, false, true); err != nil {
		return path, fmt.Errorf("enable: %w", err)
	}
	// Restart so a reinstall picks up the new unit.
	if err := conn.RestartUnitContext(ctx, unitName(d.Label), "replace"); err != nil {
		return path, fmt.Errorf("start: %w", err)
	}
	return path, nil
}

func (s *Systemd) Uninstall(ctx context.Context, label string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	name := unitName(label)
	if err := conn.StopUnitContext(ctx, name, "replace"); err != nil {
		if isNoSuchUnitErr(err) {
			return fmt.Errorf("%w: %v", daemon.ErrNotLoaded, err)
		}
		return fmt.Errorf("stop: %w", err)
	}
	if err := conn.DisableUnitFilesContext(ctx, []string{name}, false); err != nil {
		return fmt.Errorf("disable: %w", err)
	}
	return conn.ReloadContext(ctx)
}

func (s *Systemd) Start(ctx context.Context, label string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.StartUnitContext(ctx, unitName(label), "replace")
}

func (s *Systemd) Stop(ctx context.Context, label string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.StopUnitContext(ctx, unitName(label), "replace")
}

func (s *Systemd) Status(ctx context.Context, label string) (daemon.SupervisorStatus, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return daemon.SupervisorStatus{}, err
	}
	defer conn.Close()

	name := unitName(label)
	props, err := conn.GetUnitPropertiesContext(ctx, name)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return daemon.SupervisorStatus{}, daemon.ErrNotLoaded
		}
		return daemon.SupervisorStatus{}, err
	}
	if load, _ := props["LoadState"].(string); load == "not-found" {
		return daemon.SupervisorStatus{}, daemon.ErrNotLoaded
	}
	active, _ := props["ActiveState"].(string)
	st := daemon.SupervisorStatus{Running: active == "active"}
	if !st.Running {
		return st, nil
	}
	if svc, err := conn.GetServicePropertiesContext(ctx, name); err == nil {
		if pid, ok := svc["MainPID"].(uint32); ok {
			st.PID = int(pid)
		}
	}
	return st, nil
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not loaded") || strings.Contains(es, "not-found")
}

func execLine(argv []string) string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = quoteArg(a)
	}
	return strings.Join(out, " ")
}

// quoteArg double-quotes a in systemd's command-line syntax when needed.
func quoteArg(a string) string {
	if a != "" && !strings.ContainsAny(a, " \t\"'\\$%") {
		return a
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `$$`, `%`, `%%`)
	return `"` + r.Replace(a) + `"`
}
