// Package launchd is the macOS Supervisor: a per-user LaunchAgent driven
// through launchctl.
package launchd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"howett.net/plist"

	"notifyrelay/internal/daemon"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// agent is the LaunchAgent property list.
type agent struct {
	Label                string            `plist:"Label"`
	ProgramArguments     []string          `plist:"ProgramArguments"`
	RunAtLoad            bool              `plist:"RunAtLoad"`
	KeepAlive            bool              `plist:"KeepAlive"`
	WorkingDirectory     string            `plist:"WorkingDirectory,omitempty"`
	StandardOutPath      string            `plist:"StandardOutPath,omitempty"`
	StandardErrorPath    string            `plist:"StandardErrorPath,omitempty"`
	EnvironmentVariables map[string]string `plist:"EnvironmentVariables,omitempty"`
}

type Launchd struct {
	dir string
	run Runner
}

type Option func(*Launchd)

func WithRunner(r Runner) Option { return func(l *Launchd) { l.run = r } }

// New writes agents to <home>/Library/LaunchAgents.
func New(home string, opts ...Option) *Launchd {
	l := &Launchd{dir: filepath.Join(home, "Library", "LaunchAgents"), run: execRunner{}}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Launchd) Name() string { return "launchd" }

func (l *Launchd) DescriptorPath(label string) string {
	return filepath.Join(l.dir, label+".plist")
}

// Render encodes d as an XML property list.
func Render(d daemon.Descriptor) ([]byte, error) {
	env := map[string]string{"PATH": daemon.StandardPath}
	for k, v := range d.Environment {
		env[k] = v
	}
	return plist.MarshalIndent(agent{
		Label:                d.Label,
		ProgramArguments:     d.Command(),
		RunAtLoad:            d.RunAtLoad,
		KeepAlive:            d.KeepAlive,
		WorkingDirectory:     d.WorkingDirectory,
		StandardOutPath:      d.StdoutLogPath,
		StandardErrorPath:    d.StderrLogPath,
		EnvironmentVariables: env,
	}, plist.XMLFormat, "\t")
}

func (l *Launchd) Install(ctx context.Context, d daemon.Descriptor) (string, error) {
	data, err := Render(d)
	if err != nil {
		return "", fmt.Errorf("render plist: %w", err)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", err
	}
	path := l.DescriptorPath(d.Label)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	// A previous install may still be loaded.
	_, _ = l.run.Run(ctx, "launchctl", "unload", path)
	if out, err := l.run.Run(ctx, "launchctl", "load", path); err != nil {
		return path, cmdErr(err, out)
	}
	return path, nil
}

// Uninstall unloads the agent. Only launchctl's "nothing loaded" answers
// map to daemon.ErrNotLoaded; any other failure is returned as is.
func (l *Launchd) Uninstall(ctx context.Context, label string) error {
	out, err := l.run.Run(ctx, "launchctl", "unload", l.DescriptorPath(label))
	if err == nil {
		return nil
	}
	if isNotLoaded(out) {
		return fmt.Errorf("%w: %v", daemon.ErrNotLoaded, cmdErr(err, out))
	}
	return cmdErr(err, out)
}

// launchctl exits non-zero with one of these when the job is unknown or
// its plist is gone. 113 is "Could not find specified service".
var notLoadedMarkers = []string{
	"could not find specified service",
	"not loaded",
	"no such process",
	"no such file or directory",
	"unload failed: 113",
}

func isNotLoaded(out []byte) bool {
	msg := strings.ToLower(string(out))
	for _, m := range notLoadedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func (l *Launchd) Start(ctx context.Context, label string) error {
	if out, err := l.run.Run(ctx, "launchctl", "start", label); err != nil {
		return cmdErr(err, out)
	}
	return nil
}

func (l *Launchd) Stop(ctx context.Context, label string) error {
	if out, err := l.run.Run(ctx, "launchctl", "stop", label); err != nil {
		return cmdErr(err, out)
	}
	return nil
}

// Status parses `launchctl list`, whose rows are "PID Status Label" with
// "-" for no PID.
func (l *Launchd) Status(ctx context.Context, label string) (daemon.SupervisorStatus, error) {
	out, err := l.run.Run(ctx, "launchctl", "list")
	if err != nil {
		return daemon.SupervisorStatus{}, cmdErr(err, out)
	}
	return parseList(out, label)
}

func parseList(out []byte, label string) (daemon.SupervisorStatus, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[2] != label {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid <= 0 {
			return daemon.SupervisorStatus{}, nil
		}
		return daemon.SupervisorStatus{Running: true, PID: pid}, nil
	}
	return daemon.SupervisorStatus{}, daemon.ErrNotLoaded
}

func cmdErr(err error, out []byte) error {
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
