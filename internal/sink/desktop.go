package sink

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"notifyrelay/internal/notify"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecRunner runs commands with os/exec.
func ExecRunner() Runner { return execRunner{} }

// Desktop shows notifications with the host's command line notifier:
// terminal-notifier on macOS when it is installed (osascript otherwise),
// notify-send on Linux.
type Desktop struct {
	goos     string
	appName  string
	preferTN bool
	run      Runner
	lookPath func(string) (string, error)
}

type DesktopOption func(*Desktop)

// WithRunner replaces the command runner.
func WithRunner(r Runner) DesktopOption { return func(d *Desktop) { d.run = r } }

// WithGOOS pretends to run on another OS.
func WithGOOS(goos string) DesktopOption { return func(d *Desktop) { d.goos = goos } }

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn func(string) (string, error)) DesktopOption {
	return func(d *Desktop) { d.lookPath = fn }
}

func WithAppName(name string) DesktopOption { return func(d *Desktop) { d.appName = name } }

// WithTerminalNotifier controls whether terminal-notifier is used on macOS
// when it is on PATH. It is on by default; osascript cannot show icons,
// images, actions or reply fields.
func WithTerminalNotifier(enabled bool) DesktopOption {
	return func(d *Desktop) { d.preferTN = enabled }
}

func NewDesktop(opts ...DesktopOption) *Desktop {
	d := &Desktop{
		goos:     runtime.GOOS,
		appName:  "notifyrelay",
		preferTN: true,
		run:      execRunner{},
		lookPath: exec.LookPath,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Deliver(ctx context.Context, n notify.Notification) error {
	name, args, err := d.command(n)
	if err != nil {
		return err
	}
	out, err := d.run.Run(ctx, name, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// command picks the notifier binary and builds its argv.
func (d *Desktop) command(n notify.Notification) (string, []string, error) {
	switch d.goos {
	case "darwin":
		if d.preferTN {
			if path, err := d.lookPath("terminal-notifier"); err == nil {
				return path, terminalNotifierArgs(n, d.appName), nil
			}
		}
		return "osascript", []string{"-e", appleScript(n)}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", notifySendArgs(n, d.appName), nil
	default:
		return "", nil, fmt.Errorf("desktop on %s: %w", d.goos, ErrUnsupported)
	}
}

// appleScript builds a "display notification" statement.
func appleScript(n notify.Notification) string {
	var b strings.Builder
	b.WriteString("display notification ")
	b.WriteString(appleQuote(n.Message))
	b.WriteString(" with title ")
	b.WriteString(appleQuote(n.Title))
	if n.Subtitle != "" {
		b.WriteString(" subtitle ")
		b.WriteString(appleQuote(n.Subtitle))
	}
	if n.Sound != "" && n.Sound != "none" {
		b.WriteString(" sound name ")
		b.WriteString(appleQuote(n.Sound))
	}
	return b.String()
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func terminalNotifierArgs(n notify.Notification, group string) []string {
	args := []string{"-title", n.Title, "-message", n.Message, "-group", group}
	if n.Subtitle != "" {
		args = append(args, "-subtitle", n.Subtitle)
	}
	if n.Sound != "" && n.Sound != "none" {
		args = append(args, "-sound", n.Sound)
	}
	if n.Icon != "" {
		args = append(args, "-appIcon", n.Icon)
	}
	if n.ContentImage != "" {
		args = append(args, "-contentImage", n.ContentImage)
	}
	if n.Open != "" {
		args = append(args, "-open", n.Open)
	}
	args = append(args, "-timeout", strconv.Itoa(n.Timeout))
	if n.Wait {
		args = append(args, "-wait")
	}
	if len(n.Actions) > 0 {
		args = append(args, "-actions", strings.Join(n.Actions, ","))
	}
	if n.CloseLabel != "" {
		args = append(args, "-closeLabel", n.CloseLabel)
	}
	if n.DropdownLabel != "" {
		args = append(args, "-dropdownLabel", n.DropdownLabel)
	}
	if n.Reply {
		args = append(args, "-reply")
	}
	return args
}

func notifySendArgs(n notify.Notification, appName string) []string {
	args := []string{
		"-u", urgencyFor(n.Category).String(),
		"-a", appName,
		"-t", strconv.Itoa(int(expireMillis(n.Timeout))),
	}
	if icon := localPath(n.Icon); icon != "" {
		args = append(args, "-i", icon)
	}
	if n.Wait {
		args = append(args, "--wait")
	}
	for _, a := range n.Actions {
		args = append(args, "-A", a)
	}
	body := n.Message
	if n.Subtitle != "" {
		body = n.Subtitle + "\n" + n.Message
	}
	return append(args, "--", n.Title, body)
}

// localPath strips file:// so tools that want a filesystem path get one.
// Remote locators are returned unchanged.
func localPath(loc string) string {
	return strings.TrimPrefix(loc, "file://")
}
