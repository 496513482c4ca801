package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"notifyrelay/internal/config"
	"notifyrelay/internal/storage"
	logx "notifyrelay/pkg/logx"
)

// Manager drives the install/start/stop/status/uninstall lifecycle.
//
// State lives in two places: the install record (config.Store) and the
// platform service manager (Supervisor). Manager never caches either.
type Manager struct {
	store *config.Store
	sup   Supervisor
	log   logx.Logger
	audit storage.Store

	label        string
	home         string
	env          map[string]string
	restartDelay time.Duration

	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	executable func() (string, error)
	inspect    Inspector
}

type Option func(*Manager)

func WithLogger(log logx.Logger) Option { return func(m *Manager) { m.log = log } }

// WithAudit appends an entry per operation to st. A nil store disables it.
func WithAudit(st storage.Store) Option { return func(m *Manager) { m.audit = st } }

func WithLabel(label string) Option { return func(m *Manager) { m.label = label } }

// WithHome sets the service working directory.
func WithHome(dir string) Option { return func(m *Manager) { m.home = dir } }

func WithRestartDelay(d time.Duration) Option { return func(m *Manager) { m.restartDelay = d } }

func WithInspector(fn Inspector) Option { return func(m *Manager) { m.inspect = fn } }

// WithEnv forwards the relay's environment tier into the service so the
// daemon resolves notifications the same way the foreground relay does.
func WithEnv(env config.Env) Option {
	return func(m *Manager) {
		if env.LogLevel != "" {
			m.env["LOG_LEVEL"] = env.LogLevel
		}
		for k, v := range notificationEnv(env.Notification) {
			m.env[k] = v
		}
	}
}

func withClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func withExecutable(fn func() (string, error)) Option {
	return func(m *Manager) { m.executable = fn }
}

func NewManager(store *config.Store, sup Supervisor, opts ...Option) *Manager {
	home, _ := os.UserHomeDir()
	m := &Manager{
		store:        store,
		sup:          sup,
		log:          logx.Nop(),
		label:        DefaultLabel,
		home:         home,
		env:          map[string]string{},
		restartDelay: DefaultRestartDelay,
		now:          time.Now,
		sleep:        sleepCtx,
		executable:   os.Executable,
		inspect:      InspectProcess,
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	return m
}

func (m *Manager) Label() string { return m.label }

// Install registers the relay with the platform service manager and
// persists the install record.
func (m *Manager) Install(ctx context.Context, opts InstallOptions) (rec *Record, err error) {
	start := m.now()
	defer func() { m.record(ctx, "install", m.label, start, err) }()

	existing, err := m.store.ReadDaemon()
	if err != nil {
		return nil, err
	}
	if existing != nil && !opts.Force {
		if opts.Confirm == nil {
			return nil, ErrAborted
		}
		ok, cerr := opts.Confirm(existing)
		if cerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, cerr)
		}
		if !ok {
			return nil, ErrAborted
		}
	}

	program := opts.ProgramPath
	if program == "" {
		if program, err = m.executable(); err != nil {
			return nil, fmt.Errorf("locate program: %w", err)
		}
	}
	program, err = filepath.Abs(program)
	if err != nil {
		return nil, fmt.Errorf("locate program: %w", err)
	}
	runtimePath, err := filepath.EvalSymlinks(program)
	if err != nil {
		return nil, fmt.Errorf("resolve program %s: %w", program, err)
	}

	if _, err := m.store.RequireMaster(); err != nil {
		return nil, err
	}

	logsDir := m.store.LogsDir()
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	d := m.descriptor(program, runtimePath)
	path, err := m.sup.Install(ctx, d)
	if err != nil {
		return nil, &SupervisorError{Op: "install", Label: m.label, Err: err}
	}

	if st, serr := m.sup.Status(ctx, m.label); serr != nil || !st.Running {
		m.log.Warn("could not verify service is running; check it manually",
			logx.String("label", m.label), logx.Err(serr))
	} else {
		m.log.Info("service running", logx.String("label", m.label), logx.Int("pid", st.PID))
	}

	rec = &Record{
		Installed:      true,
		InstalledAt:    m.now().UTC(),
		Label:          m.label,
		ProgramPath:    program,
		RuntimePath:    runtimePath,
		DescriptorPath: path,
		LogPath:        d.StdoutLogPath,
		ErrorLogPath:   d.StderrLogPath,
		Supervisor:     m.sup.Name(),
	}
	if err := m.store.WriteDaemon(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *Manager) descriptor(program, runtimePath string) Descriptor {
	env := map[string]string{
		"PATH":              filepath.Dir(runtimePath) + ":" + StandardPath,
		config.EnvConfigDir: m.store.Dir,
	}
	for k, v := range m.env {
		env[k] = v
	}
	return Descriptor{
		Label:            m.label,
		ProgramPath:      program,
		Args:             []string{"serve"},
		WorkingDirectory: m.home,
		StdoutLogPath:    filepath.Join(m.store.LogsDir(), "master.log"),
		StderrLogPath:    filepath.Join(m.store.LogsDir(), "master.error.log"),
		Environment:      env,
		RunAtLoad:        true,
		KeepAlive:        true,
	}
}

func (m *Manager) requireRecord() (*Record, error) {
	rec, err := m.store.ReadDaemon()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotInstalled
	}
	return rec, nil
}

func (m *Manager) Start(ctx context.Context) (err error) {
	start := m.now()
	rec, err := m.requireRecord()
	if err != nil {
		return err
	}
	defer func() { m.record(ctx, "start", rec.Label, start, err) }()

	if err := m.sup.Start(ctx, rec.Label); err != nil {
		return &SupervisorError{Op: "start", Label: rec.Label, Err: err}
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context) (err error) {
	start := m.now()
	rec, err := m.requireRecord()
	if err != nil {
		return err
	}
	defer func() { m.record(ctx, "stop", rec.Label, start, err) }()

	if err := m.sup.Stop(ctx, rec.Label); err != nil {
		return &SupervisorError{Op: "stop", Label: rec.Label, Err: err}
	}
	return nil
}

// Restart is Stop, a fixed pause, then Start.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	if err := m.sleep(ctx, m.restartDelay); err != nil {
		return err
	}
	return m.Start(ctx)
}

// Status always asks the supervisor. A label it does not know is reported
// as not running.
func (m *Manager) Status(ctx context.Context) (_ Status, err error) {
	start := m.now()
	rec, err := m.requireRecord()
	if err != nil {
		return Status{}, err
	}
	defer func() { m.record(ctx, "status", rec.Label, start, err) }()

	out := Status{
		Label:          rec.Label,
		Supervisor:     rec.Supervisor,
		DescriptorPath: rec.DescriptorPath,
		LogPath:        rec.LogPath,
		ErrorLogPath:   rec.ErrorLogPath,
	}
	st, err := m.sup.Status(ctx, rec.Label)
	if err != nil {
		if errors.Is(err, ErrNotLoaded) {
			return out, nil
		}
		return out, &SupervisorError{Op: "status", Label: rec.Label, Err: err}
	}
	out.Running = st.Running
	out.PID = st.PID
	if st.PID > 0 && m.inspect != nil {
		if info, ierr := m.inspect(ctx, st.PID); ierr == nil {
			out.StartedAt = info.StartedAt
			out.RSSBytes = info.RSSBytes
		} else {
			m.log.Debug("process inspect failed", logx.Int("pid", st.PID), logx.Err(ierr))
		}
	}
	return out, nil
}

// Logs returns the last n lines of the service's stdout log.
func (m *Manager) Logs(ctx context.Context, n int) (_ []string, err error) {
	start := m.now()
	rec, err := m.requireRecord()
	if err != nil {
		return nil, err
	}
	defer func() { m.record(ctx, "logs", rec.Label, start, err) }()

	if n <= 0 {
		n = DefaultLogLines
	}
	return tailLines(rec.LogPath, n)
}

// Uninstall unregisters the service and removes the descriptor and the
// install record. Every step runs; failures are joined. The record is
// removed even when an earlier step failed.
func (m *Manager) Uninstall(ctx context.Context) (err error) {
	start := m.now()
	rec, err := m.requireRecord()
	if err != nil {
		return err
	}
	defer func() { m.record(ctx, "uninstall", rec.Label, start, err) }()

	var errs []error
	if uerr := m.sup.Uninstall(ctx, rec.Label); uerr != nil {
		if errors.Is(uerr, ErrNotLoaded) {
			m.log.Info("service was not loaded", logx.String("label", rec.Label))
		} else {
			errs = append(errs, &SupervisorError{Op: "uninstall", Label: rec.Label, Err: uerr})
		}
	}
	if rec.DescriptorPath != "" {
		if rerr := os.Remove(rec.DescriptorPath); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove descriptor: %w", rerr))
		}
	}
	if rerr := m.store.RemoveDaemon(); rerr != nil {
		errs = append(errs, rerr)
	}
	return errors.Join(errs...)
}

// History returns the most recent audit entries, oldest first.
func (m *Manager) History(ctx context.Context, n int) ([]storage.AuditEntry, error) {
	if m.audit == nil {
		return nil, storage.ErrDisabled
	}
	return m.audit.RecentAudit(ctx, n)
}

func (m *Manager) record(ctx context.Context, action, label string, start time.Time, opErr error) {
	if m.audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:         start.UTC(),
		Action:     action,
		Label:      label,
		Supervisor: m.sup.Name(),
		OK:         opErr == nil,
		TookMS:     m.now().Sub(start).Milliseconds(),
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	e.Host, _ = os.Hostname()
	if u, err := user.Current(); err == nil {
		e.User = u.Username
	}
	if err := m.audit.AppendAudit(context.WithoutCancel(ctx), e); err != nil {
		m.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}

func notificationEnv(n config.NotifierConfig) map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("NOTIFICATION_SOUND_QUESTION", n.SoundQuestion)
	set("NOTIFICATION_SOUND_ERROR", n.SoundError)
	set("NOTIFICATION_SOUND_STOP", n.SoundStop)
	set("NOTIFICATION_SOUND_DEFAULT", n.SoundDefault)
	set("NOTIFICATION_SUBTITLE", n.Subtitle)
	set("NOTIFICATION_ICON", n.Icon)
	set("NOTIFICATION_CONTENT_IMAGE", n.ContentImage)
	if n.Timeout != nil {
		out["NOTIFICATION_TIMEOUT"] = fmt.Sprint(*n.Timeout)
	}
	if n.Wait != nil {
		out["NOTIFICATION_WAIT"] = fmt.Sprint(*n.Wait)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
