package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyrelay/internal/config"
	"notifyrelay/internal/storage"
	logx "notifyrelay/pkg/logx"
)

type fakeSupervisor struct {
	mu        sync.Mutex
	dir       string
	installed map[string]Descriptor
	running   map[string]bool
	calls     []string

	startErr     error
	uninstallErr error
}

func newFakeSupervisor(dir string) *fakeSupervisor {
	return &fakeSupervisor{dir: dir, installed: map[string]Descriptor{}, running: map[string]bool{}}
}

func (f *fakeSupervisor) Name() string { return "fake" }

func (f *fakeSupervisor) DescriptorPath(label string) string {
	return filepath.Join(f.dir, label+".desc")
}

func (f *fakeSupervisor) Install(_ context.Context, d Descriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "install")
	p := f.DescriptorPath(d.Label)
	if err := os.WriteFile(p, []byte(strings.Join(d.Command(), " ")), 0o644); err != nil {
		return "", err
	}
	f.installed[d.Label] = d
	f.running[d.Label] = d.RunAtLoad
	return p, nil
}

func (f *fakeSupervisor) Uninstall(_ context.Context, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "uninstall")
	if f.uninstallErr != nil {
		return f.uninstallErr
	}
	if _, ok := f.installed[label]; !ok {
		return ErrNotLoaded
	}
	delete(f.installed, label)
	delete(f.running, label)
	return nil
}

func (f *fakeSupervisor) Start(_ context.Context, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	if f.startErr != nil {
		return f.startErr
	}
	f.running[label] = true
	return nil
}

func (f *fakeSupervisor) Stop(_ context.Context, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	f.running[label] = false
	return nil
}

func (f *fakeSupervisor) Status(_ context.Context, label string) (SupervisorStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.installed[label]; !ok {
		return SupervisorStatus{}, ErrNotLoaded
	}
	if f.running[label] {
		return SupervisorStatus{Running: true, PID: 4242}, nil
	}
	return SupervisorStatus{}, nil
}

type fixture struct {
	store   *config.Store
	sup     *fakeSupervisor
	mgr     *Manager
	program string
	audit   storage.Store
}

func newFixture(t *testing.T, withMaster bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	store := config.NewStore(filepath.Join(dir, "cfg"))
	if withMaster {
		require.NoError(t, store.WriteMaster(&config.MasterConfig{Host: "0.0.0.0", Port: 8079, URL: "http://0.0.0.0:8079"}))
	}
	program := filepath.Join(dir, "bin", "notifyrelay")
	require.NoError(t, os.MkdirAll(filepath.Dir(program), 0o755))
	require.NoError(t, os.WriteFile(program, []byte("#!/bin/sh\n"), 0o755))

	audit, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "audit.jsonl")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	sup := newFakeSupervisor(dir)
	mgr := NewManager(store, sup,
		WithHome(dir),
		WithRestartDelay(0),
		WithAudit(audit),
		WithInspector(func(context.Context, int) (ProcessInfo, error) {
			return ProcessInfo{StartedAt: time.Unix(1700000000, 0), RSSBytes: 1 << 20}, nil
		}),
		withExecutable(func() (string, error) { return program, nil }),
	)
	return &fixture{store: store, sup: sup, mgr: mgr, program: program, audit: audit}
}

func TestInstallPersistsRecord(t *testing.T) {
	f := newFixture(t, true)
	rec, err := f.mgr.Install(context.Background(), InstallOptions{})
	require.NoError(t, err)

	got, err := f.store.ReadDaemon()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Installed)
	assert.Equal(t, DefaultLabel, got.Label)
	assert.Equal(t, "fake", got.Supervisor)
	assert.Equal(t, rec.DescriptorPath, got.DescriptorPath)
	assert.FileExists(t, got.DescriptorPath)
	assert.Equal(t, filepath.Join(f.store.LogsDir(), "master.log"), got.LogPath)
	assert.Equal(t, filepath.Join(f.store.LogsDir(), "master.error.log"), got.ErrorLogPath)
	assert.DirExists(t, f.store.LogsDir())

	d := f.sup.installed[DefaultLabel]
	assert.Equal(t, []string{"serve"}, d.Args)
	assert.True(t, d.RunAtLoad)
	assert.True(t, d.KeepAlive)
	assert.True(t, strings.HasSuffix(d.Environment["PATH"], ":"+StandardPath))
	assert.Equal(t, f.store.Dir, d.Environment[config.EnvConfigDir])
}

func TestInstallRequiresMasterConfig(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.mgr.Install(context.Background(), InstallOptions{})
	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, config.RemediationMaster, cerr.Remediation)
	assert.Empty(t, f.sup.calls)

	rec, err := f.store.ReadDaemon()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSecondInstallWithoutConfirmAborts(t *testing.T) {
	f := newFixture(t, true)
	first, err := f.mgr.Install(context.Background(), InstallOptions{})
	require.NoError(t, err)

	before, err := os.ReadFile(f.store.DaemonPath())
	require.NoError(t, err)

	_, err = f.mgr.Install(context.Background(), InstallOptions{})
	require.ErrorIs(t, err, ErrAborted)

	asked := false
	_, err = f.mgr.Install(context.Background(), InstallOptions{Confirm: func(existing *Record) (bool, error) {
		asked = true
		assert.Equal(t, first.Label, existing.Label)
		return false, nil
	}})
	require.ErrorIs(t, err, ErrAborted)
	assert.True(t, asked)

	after, err := os.ReadFile(f.store.DaemonPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"install"}, f.sup.calls)
}

func TestReinstallWithForceOrConfirm(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.mgr.Install(context.Background(), InstallOptions{})
	require.NoError(t, err)

	_, err = f.mgr.Install(context.Background(), InstallOptions{Force: true})
	require.NoError(t, err)
	_, err = f.mgr.Install(context.Background(), InstallOptions{Confirm: func(*Record) (bool, error) { return true, nil }})
	require.NoError(t, err)
	assert.Equal(t, []string{"install", "install", "install"}, f.sup.calls)
}

func TestOperationsRequireInstall(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.mgr.Status(ctx)
	assert.ErrorIs(t, err, ErrNotInstalled)
	assert.ErrorIs(t, f.mgr.Start(ctx), ErrNotInstalled)
	assert.ErrorIs(t, f.mgr.Stop(ctx), ErrNotInstalled)
	assert.ErrorIs(t, f.mgr.Restart(ctx), ErrNotInstalled)
	assert.ErrorIs(t, f.mgr.Uninstall(ctx), ErrNotInstalled)
	_, err = f.mgr.Logs(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotInstalled)
	assert.Empty(t, f.sup.calls)
}

func TestStatusReportsProcessDetails(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.mgr.Install(ctx, InstallOptions{})
	require.NoError(t, err)

	st, err := f.mgr.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 4242, st.PID)
	assert.Equal(t, uint64(1<<20), st.RSSBytes)
	assert.Equal(t, int64(1700000000), st.StartedAt.Unix())

	require.NoError(t, f.mgr.Stop(ctx))
	st, err = f.mgr.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Zero(t, st.PID)
	assert.True(t, st.StartedAt.IsZero())
}

func TestStatusWhenSupervisorForgotLabel(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.mgr.Install(ctx, InstallOptions{})
	require.NoError(t, err)
	delete(f.sup.installed, DefaultLabel)

	st, err := f.mgr.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, DefaultLabel, st.Label)
}

func TestRestartStopsThenStarts(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.mgr.Install(ctx, InstallOptions{})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Restart(ctx))
	assert.Equal(t, []string{"install", "stop", "start"}, f.sup.calls)

	f.sup.startErr = errors.New("launch failed")
	err = f.mgr.Restart(ctx)
	var serr *SupervisorError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "start", serr.Op)
	assert.Contains(t, err.Error(), "launch failed")
}

func TestUninstallStoppedServiceRemovesRecord(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	rec, err := f.mgr.Install(ctx, InstallOptions{})
	require.NoError(t, err)
	require.NoError(t, f.mgr.Stop(ctx))

	require.NoError(t, f.mgr.Uninstall(ctx))
	got, err := f.store.ReadDaemon()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoFileExists(t, rec.DescriptorPath)

	_, err = f.mgr.Status(ctx)
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestUninstallToleratesNotLoaded(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.mgr.Install(ctx, InstallOptions{})
	require.NoError(t, err)
	delete(f.sup.installed, DefaultLabel)

	require.NoError(t, f.mgr.Uninstall(ctx))
	assert.NoFileExists(t, f.store.DaemonPath())
}

func TestUninstallJoinsErrorsAndStillRemovesRecord(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.mgr.Install(ctx, InstallOptions{})
	require.NoError(t, err)
	f.sup.uninstallErr = errors.New("permission denied")

	err = f.mgr.Uninstall(ctx)
	var serr *SupervisorError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "uninstall", serr.Op)
	assert.NoFileExists(t, f.store.DaemonPath())
}

func TestLogsReturnsTail(t *testing.T) {
	f := newFixture(t, true)
	rec, err := f.mgr.Install(context.Background(), InstallOptions{})
	require.NoError(t, err)

	var b strings.Builder
	for i := 1; i <= 80; i++ {
		b.WriteString("line ")
		b.WriteString(strings.Repeat("x", i%3))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(rec.LogPath, []byte("first\n"+b.String()+"last\n"), 0o644))

	lines, err := f.mgr.Logs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, lines, DefaultLogLines)
	assert.Equal(t, "last", lines[len(lines)-1])

	lines, err = f.mgr.Logs(context.Background(), 200)
	require.NoError(t, err)
	assert.Len(t, lines, 82)
	assert.Equal(t, "first", lines[0])
}

func TestLogsMissingFile(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.mgr.Install(context.Background(), InstallOptions{})
	require.NoError(t, err)
	_, err = f.mgr.Logs(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOperationsAreAudited(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.mgr.Install(ctx, InstallOptions{})
	require.NoError(t, err)
	_, err = f.mgr.Install(ctx, InstallOptions{})
	require.ErrorIs(t, err, ErrAborted)
	require.NoError(t, f.mgr.Restart(ctx))
	require.NoError(t, f.mgr.Uninstall(ctx))

	hist, err := f.mgr.History(ctx, 0)
	require.NoError(t, err)
	actions := make([]string, 0, len(hist))
	for _, e := range hist {
		actions = append(actions, e.Action)
		assert.Equal(t, "fake", e.Supervisor)
	}
	assert.Equal(t, []string{"install", "install", "stop", "start", "uninstall"}, actions)
	assert.True(t, hist[0].OK)
	assert.False(t, hist[1].OK)
	assert.Contains(t, hist[1].Error, "aborted")
}

func TestWithEnvForwardsNotificationSettings(t *testing.T) {
	timeout := 9
	wait := true
	f := newFixture(t, true)
	WithEnv(config.Env{LogLevel: "debug", Notification: config.NotifierConfig{
		SoundError: "Sosumi", Timeout: &timeout, Wait: &wait,
	}})(f.mgr)

	_, err := f.mgr.Install(context.Background(), InstallOptions{})
	require.NoError(t, err)
	env := f.sup.installed[DefaultLabel].Environment
	assert.Equal(t, "debug", env["LOG_LEVEL"])
	assert.Equal(t, "Sosumi", env["NOTIFICATION_SOUND_ERROR"])
	assert.Equal(t, "9", env["NOTIFICATION_TIMEOUT"])
	assert.Equal(t, "true", env["NOTIFICATION_WAIT"])
	_, ok := env["NOTIFICATION_SUBTITLE"]
	assert.False(t, ok)
}
