package launchd

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"notifyrelay/internal/daemon"
)

type recordingRunner struct {
	calls [][]string
	out   map[string][]byte
	errs  map[string]error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	key := args[0]
	return r.out[key], r.errs[key]
}

func descriptor() daemon.Descriptor {
	return daemon.Descriptor{
		Label:            "com.notifyrelay.master",
		ProgramPath:      "/usr/local/bin/notifyrelay",
		Args:             []string{"serve"},
		WorkingDirectory: "/Users/u",
		StdoutLogPath:    "/Users/u/.notifyrelay/logs/master.log",
		StderrLogPath:    "/Users/u/.notifyrelay/logs/master.error.log",
		Environment:      map[string]string{"PATH": "/opt/bin:" + daemon.StandardPath},
		RunAtLoad:        true,
		KeepAlive:        true,
	}
}

func TestRenderPlist(t *testing.T) {
	data, err := Render(descriptor())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<?xml"))

	var back map[string]any
	_, err = plist.Unmarshal(data, &back)
	require.NoError(t, err)
	assert.Equal(t, "com.notifyrelay.master", back["Label"])
	assert.Equal(t, []any{"/usr/local/bin/notifyrelay", "serve"}, back["ProgramArguments"])
	assert.Equal(t, true, back["RunAtLoad"])
	assert.Equal(t, true, back["KeepAlive"])
	assert.Equal(t, "/Users/u/.notifyrelay/logs/master.error.log", back["StandardErrorPath"])
	env := back["EnvironmentVariables"].(map[string]any)
	assert.Equal(t, "/opt/bin:"+daemon.StandardPath, env["PATH"])
}

func TestInstallWritesAndLoads(t *testing.T) {
	home := t.TempDir()
	r := &recordingRunner{}
	l := New(home, WithRunner(r))

	path, err := l.Install(context.Background(), descriptor())
	require.NoError(t, err)
	assert.Equal(t, l.DescriptorPath("com.notifyrelay.master"), path)
	assert.Contains(t, path, "Library/LaunchAgents/com.notifyrelay.master.plist")
	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"launchctl", "unload", path},
		{"launchctl", "load", path},
	}, r.calls)
}

func TestInstallLoadFailure(t *testing.T) {
	r := &recordingRunner{
		out:  map[string][]byte{"load": []byte("Load failed: 5: Input/output error")},
		errs: map[string]error{"load": errors.New("exit status 5")},
	}
	_, err := New(t.TempDir(), WithRunner(r)).Install(context.Background(), descriptor())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Input/output error")
}

func TestUninstallNotLoaded(t *testing.T) {
	for _, out := range []string{
		"Could not find specified service",
		"/Users/u/Library/LaunchAgents/x.plist: Could not find specified service",
		"Unload failed: 113: Could not find specified service",
		"launchctl: Error unloading: x not loaded",
		"/Users/u/Library/LaunchAgents/x.plist: No such file or directory",
	} {
		r := &recordingRunner{
			out:  map[string][]byte{"unload": []byte(out)},
			errs: map[string]error{"unload": errors.New("exit status 3")},
		}
		err := New(t.TempDir(), WithRunner(r)).Uninstall(context.Background(), "x")
		assert.ErrorIs(t, err, daemon.ErrNotLoaded, out)
	}
}

func TestUninstallReportsOtherFailures(t *testing.T) {
	r := &recordingRunner{
		out:  map[string][]byte{"unload": []byte("Unload failed: 5: Input/output error")},
		errs: map[string]error{"unload": errors.New("exit status 5")},
	}
	err := New(t.TempDir(), WithRunner(r)).Uninstall(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, daemon.ErrNotLoaded)
	assert.Contains(t, err.Error(), "Input/output error")

	r = &recordingRunner{errs: map[string]error{"unload": errors.New("exit status 1")}}
	err = New(t.TempDir(), WithRunner(r)).Uninstall(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, daemon.ErrNotLoaded)
}

func TestParseList(t *testing.T) {
	out := []byte("PID\tStatus\tLabel\n-\t0\tcom.apple.other\n812\t0\tcom.notifyrelay.master\n-\t78\tcom.notifyrelay.stopped\n")

	st, err := parseList(out, "com.notifyrelay.master")
	require.NoError(t, err)
	assert.Equal(t, daemon.SupervisorStatus{Running: true, PID: 812}, st)

	st, err = parseList(out, "com.notifyrelay.stopped")
	require.NoError(t, err)
	assert.False(t, st.Running)

	_, err = parseList(out, "com.notifyrelay")
	assert.ErrorIs(t, err, daemon.ErrNotLoaded)
}

func TestStartStopUseLabel(t *testing.T) {
	r := &recordingRunner{}
	l := New(t.TempDir(), WithRunner(r))
	require.NoError(t, l.Start(context.Background(), "lbl"))
	require.NoError(t, l.Stop(context.Background(), "lbl"))
	assert.Equal(t, [][]string{{"launchctl", "start", "lbl"}, {"launchctl", "stop", "lbl"}}, r.calls)
}
