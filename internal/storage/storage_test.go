package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "notifyrelay/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestFileStoreRequiresPath(t *testing.T) {
	_, err := Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func TestFileStoreAppendAndRecent(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "logs", "audit")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []string{"install", "start", "stop", "uninstall"} {
		require.NoError(t, st.AppendAudit(ctx, AuditEntry{
			At:     base.Add(time.Duration(i) * time.Second),
			Action: action,
			Label:  "com.notifyrelay.master",
			OK:     action != "stop",
			Error:  map[bool]string{true: "", false: "exit status 1"}[action != "stop"],
		}))
	}

	raw, err := os.ReadFile(filepath.Join(dir, "logs", "audit.jsonl"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(raw)), "\n"), 4)

	got, err := st.RecentAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "stop", got[0].Action)
	assert.False(t, got[0].OK)
	assert.Equal(t, "exit status 1", got[0].Error)
	assert.Equal(t, "uninstall", got[1].Action)
	assert.True(t, got[1].At.Equal(base.Add(3*time.Second)))

	all, err := st.RecentAudit(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o600))

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AppendAudit(context.Background(), AuditEntry{Action: "status", Label: "x", OK: true}))
	got, err := st.RecentAudit(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "status", got[0].Action)
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "a.jsonl")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.Error(t, st.AppendAudit(context.Background(), AuditEntry{Action: "start"}))
}
