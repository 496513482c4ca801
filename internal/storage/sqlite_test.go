//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "notifyrelay/pkg/logx"
)

func TestSQLiteStoreRecent(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "audit.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for _, a := range []string{"install", "start", "restart"} {
		require.NoError(t, st.AppendAudit(ctx, AuditEntry{Action: a, Label: "l", OK: true, Supervisor: "systemd"}))
	}
	got, err := st.RecentAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "start", got[0].Action)
	assert.Equal(t, "restart", got[1].Action)
	assert.Equal(t, "systemd", got[1].Supervisor)
	assert.False(t, got[1].At.IsZero())
}
