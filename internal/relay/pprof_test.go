package relay

import (
	"context"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyrelay/internal/config"
	logx "notifyrelay/pkg/logx"
)

func TestPprofServerApplyEnableDisable(t *testing.T) {
	srv := newPprofServer(logx.Nop())
	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		srv.Stop(context.Background())
		runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := &config.PprofConfig{Enabled: true, Address: "127.0.0.1:0", BlockProfileRate: 1, MutexProfileFraction: 7}
	srv.Apply(ctx, cfg)

	addr := srv.Addr()
	require.NotEmpty(t, addr)
	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/debug/pprof/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond)
	assert.Equal(t, 7, runtime.SetMutexProfileFraction(-1))

	srv.Apply(ctx, &config.PprofConfig{Enabled: true, Address: addr})
	assert.Equal(t, addr, srv.Addr())

	srv.Apply(ctx, nil)
	assert.Empty(t, srv.Addr())
}
