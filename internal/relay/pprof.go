package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"notifyrelay/internal/config"
	logx "notifyrelay/pkg/logx"
)

const defaultPprofAddr = "127.0.0.1:6060"

// pprofServer runs the profiling listener on its own address so it is
// never exposed on the relay port.
type pprofServer struct {
	mu   sync.Mutex
	log  logx.Logger
	srv  *http.Server
	addr string
}

func newPprofServer(log logx.Logger) *pprofServer {
	return &pprofServer{log: log.With(logx.String("comp", "pprof"))}
}

// Apply starts, moves or stops the listener to match cfg. A nil cfg stops it.
func (p *pprofServer) Apply(ctx context.Context, cfg *config.PprofConfig) {
	var c config.PprofConfig
	if cfg != nil {
		c = *cfg
	}
	if c.Address == "" {
		c.Address = defaultPprofAddr
	}

	// Profile rates are process-wide and follow the config even when the
	// listener is off.
	runtime.SetBlockProfileRate(c.BlockProfileRate)
	runtime.SetMutexProfileFraction(c.MutexProfileFraction)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !c.Enabled {
		p.stopLocked(ctx)
		return
	}
	if p.srv != nil && p.addr == c.Address {
		return
	}
	p.stopLocked(ctx)
	p.startLocked(c.Address)
}

func (p *pprofServer) startLocked(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		p.log.Warn("pprof listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	p.srv, p.addr = srv, ln.Addr().String()

	bound := p.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Warn("pprof server error", logx.String("addr", bound), logx.Err(err))
		}
	}()
	p.log.Info("pprof enabled", logx.String("addr", bound))
}

func (p *pprofServer) Stop(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked(ctx)
}

func (p *pprofServer) stopLocked(ctx context.Context) {
	if p.srv == nil {
		return
	}
	srv, addr := p.srv, p.addr
	p.srv, p.addr = nil, ""

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		p.log.Warn("pprof shutdown incomplete", logx.String("addr", addr), logx.Err(err))
	}
	p.log.Info("pprof disabled", logx.String("addr", addr))
}

// Addr is the bound address, or "" when stopped.
func (p *pprofServer) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}
