package config

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	logx "notifyrelay/pkg/logx"
)

const (
	watchDebounce       = 250 * time.Millisecond
	restartBackoffBase  = 250 * time.Millisecond
	restartBackoffMax   = 5 * time.Second
	validateHookTimeout = 5 * time.Second
)

// Watcher keeps the last good master config and publishes replacements
// when the file changes on disk. A file that fails to parse or validate is
// logged and ignored; the previous config stays in effect.
type Watcher struct {
	path string
	log  logx.Logger

	mu       sync.RWMutex
	cfg      *MasterConfig
	lastHash uint64

	// subsMu also guards against sending on a channel Unsubscribe is closing.
	subsMu sync.Mutex
	subs   []chan *MasterConfig

	validator func(ctx context.Context, cfg *MasterConfig) error
	debounce  time.Duration
}

func NewWatcher(path string, log logx.Logger) *Watcher {
	return &Watcher{path: path, log: log, debounce: watchDebounce}
}

func (w *Watcher) Path() string { return w.path }

// SetValidator installs an extra check run before a reloaded config is
// committed.
func (w *Watcher) SetValidator(fn func(ctx context.Context, cfg *MasterConfig) error) {
	w.validator = fn
}

// Load parses the file and makes it current. Use it once at startup.
func (w *Watcher) Load() (*MasterConfig, error) {
	cfg, err := ParseMasterFile(w.path)
	if err != nil {
		return nil, err
	}
	w.commit(cfg)
	return cfg, nil
}

func (w *Watcher) Get() *MasterConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Watcher) commit(cfg *MasterConfig) {
	w.mu.Lock()
	w.cfg = cfg
	w.lastHash = hashConfig(cfg)
	w.mu.Unlock()
}

func hashConfig(cfg *MasterConfig) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (w *Watcher) Subscribe(buffer int) chan *MasterConfig {
	ch := make(chan *MasterConfig, buffer)
	w.subsMu.Lock()
	w.subs = append(w.subs, ch)
	w.subsMu.Unlock()
	return ch
}

func (w *Watcher) Unsubscribe(ch chan *MasterConfig) {
	if ch == nil {
		return
	}
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for i, s := range w.subs {
		if s == ch {
			last := len(w.subs) - 1
			w.subs[i] = w.subs[last]
			w.subs[last] = nil
			w.subs = w.subs[:last]
			close(ch)
			return
		}
	}
}

// publish delivers the newest config to every subscriber. A full buffer
// loses its oldest entry; subscribers only care about the latest.
func (w *Watcher) publish(cfg *MasterConfig) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			w.log.Debug("config update dropped (subscriber slow)",
				logx.Int("queue_len", len(ch)),
				logx.Int("queue_cap", cap(ch)),
			)
		}
	}
}

// reload parses, validates, commits and publishes. It reports whether a new
// config was published.
func (w *Watcher) reload(ctx context.Context) bool {
	cfg, err := ParseMasterFile(w.path)
	if err != nil {
		w.log.Warn("config parse failed", logx.String("path", w.path), logx.Err(err))
		return false
	}

	h := hashConfig(cfg)
	w.mu.RLock()
	unchanged := h != 0 && h == w.lastHash
	w.mu.RUnlock()
	if unchanged {
		w.log.Debug("config unchanged; skipping publish", logx.String("path", w.path))
		return false
	}

	if w.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateHookTimeout)
		err := w.validator(vctx, cfg)
		cancel()
		if err != nil {
			w.log.Warn("config rejected", logx.String("path", w.path), logx.Err(err))
			return false
		}
	}

	w.commit(cfg)
	w.publish(cfg)
	w.log.Debug("config published", logx.String("path", w.path), logx.String("hash", fmt.Sprintf("%x", h)))
	return true
}

// Watch blocks until ctx is done. The fsnotify watcher is recreated with a
// jittered backoff whenever it breaks.
func (w *Watcher) Watch(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}
	sleep := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			w.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		w.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if !strings.EqualFold(filepath.Base(ev.Name), file) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					w.log.Warn("config watch overflow; forcing reload", logx.Err(err), logx.String("dir", dir))
					schedule()
					continue
				}
				w.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = fw.Close()
		wait := nextWait()
		w.log.Warn("config watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait))
		if !sleep(wait) {
			return nil
		}
	}
}
