package rules

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Watcher keeps a Snapshot of a rules directory current. Readers call
// Snapshot and never block; a reload builds a new Snapshot and swaps it in
// whole. A reload that fails keeps the previous snapshot.
type Watcher struct {
	dir      string
	debounce time.Duration
	current  atomic.Pointer[Snapshot]
	reloads  atomic.Int64
	onReload func(*Snapshot)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithOnReload registers a callback run after each successful reload.
func WithOnReload(fn func(*Snapshot)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher loads dir once. Call Start to follow changes.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{dir: dir, debounce: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(w)
	}
	snap, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	w.current.Store(snap)
	return w, nil
}

// Snapshot returns the current snapshot.
func (w *Watcher) Snapshot() *Snapshot {
	return w.current.Load()
}

// Reloads counts successful reloads since Start.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Start begins watching. It returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "rules: create watcher")
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return eris.Wrapf(err, "rules: watch %s", w.dir)
	}

	w.fsw = fsw
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx)

	zap.L().Info("rules: watching", zap.String("dir", w.dir))
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done, fsw := w.doneCh, w.fsw
	w.mu.Unlock()

	<-done
	if err := fsw.Close(); err != nil {
		zap.L().Warn("rules: close watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isTableFile(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			zap.L().Warn("rules: watcher error", zap.Error(err))
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	snap, err := LoadDir(w.dir)
	if err != nil {
		zap.L().Error("rules: reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	w.current.Store(snap)
	w.reloads.Add(1)
	if w.onReload != nil {
		w.onReload(snap)
	}
}
