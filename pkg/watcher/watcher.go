// Package watcher reports changes to a file-backed data source (a JSONL
// export or a SQLite database) so the dashboard can reload it.
//
// fsnotify is used where it works. Polling takes over when fsnotify cannot
// watch the directory or when BIMNAV_FORCE_POLL is set.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanderheijden86/bimnav/pkg/debug"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// ForcePollEnvVar forces polling mode when set to a true value.
const ForcePollEnvVar = "BIMNAV_FORCE_POLL"

// Common errors.
var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) { w.forcePoll = force }
}

// WithOnError sets the callback invoked on watch errors. The default logs
// them to the debug log.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// WithCompanions also treats writes to path+suffix as changes of the watched
// file. SQLite databases in WAL mode are written through "-wal".
func WithCompanions(suffixes ...string) WatcherOption {
	return func(w *Watcher) { w.companions = append(w.companions, suffixes...) }
}

// ForPath returns the options suited to the kind of file at path.
func ForPath(path string) []WatcherOption {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return []WatcherOption{WithCompanions("-wal")}
	}
	return nil
}

// fileState is what polling compares between ticks.
type fileState struct {
	mtime time.Time
	size  int64
}

func (s fileState) differs(o fileState) bool {
	return !s.mtime.Equal(o.mtime) || s.size != o.size
}

// Watcher monitors one data source file.
type Watcher struct {
	path         string
	companions   []string
	debounce     time.Duration
	pollInterval time.Duration
	forcePoll    bool
	onError      func(error)

	mu        sync.Mutex
	started   bool
	polling   bool
	last      fileState
	cancel    context.CancelFunc
	fsw       *fsnotify.Watcher
	debouncer *Debouncer

	changes  atomic.Int64
	changeCh chan struct{}
	done     chan struct{} // closed by Stop
}

// NewWatcher creates a new file watcher for the given path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:         abs,
		debounce:     DefaultDebounceDuration,
		pollInterval: DefaultPollInterval,
		changeCh:     make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	close(w.done)
	for _, opt := range opts {
		opt(w)
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.onError == nil {
		w.onError = func(err error) { debug.Log("watcher: %s: %v", w.path, err) }
	}
	return w, nil
}

// Start begins watching. A file that does not exist yet is fine: its
// creation counts as the first change.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	state, err := w.stat()
	if err != nil && os.IsPermission(err) {
		return ErrPermission
	}
	w.last = state
	w.debouncer = NewDebouncer(w.debounce)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.polling = w.forcePoll || envBool(ForcePollEnvVar)
	if !w.polling {
		if fsw, err := w.openFsnotify(); err == nil {
			w.fsw = fsw
			go w.runFsnotify(ctx, fsw)
		} else {
			debug.Log("watcher: fsnotify unavailable, polling: %v", err)
			w.polling = true
		}
	}
	if w.polling {
		go w.runPolling(ctx)
	}

	debug.Log("watcher: watching %s (polling=%v)", w.path, w.polling)
	w.started = true
	return nil
}

// openFsnotify watches the parent directory, since exporters replace files
// by rename.
func (w *Watcher) openFsnotify() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return fsw, nil
}

// Stop stops watching the file and closes the channel returned by Done. The
// change channel stays open.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	w.cancel()
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	w.debouncer.Cancel()
	close(w.done)
	w.started = false
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Changed returns a channel that receives when the file changes.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Done returns a channel that is closed when the current run stops. It is
// already closed for a watcher that is not started.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Changes returns how many debounced changes have been reported.
func (w *Watcher) Changes() int64 {
	return w.changes.Load()
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return w.path
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// matches reports whether name is the watched file or one of its companions.
func (w *Watcher) matches(name string) bool {
	base, target := filepath.Base(name), filepath.Base(w.path)
	if base == target {
		return true
	}
	for _, suffix := range w.companions {
		if base == target+suffix {
			return true
		}
	}
	return false
}

func (w *Watcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Has(fsnotify.Remove) && filepath.Base(event.Name) == filepath.Base(w.path) {
				w.onError(ErrFileRemoved)
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.trigger()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state, err := w.stat()
		w.mu.Lock()
		prev := w.last
		changed := err == nil && state.differs(prev)
		if changed {
			w.last = state
		}
		w.mu.Unlock()

		switch {
		case err == nil:
			if changed {
				w.trigger()
			}
		case os.IsNotExist(err):
			if !prev.mtime.IsZero() {
				w.onError(ErrFileRemoved)
			}
		case os.IsPermission(err):
			w.onError(ErrPermission)
		default:
			w.onError(err)
		}
	}
}

// stat returns the newest mtime and combined size of the file and its
// companions. Only the main file is required to exist.
func (w *Watcher) stat() (fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileState{}, err
	}
	s := fileState{mtime: info.ModTime(), size: info.Size()}
	for _, suffix := range w.companions {
		if ci, err := os.Stat(w.path + suffix); err == nil {
			if ci.ModTime().After(s.mtime) {
				s.mtime = ci.ModTime()
			}
			s.size += ci.Size()
		}
	}
	return s, nil
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	d := w.debouncer
	w.mu.Unlock()
	d.Trigger(w.notifyChange)
}

func (w *Watcher) notifyChange() {
	if !w.IsStarted() {
		return
	}
	w.changes.Add(1)
	debug.Log("watcher: %s changed", w.path)
	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
