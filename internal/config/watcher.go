package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls the config file and reports content changes, which is how
// log level and segmenter tuning get adjusted without a restart. Polling
// keeps the dependency surface small; a few seconds of latency is fine for
// operator-driven edits.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	last     fileStamp
	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp identifies one observed state of the config file. The mtime is a
// cheap pre-check; the hash decides whether content actually changed.
type fileStamp struct {
	mtime time.Time
	hash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once, then polls it in a background goroutine and
// calls onChange(old, new) for every content change that parses and
// validates. Invalid edits are logged and skipped; the previous config stays
// current.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.snapshot()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.last = stamp

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check compares the file against the last observed stamp and swaps in the
// new config when the content differs.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.last.mtime
	w.mu.Unlock()

	// Unchanged mtime means unchanged content; skip the read and hash.
	if info.ModTime().Equal(mtime) {
		return
	}

	cfg, stamp, err := w.snapshot()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if stamp.hash == w.last.hash {
		// Touched but not edited.
		w.last.mtime = stamp.mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.last = stamp
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// snapshot reads, parses, and validates the file, returning the config with
// the stamp identifying the bytes it came from.
func (w *Watcher) snapshot() (*Config, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fileStamp{}, err
	}
	data := buf.Bytes()

	cfg, err := LoadFromReader(bytes.NewReader(expandEnv(data)))
	if err != nil {
		return nil, fileStamp{}, err
	}

	return cfg, fileStamp{mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}
