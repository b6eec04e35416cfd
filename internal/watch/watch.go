// Package watch picks up recordings dropped into a directory and hands each
// one to a handler once it has stopped growing.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one settled file. Errors are logged; the file is not
// retried.
type Handler func(ctx context.Context, path string) error

var DefaultExtensions = []string{".wav", ".mp3", ".m4a", ".mp4", ".webm", ".ogg", ".flac"}

type candidate struct {
	size    int64
	changed time.Time
}

type Watcher struct {
	dir    string
	handle Handler
	exts   map[string]bool
	settle time.Duration
	poll   time.Duration
	skip   func(path string) bool
	logger *slog.Logger
	now    func() time.Time

	pending map[string]candidate
	done    map[string]bool
}

type Option func(*Watcher)

// WithSettle sets how long a file's size must stay unchanged.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithSkip excludes files, for example ones that already have output.
func WithSkip(skip func(path string) bool) Option {
	return func(w *Watcher) { w.skip = skip }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

func New(dir string, handle Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		handle:  handle,
		exts:    make(map[string]bool),
		settle:  2 * time.Second,
		poll:    time.Second,
		logger:  slog.Default(),
		now:     time.Now,
		pending: make(map[string]candidate),
		done:    make(map[string]bool),
	}
	for _, ext := range DefaultExtensions {
		w.exts[ext] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. Files already in the directory are picked
// up too. Without fsnotify support it falls back to scanning every poll
// interval.
func (w *Watcher) Run(ctx context.Context) error {
	w.scan()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify not available, falling back to polling", "error", err)
		return w.runPolling(ctx)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		w.logger.Warn("cannot watch directory, falling back to polling", "dir", w.dir, "error", err)
		return w.runPolling(ctx)
	}
	w.logger.Info("watching for recordings", "dir", w.dir, "mode", "fsnotify")

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				w.logger.Warn("fsnotify watcher closed, switching to polling")
				return w.runPolling(ctx)
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.observe(event.Name)
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(w.pending, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				w.logger.Warn("fsnotify error channel closed, switching to polling")
				return w.runPolling(ctx)
			}
			w.logger.Error("file watcher error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	w.logger.Info("watching for recordings", "dir", w.dir, "mode", "polling", "interval", w.poll)
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan()
			w.flush(ctx)
		}
	}
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("cannot list directory", "dir", w.dir, "error", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.observe(filepath.Join(w.dir, e.Name()))
		}
	}
}

// observe records the current size of path, restarting its settle timer when
// the size changed.
func (w *Watcher) observe(path string) {
	if w.done[path] || !w.exts[strings.ToLower(filepath.Ext(path))] {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		delete(w.pending, path)
		return
	}
	if c, ok := w.pending[path]; ok && c.size == info.Size() {
		return
	}
	w.pending[path] = candidate{size: info.Size(), changed: w.now()}
}

// flush re-checks pending files and hands over those that have settled.
func (w *Watcher) flush(ctx context.Context) {
	for path := range w.pending {
		w.observe(path)
	}
	now := w.now()
	for path, c := range w.pending {
		if c.size == 0 || now.Sub(c.changed) < w.settle {
			continue
		}
		delete(w.pending, path)
		w.done[path] = true
		if w.skip != nil && w.skip(path) {
			w.logger.Debug("skipping file", "path", path)
			continue
		}
		w.logger.Info("recording ready", "path", path, "bytes", c.size)
		if err := w.handle(ctx, path); err != nil {
			w.logger.Error("processing recording failed", "path", path, "error", err)
		}
	}
}
