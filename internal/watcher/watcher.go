// Package watcher provides a debounced filesystem watcher built on
// fsnotify, organized as a per-session registry feeding reviewd's
// event bus.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// IgnoreFunc reports whether a path should be ignored by the watcher.
type IgnoreFunc func(path string) bool

// DefaultIgnore skips VCS metadata and common build/dependency directories.
func DefaultIgnore(path string) bool {
	base := filepath.Base(path)
	switch base {
	case ".git", "node_modules", "vendor", ".idea", ".vscode":
		return true
	}
	return false
}

// Callback is invoked with the debounced, deduplicated set of changed
// paths once a watch's quiet interval has elapsed.
type Callback func(paths []string)

// watch is a single active filesystem watch for one session's repo root.
type watch struct {
	cancel    context.CancelFunc
	refCount  int
}

// Registry manages one fsnotify watcher per watched directory,
// reference-counted across subscribers.
type Registry struct {
	mu      sync.Mutex
	watches map[string]*watch
	debounce time.Duration
	ignore   IgnoreFunc
	log      *logrus.Entry
}

// NewRegistry constructs a watcher registry with the given debounce
// interval (default 300ms) and ignore predicate.
func NewRegistry(debounce time.Duration, ignore IgnoreFunc, log *logrus.Entry) *Registry {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	if ignore == nil {
		ignore = DefaultIgnore
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{watches: map[string]*watch{}, debounce: debounce, ignore: ignore, log: log}
}

// Subscribe starts (or attaches to an already-running) watch on dir,
// invoking cb on every debounced batch of changes. The returned
// unsubscribe func decrements the reference count, tearing the watch
// down once nobody else is subscribed.
func (r *Registry) Subscribe(dir string, cb Callback) (unsubscribe func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.watches[dir]; ok {
		w.refCount++
		return r.unsubscribeFunc(dir), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := addRecursive(fw, dir, r.ignore); err != nil {
		fw.Close()
		cancel()
		return nil, err
	}

	r.watches[dir] = &watch{cancel: cancel, refCount: 1}
	go r.run(ctx, fw, dir, cb)

	return r.unsubscribeFunc(dir), nil
}

func (r *Registry) unsubscribeFunc(dir string) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		w, ok := r.watches[dir]
		if !ok {
			return
		}
		w.refCount--
		if w.refCount <= 0 {
			w.cancel()
			delete(r.watches, dir)
		}
	}
}

// CloseAll cancels every active watch regardless of reference count,
// used on process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for dir, w := range r.watches {
		w.cancel()
		delete(r.watches, dir)
	}
}

func addRecursive(fw *fsnotify.Watcher, root string, ignore IgnoreFunc) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if ignore(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (r *Registry) run(ctx context.Context, fw *fsnotify.Watcher, dir string, cb Callback) {
	defer fw.Close()

	var mu sync.Mutex
	pending := map[string]bool{}
	var timer *time.Timer

	flush := func() {
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = map[string]bool{}
		mu.Unlock()
		cb(paths)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if r.ignore(event.Name) {
				continue
			}
			mu.Lock()
			pending[relPath(dir, event.Name)] = true
			mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(r.debounce, flush)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			r.log.WithError(err).Warn("watcher error")
		}
	}
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
