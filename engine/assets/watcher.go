package assets

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/shaderpixel/engine/core"
)

// Target is told when its source file changed. *shader.Handle implements it.
type Target interface {
	Path() string
	MarkDirty()
}

// ShaderWatcher watches the directories of registered shader files and marks
// the owning targets dirty once a file has been quiet for the debounce
// interval. Several writes in a row produce one notification.
type ShaderWatcher struct {
	fsnotify *fsnotify.Watcher
	debounce time.Duration

	mutex   sync.RWMutex
	targets map[string][]Target
	deps    map[Target][]string
	dirs    map[string]bool
	pending map[string]time.Time

	// OnChange, when set, runs on the watcher goroutine after the targets of
	// path were marked dirty.
	OnChange func(path string)

	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

func NewShaderWatcher(debounce time.Duration) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce < core.MinDebounce {
		debounce = core.MinDebounce
	}
	return &ShaderWatcher{
		fsnotify: fsWatch,
		debounce: debounce,
		targets:  make(map[string][]Target),
		deps:     make(map[Target][]string),
		dirs:     make(map[string]bool),
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Watch registers t under its canonical path. Registering the same target
// twice is a no-op.
func (sw *ShaderWatcher) Watch(t Target) error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if sw.isClosed {
		return errors.New("shader watcher already closed")
	}
	return sw.add(filepath.Clean(t.Path()), t)
}

// Track replaces the files t depends on besides its own path, such as the
// includes of its last successful compile. A change to any of them marks t
// dirty.
func (sw *ShaderWatcher) Track(t Target, deps []string) error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if sw.isClosed {
		return errors.New("shader watcher already closed")
	}

	own := filepath.Clean(t.Path())
	for _, dep := range sw.deps[t] {
		sw.remove(dep, t)
	}
	delete(sw.deps, t)

	var tracked []string
	for _, dep := range deps {
		dep = filepath.Clean(dep)
		if dep == own {
			continue
		}
		if err := sw.add(dep, t); err != nil {
			return err
		}
		tracked = append(tracked, dep)
	}
	if len(tracked) > 0 {
		sw.deps[t] = tracked
	}
	return nil
}

func (sw *ShaderWatcher) add(path string, t Target) error {
	for _, existing := range sw.targets[path] {
		if existing == t {
			return nil
		}
	}
	dir := filepath.Dir(path)
	if !sw.dirs[dir] {
		// editors often replace files, so watch the directory rather than the file
		if err := sw.fsnotify.Add(dir); err != nil {
			return err
		}
		sw.dirs[dir] = true
	}
	sw.targets[path] = append(sw.targets[path], t)
	return nil
}

func (sw *ShaderWatcher) remove(path string, t Target) {
	kept := sw.targets[path][:0]
	for _, existing := range sw.targets[path] {
		if existing != t {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(sw.targets, path)
		delete(sw.pending, path)
		return
	}
	sw.targets[path] = kept
}

// Paths returns the watched file paths.
func (sw *ShaderWatcher) Paths() []string {
	sw.mutex.RLock()
	defer sw.mutex.RUnlock()
	out := make([]string, 0, len(sw.targets))
	for p := range sw.targets {
		out = append(out, p)
	}
	return out
}

// Start runs the event loop until ctx is done or Close is called.
func (sw *ShaderWatcher) Start(ctx context.Context) {
	go sw.loop(ctx)
}

func (sw *ShaderWatcher) loop(ctx context.Context) {
	defer close(sw.stopped)
	ticker := time.NewTicker(sw.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				sw.notify(filepath.Clean(e.Name), time.Now())
			}

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case now := <-ticker.C:
			sw.flush(now)

		case <-ctx.Done():
			return

		case <-sw.done:
			return
		}
	}
}

// notify records a change of path at time at. Unknown paths are ignored.
func (sw *ShaderWatcher) notify(path string, at time.Time) bool {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if _, ok := sw.targets[path]; !ok {
		return false
	}
	sw.pending[path] = at
	return true
}

// flush marks dirty the targets of every path quiet for the debounce
// interval and returns those paths.
func (sw *ShaderWatcher) flush(now time.Time) []string {
	sw.mutex.Lock()
	var ready []string
	var targets []Target
	for path, at := range sw.pending {
		if now.Sub(at) < sw.debounce {
			continue
		}
		delete(sw.pending, path)
		ready = append(ready, path)
		targets = append(targets, sw.targets[path]...)
	}
	sw.mutex.Unlock()

	for _, t := range targets {
		t.MarkDirty()
	}
	for _, path := range ready {
		core.LogInfo("shader changed: %s", path)
		if sw.OnChange != nil {
			sw.OnChange(path)
		}
	}
	return ready
}

// Close stops the event loop and releases the OS watcher.
func (sw *ShaderWatcher) Close() error {
	sw.mutex.Lock()
	if sw.isClosed {
		sw.mutex.Unlock()
		return nil
	}
	sw.isClosed = true
	close(sw.done)
	sw.mutex.Unlock()
	return sw.fsnotify.Close()
}

// Wait blocks until the event loop started by Start has returned.
func (sw *ShaderWatcher) Wait() {
	<-sw.stopped
}
