package shader

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// State of a Handle as seen by callers.
type State int

const (
	// StateIdle: no compile queued or running.
	StateIdle State = iota
	// StateCompiling: a compile is queued or running.
	StateCompiling
)

func (s State) String() string {
	if s == StateCompiling {
		return "compiling"
	}
	return "idle"
}

// Handle is a shader stage backed by a source file that recompiles in the
// background when the file changes. The render thread reads the last good
// module without ever waiting for the compiler.
//
// A Handle is shared by every pipeline using the same source file.
type Handle struct {
	path    string
	stage   metadata.ShaderStage
	service *Service

	mu         sync.RWMutex
	module     *metadata.ShaderModule
	dirty      bool
	state      State
	generation uint64
	lastErr    error
	onCompiled func(*metadata.ShaderModule)
}

// NewHandle returns a dirty handle: the first Reload queues the initial compile.
func NewHandle(service *Service, path string, stage metadata.ShaderStage) *Handle {
	return &Handle{
		path:    Canonical(path),
		stage:   stage,
		service: service,
		dirty:   true,
	}
}

// NewStatic wraps a module that never reloads.
func NewStatic(module *metadata.ShaderModule) *Handle {
	h := &Handle{stage: module.Stage, module: module, generation: 1}
	if module.Path != "" {
		h.path = Canonical(module.Path)
	}
	return h
}

// Canonical returns the absolute, symlink-resolved form of path, or the
// cleaned absolute path when it cannot be resolved.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func (h *Handle) Path() string {
	return h.path
}

func (h *Handle) Stage() metadata.ShaderStage {
	return h.stage
}

// Static reports a handle that never compiles.
func (h *Handle) Static() bool {
	return h.service == nil
}

// MarkDirty records a change of the source file. Safe from any goroutine.
func (h *Handle) MarkDirty() {
	if h.Static() {
		return
	}
	h.mu.Lock()
	h.dirty = true
	h.mu.Unlock()
}

// Reload queues a compile when the source changed or forced is set. It
// reports whether a compile is queued or running after the call. A handle
// never has more than one compile in flight; the dirty flag is cleared
// before queuing so a failing source is not retried until it changes again.
func (h *Handle) Reload(forced bool) bool {
	if h.Static() {
		return false
	}

	h.mu.Lock()
	if h.state == StateCompiling {
		h.mu.Unlock()
		return true
	}
	if !h.dirty && !forced {
		h.mu.Unlock()
		return false
	}
	h.dirty = false
	h.state = StateCompiling
	h.mu.Unlock()

	if err := h.service.enqueue(h); err != nil {
		core.LogWarn("could not queue %s: %s", h.path, err)
		h.mu.Lock()
		h.state = StateIdle
		h.dirty = true
		h.mu.Unlock()
		return false
	}
	return true
}

// OnCompiled sets fn to run on the compile worker after every successful
// compile, with the new module.
func (h *Handle) OnCompiled(fn func(*metadata.ShaderModule)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCompiled = fn
}

func (h *Handle) finish(module *metadata.ShaderModule, err error) {
	h.mu.Lock()
	fn := h.install(module, err)
	h.mu.Unlock()
	if fn != nil {
		fn(module)
	}
}

// install records the compile result and returns the hook to run, if any.
// h.mu must be held.
func (h *Handle) install(module *metadata.ShaderModule, err error) func(*metadata.ShaderModule) {
	h.state = StateIdle
	if err == nil && module == nil {
		err = fmt.Errorf("%s: compiler returned no module: %w", h.path, core.ErrShaderCompile)
	}
	if err != nil {
		// keep the last good module
		h.lastErr = err
		return nil
	}
	if module.Path == "" {
		module.Path = h.path
	}
	h.module = module
	h.generation++
	h.lastErr = nil
	return h.onCompiled
}

// Module returns the last successfully compiled module, nil before the first.
func (h *Handle) Module() *metadata.ShaderModule {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.module
}

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) Compiling() bool {
	return h.State() == StateCompiling
}

// Generation counts successful compiles. Pipelines compare it to decide
// whether their device object is stale.
func (h *Handle) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// Err is the error of the last compile, nil after a success.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}
