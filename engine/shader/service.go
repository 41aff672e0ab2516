package shader

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
	"github.com/spaghettifunk/shaderpixel/engine/systems"
)

// Compiler turns a shader source file into a module.
type Compiler interface {
	Compile(ctx context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error)

func (f CompilerFunc) Compile(ctx context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error) {
	return f(ctx, path, stage)
}

// DefaultQueueSize bounds the number of handles waiting for the compiler.
const DefaultQueueSize = 256

// Service is the process-wide compile queue. Every compile of every handle
// runs on its single worker, one at a time.
type Service struct {
	compiler Compiler
	jobs     *systems.JobSystem
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewService(compiler Compiler, queueSize int) (*Service, error) {
	if compiler == nil {
		return nil, fmt.Errorf("shader service requires a compiler")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	jobs, err := systems.NewJobSystem(1, queueSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{compiler: compiler, jobs: jobs, ctx: ctx, cancel: cancel}, nil
}

// Shutdown aborts a running compile, drains the queue and stops the worker.
func (s *Service) Shutdown() error {
	s.cancel()
	return s.jobs.Shutdown()
}

func (s *Service) enqueue(h *Handle) error {
	return s.jobs.TrySubmit(systems.JobTask{
		Name: h.path,
		Run: func() error {
			core.LogDebug("compiling %s shader %s", h.stage, h.path)
			module, err := s.compiler.Compile(s.ctx, h.path, h.stage)
			h.finish(module, err)
			return err
		},
		OnComplete: func() {
			core.LogInfo("compiled %s", h.path)
		},
	})
}

// CompileStatic compiles path synchronously into a handle that is never
// reloaded. It backs the environment pipeline.
func CompileStatic(ctx context.Context, compiler Compiler, path string, stage metadata.ShaderStage) (*Handle, error) {
	module, err := compiler.Compile(ctx, path, stage)
	if err != nil {
		return nil, err
	}
	return NewStatic(module), nil
}
