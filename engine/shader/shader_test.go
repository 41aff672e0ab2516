package shader

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// gatedCompiler blocks every compile until release receives a value and
// fails while fail is set.
type gatedCompiler struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
}

func newGatedCompiler() *gatedCompiler {
	return &gatedCompiler{release: make(chan struct{}, 8)}
}

func (c *gatedCompiler) Compile(ctx context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error) {
	n := c.calls.Add(1)
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.fail.Load() {
		return nil, core.ErrShaderCompile
	}
	return &metadata.ShaderModule{Stage: stage, Code: []uint32{uint32(n)}}, nil
}

func waitIdle(t *testing.T, h *Handle) {
	t.Helper()
	require.Eventually(t, func() bool { return !h.Compiling() }, 2*time.Second, time.Millisecond)
}

func newService(t *testing.T, c Compiler) *Service {
	t.Helper()
	s, err := NewService(c, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestHandleStartsDirty(t *testing.T) {
	c := newGatedCompiler()
	h := NewHandle(newService(t, c), "art.frag", metadata.ShaderStageFragment)

	assert.Nil(t, h.Module())
	assert.True(t, h.Reload(false))
	c.release <- struct{}{}
	waitIdle(t, h)

	require.NotNil(t, h.Module())
	assert.Equal(t, uint64(1), h.Generation())
	assert.Equal(t, h.Path(), h.Module().Path)
	assert.True(t, filepath.IsAbs(h.Path()))
}

func TestReloadIsIdempotentWhileCompiling(t *testing.T) {
	c := newGatedCompiler()
	h := NewHandle(newService(t, c), "art.frag", metadata.ShaderStageFragment)

	assert.True(t, h.Reload(false))
	assert.True(t, h.Reload(false))
	assert.True(t, h.Reload(true))
	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.release <- struct{}{}
	waitIdle(t, h)
	assert.False(t, h.Reload(false))
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestDirtyDuringCompileTriggersOneMoreCompile(t *testing.T) {
	c := newGatedCompiler()
	h := NewHandle(newService(t, c), "art.vert", metadata.ShaderStageVertex)

	require.True(t, h.Reload(false))
	h.MarkDirty()
	c.release <- struct{}{}
	waitIdle(t, h)

	assert.True(t, h.Reload(false))
	c.release <- struct{}{}
	waitIdle(t, h)
	assert.False(t, h.Reload(false))
	assert.Equal(t, int32(2), c.calls.Load())
	assert.Equal(t, uint64(2), h.Generation())
}

func TestFailedCompileKeepsLastModule(t *testing.T) {
	c := newGatedCompiler()
	h := NewHandle(newService(t, c), "art.frag", metadata.ShaderStageFragment)

	require.True(t, h.Reload(false))
	c.release <- struct{}{}
	waitIdle(t, h)
	good := h.Module()
	require.NotNil(t, good)

	c.fail.Store(true)
	h.MarkDirty()
	require.True(t, h.Reload(false))
	c.release <- struct{}{}
	waitIdle(t, h)

	assert.Same(t, good, h.Module())
	assert.ErrorIs(t, h.Err(), core.ErrShaderCompile)
	assert.Equal(t, uint64(1), h.Generation())
	// not retried without a new change
	assert.False(t, h.Reload(false))
}

func TestCompilesAreSerialized(t *testing.T) {
	var running, peak atomic.Int32
	compiler := CompilerFunc(func(ctx context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return &metadata.ShaderModule{Stage: stage}, nil
	})
	s := newService(t, compiler)

	var handles []*Handle
	for _, name := range []string{"a.frag", "b.frag", "c.frag", "d.frag"} {
		h := NewHandle(s, name, metadata.ShaderStageFragment)
		require.True(t, h.Reload(false))
		handles = append(handles, h)
	}
	for _, h := range handles {
		waitIdle(t, h)
		assert.NotNil(t, h.Module())
	}
	assert.Equal(t, int32(1), peak.Load())
}

func TestStaticHandle(t *testing.T) {
	module := &metadata.ShaderModule{Stage: metadata.ShaderStageVertex, Code: []uint32{1}}
	h := NewStatic(module)
	h.MarkDirty()
	assert.False(t, h.Reload(true))
	assert.Same(t, module, h.Module())
	assert.True(t, h.Static())
	assert.Equal(t, uint64(1), h.Generation())
}

func TestCompileStatic(t *testing.T) {
	fail := errors.New("no compiler")
	_, err := CompileStatic(context.Background(), CompilerFunc(func(context.Context, string, metadata.ShaderStage) (*metadata.ShaderModule, error) {
		return nil, fail
	}), "env.vert", metadata.ShaderStageVertex)
	assert.ErrorIs(t, err, fail)

	h, err := CompileStatic(context.Background(), CompilerFunc(func(_ context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error) {
		return &metadata.ShaderModule{Path: path, Stage: stage}, nil
	}), "env.vert", metadata.ShaderStageVertex)
	require.NoError(t, err)
	assert.NotNil(t, h.Module())
	assert.False(t, h.Reload(true))
}

func TestReloadAfterShutdownFails(t *testing.T) {
	s, err := NewService(newGatedCompiler(), 1)
	require.NoError(t, err)
	require.NoError(t, s.Shutdown())

	h := NewHandle(s, "late.frag", metadata.ShaderStageFragment)
	assert.False(t, h.Reload(false))
	assert.False(t, h.Compiling())
}

func TestConcurrentReadsDuringCompile(t *testing.T) {
	c := newGatedCompiler()
	h := NewHandle(newService(t, c), "art.frag", metadata.ShaderStageFragment)
	require.True(t, h.Reload(false))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.Module()
				_ = h.Reload(false)
			}
		}()
	}
	c.release <- struct{}{}
	wg.Wait()
	waitIdle(t, h)
	assert.NotNil(t, h.Module())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPreprocessResolvesRelativeIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "art", "fractal.frag"), "#version 450\n#extension GL_GOOGLE_include_directive : require\n#include \"../common/noise.glsl\"\nvoid main() {}\n")
	writeFile(t, filepath.Join(dir, "common", "noise.glsl"), "#include <hash.glsl>\nfloat noise() { return hash(); }\n")
	writeFile(t, filepath.Join(dir, "common", "hash.glsl"), "float hash() { return 0.5; }\n")

	src, files, err := Preprocess(filepath.Join(dir, "art", "fractal.frag"), 0)
	require.NoError(t, err)
	assert.Contains(t, src, "float hash() { return 0.5; }")
	assert.Contains(t, src, "float noise()")
	assert.Contains(t, src, "// #include \"../common/noise.glsl\"")
	assert.NotContains(t, src, "\n#extension GL_GOOGLE_include_directive")
	assert.Less(t, strings.Index(src, "float hash()"), strings.Index(src, "float noise()"))
	assert.Len(t, files, 3)
}

func TestPreprocessRejectsCycles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.glsl"), "#include \"b.glsl\"\n")
	writeFile(t, filepath.Join(dir, "b.glsl"), "#include \"a.glsl\"\n")

	_, _, err := Preprocess(filepath.Join(dir, "a.glsl"), 16)
	assert.ErrorIs(t, err, core.ErrIncludeDepth)
}

func TestPreprocessDepthLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "0.glsl"), "#include \"1.glsl\"\n")
	writeFile(t, filepath.Join(dir, "1.glsl"), "#include \"2.glsl\"\n")
	writeFile(t, filepath.Join(dir, "2.glsl"), "float x;\n")

	_, _, err := Preprocess(filepath.Join(dir, "0.glsl"), 2)
	assert.NoError(t, err)
	_, _, err = Preprocess(filepath.Join(dir, "0.glsl"), 1)
	assert.ErrorIs(t, err, core.ErrIncludeDepth)
}

func TestPreprocessErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.frag"), "#include missing-quotes\n")
	_, _, err := Preprocess(filepath.Join(dir, "bad.frag"), 0)
	assert.ErrorContains(t, err, "malformed include")

	writeFile(t, filepath.Join(dir, "gone.frag"), "#include \"nope.glsl\"\n")
	_, _, err = Preprocess(filepath.Join(dir, "gone.frag"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func module(words ...uint32) []uint32 {
	return append([]uint32{spirvMagic, 0x00010000, 0, 100, 0}, words...)
}

func decorate(target, decoration, value uint32) []uint32 {
	return []uint32{4<<16 | opDecorate, target, decoration, value}
}

func TestBindings(t *testing.T) {
	var body []uint32
	body = append(body, decorate(10, decorationDescriptorSet, 0)...)
	body = append(body, decorate(10, decorationBinding, 2)...)
	body = append(body, decorate(11, decorationBinding, 1)...)
	body = append(body, decorate(12, decorationDescriptorSet, 1)...)
	body = append(body, decorate(12, decorationBinding, 0)...)
	// OpDecorate Location 0, not a binding
	body = append(body, decorate(13, 30, 0)...)
	// OpNop
	body = append(body, 1<<16|0)

	got, err := Bindings(module(body...))
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, got)
}

func TestBindingsRejectsTruncated(t *testing.T) {
	_, err := Bindings(module(4<<16|opDecorate, 1))
	assert.Error(t, err)
	_, err = Bindings([]uint32{1, 2, 3})
	assert.Error(t, err)
}

func TestWords(t *testing.T) {
	raw := make([]byte, 0, 24)
	for _, w := range module(1<<16 | 0) {
		raw = binary.LittleEndian.AppendUint32(raw, w)
	}
	words, err := Words(raw)
	require.NoError(t, err)
	assert.Len(t, words, 6)

	_, err = Words(raw[:21])
	assert.Error(t, err)
	raw[0] = 0
	_, err = Words(raw)
	assert.Error(t, err)
}

func TestLoadSPIRV(t *testing.T) {
	dir := t.TempDir()
	var raw []byte
	for _, w := range module(decorate(7, decorationBinding, 2)...) {
		raw = binary.LittleEndian.AppendUint32(raw, w)
	}
	path := filepath.Join(dir, "text.frag.spv")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	h, err := LoadSPIRV(path, metadata.ShaderStageFragment)
	require.NoError(t, err)
	assert.True(t, h.Static())
	assert.Equal(t, metadata.ShaderStageFragment, h.Stage())
	require.NotNil(t, h.Module())
	assert.Equal(t, []uint32{2}, h.Module().Bindings)
	assert.False(t, h.Reload(true))

	bad := filepath.Join(dir, "bad.spv")
	require.NoError(t, os.WriteFile(bad, raw[:10], 0o644))
	_, err = LoadSPIRV(bad, metadata.ShaderStageFragment)
	assert.ErrorIs(t, err, core.ErrShaderCompile)

	_, err = LoadSPIRV(filepath.Join(dir, "none.spv"), metadata.ShaderStageVertex)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOnCompiledRunsAfterSuccessOnly(t *testing.T) {
	c := newGatedCompiler()
	h := NewHandle(newService(t, c), "hooked.frag", metadata.ShaderStageFragment)
	var seen atomic.Int32
	h.OnCompiled(func(m *metadata.ShaderModule) {
		assert.Same(t, h.Module(), m)
		seen.Add(1)
	})

	c.release <- struct{}{}
	require.True(t, h.Reload(false))
	require.Eventually(t, func() bool { return seen.Load() == 1 }, 2*time.Second, time.Millisecond)

	c.fail.Store(true)
	c.release <- struct{}{}
	require.True(t, h.Reload(true))
	require.Eventually(t, func() bool { return c.calls.Load() == 2 }, 2*time.Second, time.Millisecond)
	waitIdle(t, h)
	assert.Error(t, h.Err())
	assert.Equal(t, int32(1), seen.Load())
}
