package shader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// GLSLC compiles GLSL through the glslc executable. Includes are expanded
// before the source is piped to the compiler.
type GLSLC struct {
	Binary       string
	IncludeDepth int
}

func NewGLSLC(binary string, includeDepth int) *GLSLC {
	if binary == "" {
		binary = "glslc"
	}
	return &GLSLC{Binary: binary, IncludeDepth: includeDepth}
}

func stageFlag(stage metadata.ShaderStage) string {
	if stage == metadata.ShaderStageFragment {
		return "-fshader-stage=frag"
	}
	return "-fshader-stage=vert"
}

func (g *GLSLC) Compile(ctx context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error) {
	src, files, err := Preprocess(path, g.IncludeDepth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrShaderCompile, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.Binary, stageFlag(stage), "--target-env=vulkan1.0", "-O", "-o", "-", "-")
	cmd.Stdin = strings.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", path, core.ErrShaderCompile, strings.TrimSpace(stderr.String()))
	}

	words, err := Words(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrShaderCompile, err)
	}
	bindings, err := Bindings(words)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrShaderCompile, err)
	}
	return &metadata.ShaderModule{
		Path:         path,
		Stage:        stage,
		Code:         words,
		Bindings:     bindings,
		Dependencies: files[1:],
	}, nil
}
