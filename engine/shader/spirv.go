package shader

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// SPIRVExt marks precompiled shader files.
const SPIRVExt = ".spv"

// LoadSPIRV reads a precompiled module into a static handle. Precompiled
// shaders are not watched and never reload.
func LoadSPIRV(path string, stage metadata.ShaderStage) (*Handle, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	words, err := Words(code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrShaderCompile, err)
	}
	bindings, err := Bindings(words)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrShaderCompile, err)
	}
	return NewStatic(&metadata.ShaderModule{
		Path:     path,
		Stage:    stage,
		Code:     words,
		Bindings: bindings,
	}), nil
}
