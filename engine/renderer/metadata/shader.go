package metadata

/** @brief The pipeline stage a shader module runs in. */
type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

func (s ShaderStage) String() string {
	if s == ShaderStageFragment {
		return "fragment"
	}
	return "vertex"
}

/**
 * @brief Descriptor binding slots shared by every scene shader.
 * All bindings live in descriptor set 0.
 */
const (
	/** @brief Model, view and projection matrices. */
	BindingVertexUniform uint32 = 0
	/** @brief Light position, packed option values and time. */
	BindingFragmentUniform uint32 = 1
	/** @brief Optional sampled texture. */
	BindingTexture uint32 = 2
	/** @brief Mirror feedback image read as an input attachment. */
	BindingMirror uint32 = 3
)

/**
 * @brief A compiled shader stage. Modules are immutable once built and may
 * be read concurrently by any number of pipelines.
 */
type ShaderModule struct {
	/** @brief Source file the module was compiled from, empty for built-in modules. */
	Path  string
	Stage ShaderStage
	/** @brief SPIR-V words. */
	Code []uint32
	/** @brief Descriptor bindings of set 0 the module declares. */
	Bindings []uint32
	/** @brief Canonical paths of the files the source included. */
	Dependencies []string
}

// Uses reports whether the module declares binding.
func (m *ShaderModule) Uses(binding uint32) bool {
	if m == nil {
		return false
	}
	for _, b := range m.Bindings {
		if b == binding {
			return true
		}
	}
	return false
}
