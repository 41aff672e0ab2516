package metadata

/**
 * @brief Describes an RGBA8 texture upload.
 */
type TextureDesc struct {
	Name   string
	Width  uint32
	Height uint32
	/** @brief The number of mip levels of the image. */
	MipLevels uint32
	/**
	 * @brief Tightly packed RGBA8 pixels per level. When only the base level
	 * is given and MipLevels > 1, the device generates the chain by blitting.
	 */
	Levels [][]byte
}
