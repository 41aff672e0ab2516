package shader

import (
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	spirvMagic = 0x07230203

	opDecorate = 71

	decorationBinding       = 33
	decorationDescriptorSet = 34
)

// Words reinterprets little-endian SPIR-V bytes.
func Words(code []byte) ([]uint32, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spir-v: invalid size %d", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("spir-v: bad magic %#08x", words[0])
	}
	return words, nil
}

// Bindings returns the sorted binding numbers declared in descriptor set 0.
// Only decorations are inspected; a binding without a DescriptorSet
// decoration belongs to set 0.
func Bindings(words []uint32) ([]uint32, error) {
	if len(words) < 5 || words[0] != spirvMagic {
		return nil, fmt.Errorf("spir-v: missing header")
	}
	binding := map[uint32]uint32{}
	set := map[uint32]uint32{}
	for i := 5; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xffff
		if count == 0 || i+count > len(words) {
			return nil, fmt.Errorf("spir-v: truncated instruction at word %d", i)
		}
		if op == opDecorate && count >= 4 {
			target, decoration, value := words[i+1], words[i+2], words[i+3]
			switch decoration {
			case decorationBinding:
				binding[target] = value
			case decorationDescriptorSet:
				set[target] = value
			}
		}
		i += count
	}

	var out []uint32
	for id, b := range binding {
		if set[id] != 0 || slices.Contains(out, b) {
			continue
		}
		out = append(out, b)
	}
	slices.Sort(out)
	return out, nil
}
