//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every shader with glslc so syntax errors show up before running.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the shaderpixel binary into bin/.
func (Build) Binary() error {
	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "shaderpixel"), "."), withStream())
	return err
}

func buildShaders() error {
	files, err := shaderFiles(shaderDir)
	if err != nil {
		return err
	}
	out, err := os.MkdirTemp("", "shaderpixel-spv")
	if err != nil {
		return err
	}
	defer os.RemoveAll(out)

	var failed int
	for i, f := range files {
		spv := filepath.Join(out, fmt.Sprintf("%d.spv", i))
		if _, err := executeCmd("glslc", withArgs(f, "-o", spv)); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d shaders failed to compile", failed, len(files))
	}
	fmt.Printf("%d shaders compiled\n", len(files))
	return nil
}
