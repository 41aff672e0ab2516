//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Checks the shaders and runs the gallery with config.toml.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "config.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the gallery with the Vulkan validation layers and debug logging.
func (Run) Debug() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("run", ".", "-config", "config.toml", "-validation", "-log", "debug"), withStream())
	return err
}
