//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Runs the backend conformance suite only.
func (Test) Conformance() error {
	return sh.RunV("go", "test", "-run", "^TestConformance", "./engine/renderer/skinner/...")
}

// Runs go vet over the module.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

type Bench mg.Namespace

// Runs skinbench on the procedural column with every backend on the software device.
func (Bench) Column() error {
	mg.Deps(Vet)
	fmt.Println("Benchmarking procedural column...")
	return sh.RunV("go", "run", "./cmd/skinbench", "-backend", "all", "-soft-gpu", "-frames", "240", "-profile")
}

// Runs skinbench on the glTF file named by the MESH environment variable.
func (Bench) Mesh() error {
	mesh := os.Getenv("MESH")
	if mesh == "" {
		return fmt.Errorf("MESH is not set")
	}
	return sh.RunV("go", "run", "./cmd/skinbench", "-backend", "all", "-soft-gpu", "-mesh", mesh, "-profile")
}

// Runs skinbench against the WebGPU device.
func (Bench) WGPU() error {
	return sh.RunV("go", "run", "./cmd/skinbench", "-backend", "gpu", "-soft-gpu=false", "-frames", "240", "-profile")
}
