// Package config reads the build configuration from pyproject.toml.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Project is the subset of pyproject.toml this tool consumes.
type Project struct {
	BuildSystem BuildSystem `toml:"build-system"`
}

// BuildSystem mirrors the PEP 518 [build-system] table.
type BuildSystem struct {
	Requires     []string `toml:"requires"`
	BuildBackend string   `toml:"build-backend"`
	BackendPath  []string `toml:"backend-path"`
}

// Load reads a pyproject.toml. A missing file is not an error: build
// frontends fall back to a default backend in that case, so the zero
// Project is returned.
func Load(path string) (Project, error) {
	var proj Project
	_, err := toml.DecodeFile(path, &proj)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Project{}, nil
		}
		return Project{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return proj, nil
}
