// Package manifest detects a package's name and version from the manifest
// file in its directory.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ErrNoManifest is returned when a directory holds no supported manifest.
var ErrNoManifest = errors.New("no package manifest found")

// Manifest is the package identity read from a manifest file.
type Manifest struct {
	Name    string
	Version string
	// File is the base name of the manifest that was read.
	File string
}

type parser struct {
	file  string
	parse func([]byte) (Manifest, error)
}

// parsers are tried in order; the first manifest present wins.
var parsers = []parser{
	{"package.json", ParsePackageJSON},
	{"pyproject.toml", ParsePyProject},
	{"Cargo.toml", ParseCargo},
}

// Detect reads the first supported manifest in dir.
func Detect(dir string) (Manifest, error) {
	for _, p := range parsers {
		data, err := os.ReadFile(filepath.Join(dir, p.file))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("reading %s: %w", p.file, err)
		}
		m, err := p.parse(data)
		if err != nil {
			return Manifest{}, fmt.Errorf("%s: %w", p.file, err)
		}
		m.File = p.file
		return m, nil
	}
	return Manifest{}, fmt.Errorf("%s: %w", dir, ErrNoManifest)
}

// ParsePackageJSON reads the name and version of an npm package.json.
func ParsePackageJSON(data []byte) (Manifest, error) {
	var doc struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Manifest{}, err
	}
	return checked(doc.Name, doc.Version)
}

// ParsePyProject reads [project] and falls back to [tool.poetry].
func ParsePyProject(data []byte) (Manifest, error) {
	var doc struct {
		Project struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name    string `toml:"name"`
				Version string `toml:"version"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return Manifest{}, err
	}
	if doc.Project.Name != "" {
		return checked(doc.Project.Name, doc.Project.Version)
	}
	return checked(doc.Tool.Poetry.Name, doc.Tool.Poetry.Version)
}

// ParseCargo reads the [package] table of a Cargo.toml.
func ParseCargo(data []byte) (Manifest, error) {
	var doc struct {
		Package struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"package"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return Manifest{}, err
	}
	return checked(doc.Package.Name, doc.Package.Version)
}

// checked requires a name. The version may be empty when it is computed at
// build time; callers must then supply it.
func checked(name, version string) (Manifest, error) {
	if name == "" {
		return Manifest{}, errors.New("package name not set")
	}
	return Manifest{Name: name, Version: version}, nil
}
