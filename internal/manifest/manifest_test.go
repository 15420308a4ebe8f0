package manifest_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/waabox/pakdeck/internal/manifest"
)

func TestParsePackageJSON(t *testing.T) {
	m, err := manifest.ParsePackageJSON([]byte(`{"name": "@scope/demo", "version": "1.4.0", "private": false}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "@scope/demo" {
		t.Errorf("expected name '@scope/demo', got '%s'", m.Name)
	}
	if m.Version != "1.4.0" {
		t.Errorf("expected version '1.4.0', got '%s'", m.Version)
	}
}

func TestParsePyProject_Project(t *testing.T) {
	m, err := manifest.ParsePyProject([]byte("[project]\nname = \"demo\"\nversion = \"0.3.1\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "demo" || m.Version != "0.3.1" {
		t.Errorf("got %+v", m)
	}
}

func TestParsePyProject_Poetry(t *testing.T) {
	m, err := manifest.ParsePyProject([]byte("[tool.poetry]\nname = \"legacy\"\nversion = \"2.0.0\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "legacy" || m.Version != "2.0.0" {
		t.Errorf("got %+v", m)
	}
}

func TestParseCargo(t *testing.T) {
	m, err := manifest.ParseCargo([]byte("[package]\nname = \"crate-demo\"\nversion = \"0.1.0\"\nedition = \"2021\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "crate-demo" || m.Version != "0.1.0" {
		t.Errorf("got %+v", m)
	}
}

func TestParse_MissingName(t *testing.T) {
	if _, err := manifest.ParsePackageJSON([]byte(`{"version": "1.0.0"}`)); err == nil {
		t.Fatal("expected error for a manifest without a name")
	}
}

func TestDetect_PrefersPackageJSON(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "pyproject.toml", "[project]\nname = \"py-demo\"\nversion = \"1.0.0\"\n")
	write(t, dir, "package.json", `{"name": "js-demo", "version": "2.0.0"}`)

	m, err := manifest.Detect(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "js-demo" || m.File != "package.json" {
		t.Errorf("got %+v", m)
	}
}

func TestDetect_NoManifest(t *testing.T) {
	_, err := manifest.Detect(t.TempDir())
	if !errors.Is(err, manifest.ErrNoManifest) {
		t.Fatalf("expected ErrNoManifest, got %v", err)
	}
}

func TestDetect_InvalidManifest(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "Cargo.toml", "[package\n")
	if _, err := manifest.Detect(dir); err == nil {
		t.Fatal("expected error for malformed Cargo.toml")
	}
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
