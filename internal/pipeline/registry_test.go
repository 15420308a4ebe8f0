package pipeline_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/pipeline"
)

func TestRegistry_BuiltinPipelines(t *testing.T) {
	r := pipeline.NewRegistry()
	want := []string{"parallel", "quick", "standard"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	std, err := r.Load("standard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !std.RollbackOnFailure || std.ContinueOnPlatformFailure {
		t.Errorf("expected standard to roll back and stop on failure, got %+v", std)
	}
	for _, s := range std.Stages {
		if s.Mode != domain.ModeSequential {
			t.Errorf("expected sequential stage %s, got %s", s.Name, s.Mode)
		}
	}

	par, _ := r.Load("parallel")
	if !par.ContinueOnPlatformFailure {
		t.Error("expected parallel to continue on platform failure")
	}
	if par.Stages[0].Concurrency() != pipeline.DefaultMaxConcurrent {
		t.Errorf("expected concurrency %d, got %d", pipeline.DefaultMaxConcurrent, par.Stages[0].Concurrency())
	}
}

func TestRegistry_LoadUnknownPipeline(t *testing.T) {
	_, err := pipeline.NewRegistry().Load("missing")
	if !errors.Is(err, domain.ErrPipelineNotFound) {
		t.Errorf("expected ErrPipelineNotFound, got %v", err)
	}
}

func TestRegistry_LoadReturnsCopy(t *testing.T) {
	r := pipeline.NewRegistry()
	first, _ := r.Load("standard")
	first.Stages[0].Retries = 99

	second, _ := r.Load("standard")
	if second.Stages[0].Retries == 99 {
		t.Error("expected mutation of a loaded definition not to leak into the registry")
	}
}

func TestRegistry_AddRejectsInvalid(t *testing.T) {
	r := pipeline.NewRegistry()
	err := r.Add(domain.PipelineDefinition{Name: "broken"})
	if !errors.Is(err, domain.ErrInvalidPipeline) {
		t.Errorf("expected ErrInvalidPipeline, got %v", err)
	}
	if _, err := r.Load("broken"); !errors.Is(err, domain.ErrPipelineNotFound) {
		t.Error("expected invalid pipeline not to be registered")
	}
}

func TestRegistry_LoadDirOverridesAndAdds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quick.yaml", `
name: quick
description: overridden
stages:
  - name: deploy
    parallel: true
    timeout: 90s
    retries: 1
`)
	writeFile(t, dir, "nightly.toml", `
description = "nightly"
rollback_on_failure = true

[[stages]]
name = "validation"
timeout = 30

[[stages]]
name = "deploy"
parallel = true
max_concurrent = 2
timeout = "10m"
retries = 3
`)
	writeFile(t, dir, "README.md", "ignored")

	r := pipeline.NewRegistry()
	loaded, err := r.LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(loaded, []string{"nightly", "quick"}) {
		t.Errorf("expected [nightly quick], got %v", loaded)
	}

	quick, _ := r.Load("quick")
	if quick.Description != "overridden" {
		t.Errorf("expected file to override built-in quick, got %q", quick.Description)
	}
	if quick.Stages[0].Timeout != 90*time.Second || quick.Stages[0].MaxConcurrency != pipeline.DefaultMaxConcurrent {
		t.Errorf("unexpected stage %+v", quick.Stages[0])
	}

	nightly, _ := r.Load("nightly")
	want := []domain.StageSpec{
		{Name: domain.StageValidation, Mode: domain.ModeSequential, MaxConcurrency: 1, Timeout: 30 * time.Second},
		{Name: domain.StageDeploy, Mode: domain.ModeParallel, MaxConcurrency: 2, Timeout: 10 * time.Minute, Retries: 3},
	}
	if !reflect.DeepEqual(nightly.Stages, want) {
		t.Errorf("expected %+v, got %+v", want, nightly.Stages)
	}
	if !nightly.RollbackOnFailure {
		t.Error("expected rollback_on_failure to be read")
	}
}

func TestRegistry_LoadDirMissingIsEmpty(t *testing.T) {
	loaded, err := pipeline.NewRegistry().LoadDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil || len(loaded) != 0 {
		t.Errorf("expected no pipelines and no error, got %v %v", loaded, err)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
