package pipeline_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/pipeline"
)

func TestParse_JSON(t *testing.T) {
	data := []byte(`{
		"name": "release",
		"description": "release train",
		"stages": [
			{"name": "validation", "parallel": false, "timeout": 60, "retries": 0},
			{"name": "deploy", "parallel": true, "max_concurrent": 3, "timeout": 600, "retries": 2}
		],
		"rollback_on_failure": true,
		"continue_on_platform_failure": false
	}`)

	def, err := pipeline.Parse(data, "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "release" || !def.RollbackOnFailure {
		t.Errorf("unexpected definition %+v", def)
	}
	deploy := def.Stages[1]
	if deploy.Mode != domain.ModeParallel || deploy.MaxConcurrency != 3 || deploy.Timeout != 10*time.Minute || deploy.Retries != 2 {
		t.Errorf("unexpected deploy stage %+v", deploy)
	}
}

func TestParse_DefaultsTimeout(t *testing.T) {
	def, err := pipeline.Parse([]byte("name: x\nstages:\n  - name: deploy\n"), "yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Stages[0].Timeout != pipeline.DefaultTimeout {
		t.Errorf("expected default timeout, got %s", def.Stages[0].Timeout)
	}
}

func TestParse_InvalidDefinitions(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{"no stages", `{"name":"x","stages":[]}`, "at least one stage"},
		{"negative retries", `{"name":"x","stages":[{"name":"deploy","retries":-1}]}`, "retries must not be negative"},
		{"duplicate stage", `{"name":"x","stages":[{"name":"deploy"},{"name":"deploy"}]}`, "more than once"},
		{"negative concurrency", `{"name":"x","stages":[{"name":"deploy","parallel":true,"max_concurrent":-2}]}`, "max_concurrent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.Parse([]byte(tt.data), "json")
			if !errors.Is(err, domain.ErrInvalidPipeline) {
				t.Fatalf("expected ErrInvalidPipeline, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q in %v", tt.wantMsg, err)
			}
		})
	}
}

func TestParse_RejectsUnknownFieldsAndFormats(t *testing.T) {
	if _, err := pipeline.Parse([]byte(`{"name":"x","stagez":[]}`), "json"); err == nil {
		t.Error("expected unknown json field to fail")
	}
	if _, err := pipeline.Parse([]byte(`name = "x"`), "ini"); err == nil {
		t.Error("expected unsupported format to fail")
	}
	if _, err := pipeline.Parse([]byte(`{"name":"x","stages":[{"name":"deploy","timeout":"soon"}]}`), "json"); err == nil {
		t.Error("expected invalid timeout to fail")
	}
}

func TestFileFrom_RoundTripsThroughJSON(t *testing.T) {
	def, _ := pipeline.NewRegistry().Load("parallel")
	data, err := json.Marshal(pipeline.FileFrom(def))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := pipeline.Parse(data, "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Stages[2].Timeout != def.Stages[2].Timeout || back.Stages[2].MaxConcurrency != def.Stages[2].MaxConcurrency {
		t.Errorf("expected %+v, got %+v", def.Stages[2], back.Stages[2])
	}
}
