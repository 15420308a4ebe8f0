package pipeline

import (
	"errors"
	"fmt"

	"github.com/waabox/pakdeck/internal/domain"
)

// Validate checks the structural integrity of a pipeline definition.
// All problems are reported together, wrapped in domain.ErrInvalidPipeline.
func Validate(def domain.PipelineDefinition) error {
	var problems []error
	if def.Name == "" {
		problems = append(problems, errors.New("name is required"))
	}
	if len(def.Stages) == 0 {
		problems = append(problems, errors.New("at least one stage is required"))
	}
	seen := make(map[domain.StageName]bool, len(def.Stages))
	for i, s := range def.Stages {
		if s.Name == "" {
			problems = append(problems, fmt.Errorf("stage %d: name is required", i))
			continue
		}
		if seen[s.Name] {
			problems = append(problems, fmt.Errorf("stage %q: declared more than once", s.Name))
		}
		seen[s.Name] = true
		if s.Mode != domain.ModeSequential && s.Mode != domain.ModeParallel {
			problems = append(problems, fmt.Errorf("stage %q: unknown mode %q", s.Name, s.Mode))
		}
		if s.Mode == domain.ModeParallel && s.MaxConcurrency < 1 {
			problems = append(problems, fmt.Errorf("stage %q: max_concurrent must be at least 1", s.Name))
		}
		if s.Timeout <= 0 {
			problems = append(problems, fmt.Errorf("stage %q: timeout must be positive", s.Name))
		}
		if s.Retries < 0 {
			problems = append(problems, fmt.Errorf("stage %q: retries must not be negative", s.Name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", domain.ErrInvalidPipeline, def.Name, errors.Join(problems...))
}
