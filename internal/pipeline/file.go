package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/waabox/pakdeck/internal/domain"
)

// File is the on-disk pipeline definition format. The same shape is accepted as
// JSON, YAML or TOML.
type File struct {
	Name                      string      `json:"name" yaml:"name" toml:"name"`
	Description               string      `json:"description" yaml:"description" toml:"description"`
	Stages                    []StageFile `json:"stages" yaml:"stages" toml:"stages"`
	RollbackOnFailure         bool        `json:"rollback_on_failure" yaml:"rollback_on_failure" toml:"rollback_on_failure"`
	ContinueOnPlatformFailure bool        `json:"continue_on_platform_failure" yaml:"continue_on_platform_failure" toml:"continue_on_platform_failure"`
}

// StageFile is one stage entry of a pipeline file.
type StageFile struct {
	Name          string   `json:"name" yaml:"name" toml:"name"`
	Parallel      bool     `json:"parallel" yaml:"parallel" toml:"parallel"`
	MaxConcurrent int      `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty" toml:"max_concurrent,omitempty"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Retries       int      `json:"retries" yaml:"retries" toml:"retries"`
}

// Duration accepts either a number of seconds or a Go duration string ("90s", "5m").
type Duration time.Duration

func (d *Duration) set(v any) error {
	switch t := v.(type) {
	case int64:
		*d = Duration(time.Duration(t) * time.Second)
	case int:
		*d = Duration(time.Duration(t) * time.Second)
	case float64:
		*d = Duration(time.Duration(t * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", t, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid timeout %v", v)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalJSON renders the duration as a string such as "5m0s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	return d.set(v)
}

// Definition converts the file into a validated domain definition.
func (f File) Definition() (domain.PipelineDefinition, error) {
	def := domain.PipelineDefinition{
		Name:                      f.Name,
		Description:               f.Description,
		RollbackOnFailure:         f.RollbackOnFailure,
		ContinueOnPlatformFailure: f.ContinueOnPlatformFailure,
	}
	for _, s := range f.Stages {
		spec := domain.StageSpec{
			Name:           domain.StageName(s.Name),
			Mode:           domain.ModeSequential,
			MaxConcurrency: 1,
			Timeout:        time.Duration(s.Timeout),
			Retries:        s.Retries,
		}
		if s.Parallel {
			spec.Mode = domain.ModeParallel
			spec.MaxConcurrency = s.MaxConcurrent
			if spec.MaxConcurrency == 0 {
				spec.MaxConcurrency = DefaultMaxConcurrent
			}
		}
		if spec.Timeout == 0 {
			spec.Timeout = DefaultTimeout
		}
		def.Stages = append(def.Stages, spec)
	}
	if err := Validate(def); err != nil {
		return domain.PipelineDefinition{}, err
	}
	return def, nil
}

// FileFrom converts a definition back into its file form.
func FileFrom(def domain.PipelineDefinition) File {
	f := File{
		Name:                      def.Name,
		Description:               def.Description,
		RollbackOnFailure:         def.RollbackOnFailure,
		ContinueOnPlatformFailure: def.ContinueOnPlatformFailure,
	}
	for _, s := range def.Stages {
		sf := StageFile{
			Name:    string(s.Name),
			Timeout: Duration(s.Timeout),
			Retries: s.Retries,
		}
		if s.Mode == domain.ModeParallel {
			sf.Parallel = true
			sf.MaxConcurrent = s.MaxConcurrency
		}
		f.Stages = append(f.Stages, sf)
	}
	return f
}

// Parse decodes a pipeline file. format is one of "json", "yaml", "yml" or "toml".
func Parse(data []byte, format string) (domain.PipelineDefinition, error) {
	f, err := decode(data, format)
	if err != nil {
		return domain.PipelineDefinition{}, err
	}
	return f.Definition()
}

func decode(data []byte, format string) (File, error) {
	var f File
	switch strings.ToLower(format) {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return File{}, fmt.Errorf("decoding json pipeline: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return File{}, fmt.Errorf("decoding yaml pipeline: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return File{}, fmt.Errorf("decoding toml pipeline: %w", err)
		}
	default:
		return File{}, fmt.Errorf("unsupported pipeline format %q", format)
	}
	return f, nil
}

// LoadFile reads a pipeline definition, picking the decoder from the file extension.
// A file without a name is named after its base name.
func LoadFile(path string) (domain.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PipelineDefinition{}, fmt.Errorf("reading pipeline file: %w", err)
	}
	ext := filepath.Ext(path)
	f, err := decode(data, strings.TrimPrefix(ext, "."))
	if err != nil {
		return domain.PipelineDefinition{}, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), ext)
	}
	def, err := f.Definition()
	if err != nil {
		return domain.PipelineDefinition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir registers every .json, .yaml, .yml and .toml file in dir, in name order.
// A missing directory is not an error. It returns the names of the loaded pipelines.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pipelines dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var loaded []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml", ".toml":
		default:
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, err
		}
		if err := r.Add(def); err != nil {
			return loaded, err
		}
		loaded = append(loaded, def.Name)
	}
	return loaded, nil
}
