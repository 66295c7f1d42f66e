// Package config provides file-based configuration for the veracity
// binaries. Flags cover the common cases; a YAML config file carries the
// settings too structured for flags, like per-class backoff schedules.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/veracitybio/veracity/pkg/inference"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)

	return nil
}

// Backoff mirrors inference.Backoff for YAML loading.
type Backoff struct {
	Base       Duration `yaml:"base"`
	Multiplier float64  `yaml:"multiplier"`
	Cap        Duration `yaml:"cap"`
}

// Inference configures the resilient inference client.
type Inference struct {
	BackendURL           string             `yaml:"backend_url"             validate:"required,url"`
	Targets              []string           `yaml:"targets"                 validate:"required,min=1,dive,required"`
	MaxAttemptsPerTarget int                `yaml:"max_attempts_per_target" validate:"omitempty,min=1"`
	AttemptTimeout       Duration           `yaml:"attempt_timeout"`
	CacheURL             string             `yaml:"cache_url"`
	CacheTTL             Duration           `yaml:"cache_ttl"`
	Backoffs             map[string]Backoff `yaml:"backoffs"`
}

// File is the root of a veracity YAML config file.
type File struct {
	Inference Inference `yaml:"inference" validate:"required"`
}

// Load reads and validates a YAML config file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return File{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return File{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks a config value against its struct tags.
func Validate(cfg any) error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

// ClientBackoffs converts the YAML backoff table into the inference
// client's form. Unknown class names are rejected.
func (i Inference) ClientBackoffs() (map[inference.ErrorClass]inference.Backoff, error) {
	if len(i.Backoffs) == 0 {
		return nil, nil
	}

	known := map[string]inference.ErrorClass{
		string(inference.ClassTransientNetwork): inference.ClassTransientNetwork,
		string(inference.ClassServerOverload):   inference.ClassServerOverload,
		string(inference.ClassRateLimited):      inference.ClassRateLimited,
		string(inference.ClassQuotaExhausted):   inference.ClassQuotaExhausted,
		string(inference.ClassEmptyResponse):    inference.ClassEmptyResponse,
	}

	backoffs := make(map[inference.ErrorClass]inference.Backoff, len(i.Backoffs))

	for name, b := range i.Backoffs {
		class, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown backoff class %q", name)
		}

		backoffs[class] = inference.Backoff{
			Base:       time.Duration(b.Base),
			Multiplier: b.Multiplier,
			Cap:        time.Duration(b.Cap),
		}
	}

	return backoffs, nil
}
