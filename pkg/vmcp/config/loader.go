package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLLoader reads a Config from a YAML file on disk, applying defaults and
// validating the result before returning it.
type YAMLLoader struct {
	path string
}

// NewYAMLLoader builds a loader for the file at path.
func NewYAMLLoader(path string) *YAMLLoader {
	return &YAMLLoader{path: path}
}

// Load reads, defaults, and validates the configuration at l.path.
func (l *YAMLLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}

	defaulted, err := ApplyDefaults(&cfg)
	if err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := NewValidator().Validate(defaulted); err != nil {
		return nil, err
	}
	return defaulted, nil
}
