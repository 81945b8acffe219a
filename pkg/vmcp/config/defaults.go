package config

import (
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
)

// Default constants for operational fields left unset in a loaded document.
const (
	defaultListen   = ":8080"
	defaultDeadline = 30 * time.Second
)

// DefaultConfig returns a minimally populated Config with default values.
// This is the single source of truth for defaults applied when a loaded
// document omits them.
func DefaultConfig() *Config {
	return &Config{
		Listen: defaultListen,
	}
}

// ApplyDefaults merges cfg over DefaultConfig(), filling any zero-valued
// top-level field while leaving fields cfg already set untouched, then fills
// per-vMCP defaults that mergo can't express (zero Duration is a legitimate
// "no deadline" as well as "unset", so it's defaulted explicitly below).
func ApplyDefaults(cfg *Config) (*Config, error) {
	merged := DefaultConfig()
	if cfg != nil {
		if err := mergo.Merge(merged, cfg, mergo.WithOverride); err != nil {
			return nil, err
		}
	}

	for i := range merged.VMCPs {
		if merged.VMCPs[i].Deadline == 0 {
			merged.VMCPs[i].Deadline = Duration(defaultDeadline)
		}
		if merged.VMCPs[i].ID == "" {
			merged.VMCPs[i].ID = uuid.NewString()
		}
	}
	for i := range merged.Upstreams {
		if merged.Upstreams[i].Enabled == nil {
			enabled := true
			merged.Upstreams[i].Enabled = &enabled
		}
		if merged.Upstreams[i].ID == "" {
			merged.Upstreams[i].ID = uuid.NewString()
		}
	}
	return merged, nil
}
