package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_FillsBlankUpstreamAndVMCPIDs(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Upstreams: []UpstreamConfig{{Name: "weather"}},
		VMCPs:     []VMCPConfig{{Name: "main"}},
	}
	merged, err := ApplyDefaults(cfg)
	assert.NoError(t, err)
	assert.NotEmpty(t, merged.Upstreams[0].ID)
	assert.NotEmpty(t, merged.VMCPs[0].ID)
}

func TestApplyDefaults_PreservesExplicitIDs(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Upstreams: []UpstreamConfig{{ID: "srv1", Name: "weather"}},
		VMCPs:     []VMCPConfig{{ID: "v1", Name: "main"}},
	}
	merged, err := ApplyDefaults(cfg)
	assert.NoError(t, err)
	assert.Equal(t, "srv1", merged.Upstreams[0].ID)
	assert.Equal(t, "v1", merged.VMCPs[0].ID)
}
