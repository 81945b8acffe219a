package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	enabled := true
	return &Config{
		Upstreams: []UpstreamConfig{
			{ID: "weather", Transport: "http", Endpoint: "http://localhost/mcp", Enabled: &enabled},
		},
		VMCPs: []VMCPConfig{
			{Name: "main", Upstreams: []string{"weather"}},
		},
	}
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NewValidator().Validate(validConfig()))
}

func TestValidate_RejectsNilConfig(t *testing.T) {
	t.Parallel()
	assert.Error(t, NewValidator().Validate(nil))
}

func TestValidate_RejectsMissingUpstreamEndpoint(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Upstreams[0].Endpoint = ""
	assert.ErrorContains(t, NewValidator().Validate(cfg), "endpoint is required")
}

func TestValidate_RejectsUnsupportedTransport(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Upstreams[0].Transport = "websocket"
	assert.ErrorContains(t, NewValidator().Validate(cfg), "unsupported transport")
}

func TestValidate_RejectsDuplicateUpstreamIDs(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Upstreams = append(cfg.Upstreams, cfg.Upstreams[0])
	assert.ErrorContains(t, NewValidator().Validate(cfg), "duplicate upstream id")
}

func TestValidate_RejectsVMCPWithoutName(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.VMCPs[0].Name = ""
	assert.ErrorContains(t, NewValidator().Validate(cfg), "name is required")
}

func TestValidate_RejectsUnknownUpstreamReference(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.VMCPs[0].Upstreams = append(cfg.VMCPs[0].Upstreams, "ghost")
	assert.ErrorContains(t, NewValidator().Validate(cfg), "unknown upstream")
}

func TestValidate_RejectsScriptToolWithoutSource(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.VMCPs[0].CustomTools = []CustomToolConfig{{Name: "deploy", Kind: "script"}}
	assert.ErrorContains(t, NewValidator().Validate(cfg), "script_source")
}

func TestValidate_RejectsHTTPToolMissingFields(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.VMCPs[0].CustomTools = []CustomToolConfig{{Name: "fetch", Kind: "http"}}
	assert.ErrorContains(t, NewValidator().Validate(cfg), "http_method")
}

func TestValidate_RejectsCustomResourceWithoutContent(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.VMCPs[0].CustomResources = []CustomResourceConfig{{URI: "docs://readme"}}
	assert.ErrorContains(t, NewValidator().Validate(cfg), "needs inline_text or blob_path")
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Upstreams: []UpstreamConfig{{ID: "", Transport: "bogus"}},
		VMCPs:     []VMCPConfig{{Name: ""}},
	}
	err := NewValidator().Validate(cfg)
	assert.ErrorContains(t, err, "id is required")
	assert.ErrorContains(t, err, "name is required")
}
