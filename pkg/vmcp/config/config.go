// Package config provides the configuration model for vmcpd: the shape the
// CLI's --config YAML file is decoded into, which then maps 1:1 onto the
// pkg/vmcp domain types the composer and adapter operate on.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so it marshals/unmarshals as a duration
// string ("30s", "1m") in both YAML and JSON rather than as a nanosecond
// integer.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Config is the root of a vmcpd configuration document: one or more
// upstream server definitions, and one or more vMCP compositions over them.
type Config struct {
	Upstreams []UpstreamConfig `yaml:"upstreams" json:"upstreams"`
	VMCPs     []VMCPConfig     `yaml:"vmcps" json:"vmcps"`

	// Listen is the address the MCP Protocol Adapter's HTTP server binds to.
	Listen string `yaml:"listen" json:"listen"`

	// StorePath is the filesystem path of the sqlite database backing usage
	// logs and blobs. Empty selects the in-memory store.
	StorePath string `yaml:"store_path" json:"store_path"`
}

// OAuthConfig mirrors vmcp.OAuthConfig for the YAML/JSON surface.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"client_secret"`
	AuthURL      string   `yaml:"auth_url" json:"auth_url"`
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	RedirectURL  string   `yaml:"redirect_url" json:"redirect_url"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

// AuthConfig mirrors vmcp.AuthPolicy for the YAML/JSON surface.
type AuthConfig struct {
	Kind       string            `yaml:"kind" json:"kind"` // none, bearer, apikey, basic, custom_header, oauth2
	Token      string            `yaml:"token" json:"token"`
	HeaderName string            `yaml:"header_name" json:"header_name"`
	Username   string            `yaml:"username" json:"username"`
	Password   string            `yaml:"password" json:"password"`
	Headers    map[string]string `yaml:"headers" json:"headers"`
	OAuth      *OAuthConfig      `yaml:"oauth,omitempty" json:"oauth,omitempty"`
}

// UpstreamConfig describes one backend MCP server.
type UpstreamConfig struct {
	ID        string            `yaml:"id" json:"id"`
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"` // http, sse
	Endpoint  string            `yaml:"endpoint" json:"endpoint"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Auth      AuthConfig        `yaml:"auth,omitempty" json:"auth,omitempty"`
	Enabled   *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// HTTPAuthConfig mirrors vmcp.HTTPAuthBinding for the YAML/JSON surface.
type HTTPAuthConfig struct {
	Kind       string `yaml:"kind" json:"kind"`
	Token      string `yaml:"token" json:"token"`
	HeaderName string `yaml:"header_name" json:"header_name"`
	Username   string `yaml:"username" json:"username"`
	Password   string `yaml:"password" json:"password"`
}

// CustomToolConfig describes one Script/HTTP/Prompt custom tool.
type CustomToolConfig struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Kind        string         `yaml:"kind" json:"kind"` // script, http, prompt
	InputSchema map[string]any `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`

	ScriptSource string   `yaml:"script_source,omitempty" json:"script_source,omitempty"`
	ScriptEnv    []string `yaml:"script_env,omitempty" json:"script_env,omitempty"`

	HTTPMethod       string         `yaml:"http_method,omitempty" json:"http_method,omitempty"`
	HTTPURLTemplate  string         `yaml:"http_url_template,omitempty" json:"http_url_template,omitempty"`
	HTTPHeaders      map[string]string `yaml:"http_headers,omitempty" json:"http_headers,omitempty"`
	HTTPBodyTemplate string         `yaml:"http_body_template,omitempty" json:"http_body_template,omitempty"`
	HTTPAuth         HTTPAuthConfig `yaml:"http_auth,omitempty" json:"http_auth,omitempty"`
	HTTPResponseKind string         `yaml:"http_response_kind,omitempty" json:"http_response_kind,omitempty"` // json, text, binary

	PromptBody string `yaml:"prompt_body,omitempty" json:"prompt_body,omitempty"`
}

// CustomResourceConfig describes one vMCP-local resource.
type CustomResourceConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	Name     string `yaml:"name" json:"name"`
	MimeType string `yaml:"mime_type" json:"mime_type"`

	// Validation requires InlineText or BlobPath. InlineText is stored
	// verbatim as the resource's bytes. BlobPath is not read by the loader
	// or by ToVMCP and nothing writes it to a blob store, so a resource
	// with only BlobPath set serves empty contents.
	InlineText string `yaml:"inline_text,omitempty" json:"inline_text,omitempty"`
	BlobPath   string `yaml:"blob_path,omitempty" json:"blob_path,omitempty"`
}

// CustomPromptConfig describes one vMCP-local prompt.
type CustomPromptConfig struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	InputSchema map[string]any `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	Body        string         `yaml:"body" json:"body"`
}

// EnvVarConfig describes one environment binding visible to custom tools
// and the system prompt template.
type EnvVarConfig struct {
	Name   string `yaml:"name" json:"name"`
	Value  string `yaml:"value" json:"value"`
	Secret bool   `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// VMCPConfig describes one named composition of upstreams and custom
// capabilities, the unit the MCP Protocol Adapter mounts at
// /private/{name}/vmcp.
type VMCPConfig struct {
	ID            string                 `yaml:"id" json:"id"`
	Name          string                 `yaml:"name" json:"name"`
	Description   string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Upstreams     []string               `yaml:"upstreams" json:"upstreams"` // UpstreamConfig.ID values
	CustomTools   []CustomToolConfig     `yaml:"custom_tools,omitempty" json:"custom_tools,omitempty"`
	CustomResources []CustomResourceConfig `yaml:"custom_resources,omitempty" json:"custom_resources,omitempty"`
	CustomPrompts []CustomPromptConfig   `yaml:"custom_prompts,omitempty" json:"custom_prompts,omitempty"`
	SystemPrompt  string                 `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Env           []EnvVarConfig         `yaml:"env,omitempty" json:"env,omitempty"`
	Deadline      Duration               `yaml:"deadline,omitempty" json:"deadline,omitempty"`
}
