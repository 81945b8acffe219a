// Package vmcp contains the domain types shared across the vmcp
// subpackages: upstream session/registry, capability cache, template
// engine, custom tool engines, composer, and protocol adapter.
package vmcp

import "time"

// TransportKind identifies how an Upstream Server is reached.
type TransportKind string

const (
	TransportHTTP TransportKind = "http"
	TransportSSE  TransportKind = "sse"
)

// SessionState is the lifecycle state of an Upstream Session (spec §4.1).
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateDisconnected SessionState = "disconnected"
	StateAuthRequired SessionState = "auth_required"
	StateError        SessionState = "error"
)

// AuthKind discriminates the auth policy attached to an Upstream Server.
type AuthKind string

const (
	AuthNone         AuthKind = "none"
	AuthBearer       AuthKind = "bearer"
	AuthAPIKey       AuthKind = "apikey"
	AuthBasic        AuthKind = "basic"
	AuthCustomHeader AuthKind = "custom_header"
	AuthOAuth2       AuthKind = "oauth2"
)

// AuthPolicy configures how the Upstream Session authenticates to its server.
type AuthPolicy struct {
	Kind AuthKind

	// Bearer / APIKey / Basic / CustomHeader fields.
	Token      string
	HeaderName string
	Username   string
	Password   string
	Headers    map[string]string

	// OAuth2 fields (authorization-code with PKCE).
	OAuth *OAuthConfig
}

// OAuthConfig holds the static configuration for an OAuth 2.0
// authorization-code+PKCE flow against one upstream server.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// UpstreamServer describes one configured backend MCP server (spec §3).
type UpstreamServer struct {
	ID        string
	Name      string
	Transport TransportKind
	Endpoint  string
	Headers   map[string]string
	Auth      AuthPolicy
	Enabled   bool
}

// ToolDescriptor is one entry in a Capability Snapshot's tool list.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ResourceDescriptor is one entry in a Capability Snapshot's resource list.
type ResourceDescriptor struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// ResourceTemplateDescriptor is one entry in a Capability Snapshot's
// resource-template list.
type ResourceTemplateDescriptor struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
}

// PromptArgument describes one argument accepted by a prompt.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptDescriptor is one entry in a Capability Snapshot's prompt list.
type PromptDescriptor struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// CapabilitySnapshot is the atomically-replaced set of capabilities
// advertised by one upstream at a point in time (spec §3).
type CapabilitySnapshot struct {
	Tools             []ToolDescriptor
	Resources         []ResourceDescriptor
	ResourceTemplates []ResourceTemplateDescriptor
	Prompts           []PromptDescriptor
	DiscoveredAt      time.Time
	Stale             bool
}

// Content mirrors one MCP content part (text, image, audio, or an embedded
// resource reference), independent of the upstream transport SDK's type.
type Content struct {
	Type     string // "text", "image", "audio", "resource"
	Text     string
	Data     string // base64, for image/audio
	MimeType string
	URI      string // for embedded resource content
}

// ToolCallResult is the normalized result of invoking a tool, whether the
// tool is a custom tool or lives on an upstream.
type ToolCallResult struct {
	Content []Content
	IsError bool
}

// ResourceReadResult is the normalized result of reading a resource.
type ResourceReadResult struct {
	Contents []byte
	MimeType string
}

// PromptGetResult is the normalized result of rendering a prompt.
type PromptGetResult struct {
	Messages    string
	Description string
}

// CustomToolKind discriminates the three custom tool variants (spec §3).
type CustomToolKind string

const (
	CustomToolScript CustomToolKind = "script"
	CustomToolHTTP   CustomToolKind = "http"
	CustomToolPrompt CustomToolKind = "prompt"
)

// HTTPAuthBinding configures how a Custom HTTP Tool authenticates.
type HTTPAuthBinding struct {
	Kind       AuthKind // AuthNone, AuthBearer, AuthAPIKey, AuthBasic, AuthCustomHeader
	Token      string
	HeaderName string
	Username   string
	Password   string
}

// ResponseKind discriminates how a Custom HTTP Tool's response is parsed.
type ResponseKind string

const (
	ResponseJSON   ResponseKind = "json"
	ResponseText   ResponseKind = "text"
	ResponseBinary ResponseKind = "binary"
)

// CustomTool is the discriminated union over Script/HTTP/Prompt tools.
type CustomTool struct {
	Name        string
	Description string
	Kind        CustomToolKind
	InputSchema map[string]any

	// Script variant.
	ScriptSource string
	ScriptEnv    []string // declared environment-variable reads

	// HTTP variant.
	HTTPMethod       string
	HTTPURLTemplate  string
	HTTPHeaders      map[string]string // values may be templated
	HTTPBodyTemplate string
	HTTPAuth         HTTPAuthBinding
	HTTPResponseKind ResponseKind

	// Prompt variant.
	PromptBody string
}

// CustomResource is a vMCP-local resource served without an upstream.
type CustomResource struct {
	URI      string
	Name     string
	MimeType string
	Bytes    []byte
	BlobID   string // set instead of Bytes when backed by the blob store
}

// CustomPrompt is a vMCP-local prompt, identical in shape to the Prompt
// variant of CustomTool but kept distinct because it is listed under
// prompts/list rather than tools/list.
type CustomPrompt struct {
	Name        string
	Description string
	InputSchema map[string]any
	Body        string
}

// EnvVar is one vMCP environment binding.
type EnvVar struct {
	Name   string
	Value  string
	Secret bool
}

// UpstreamRef orders one upstream server within a vMCP's composition.
type UpstreamRef struct {
	ServerID string
}

// VMCP is a named, persistent composition of upstreams and custom
// capabilities (spec §3).
type VMCP struct {
	ID            string
	Name          string
	Description   string
	Upstreams     []UpstreamRef
	CustomTools   []CustomTool
	CustomRes     []CustomResource
	CustomPrompts []CustomPrompt
	SystemPrompt  string
	Env           []EnvVar
	Deadline      time.Duration // default end-to-end deadline, spec §5
}
