package vmcp

import (
	"errors"
	"strings"
)

// Error taxonomy (spec §7). These are sentinel errors; call sites wrap them
// with fmt.Errorf("%w: ...") so errors.Is() keeps working across package
// boundaries while still carrying a human-readable detail.
var (
	// BadArguments: missing required input-schema fields.
	ErrBadArguments = errors.New("bad arguments")

	// UnknownTool/UnknownResource/UnknownPrompt: no origin resolves the name.
	ErrUnknownTool     = errors.New("unknown tool")
	ErrUnknownResource = errors.New("unknown resource")
	ErrUnknownPrompt   = errors.New("unknown prompt")

	// UpstreamUnavailable: session not connected after one implicit reconnect.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// UpstreamTimeout: the operation's deadline elapsed.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// UpstreamProtocol: malformed response from upstream.
	ErrUpstreamProtocol = errors.New("upstream protocol error")

	// UpstreamToolError: the upstream returned an MCP tool error, passed through.
	ErrUpstreamToolError = errors.New("upstream tool error")

	// AuthRequired: the session needs end-user authorization.
	ErrAuthRequired = errors.New("authorization required")

	// Custom tool engine errors.
	ErrToolTimeout   = errors.New("tool timed out")
	ErrToolCrash     = errors.New("tool crashed")
	ErrToolBadOutput = errors.New("tool produced invalid output")
	ErrToolHTTPStatus = errors.New("tool http status error")

	// Template engine errors.
	ErrTemplateSyntax        = errors.New("template syntax error")
	ErrTemplateMissingConfig = errors.New("missing config variable")
	ErrTemplateUnknownTarget = errors.New("unknown template target")
	ErrTemplateRecursion     = errors.New("template recursion limit exceeded")

	// Resource exhaustion.
	ErrUpstreamSaturated = errors.New("upstream saturated")

	// InvalidConfig: the loaded configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// AuthRequiredError wraps ErrAuthRequired with the end-user authorization
// URL the session computed, when it could compute one (an oauth2-configured
// upstream). Surfaced in the MCP error envelope's data.authorization_url
// (spec §4.1/§7, Testable Scenario 5) for both the synchronous
// AuthorizationURL() flow and a reactive mid-call 401.
type AuthRequiredError struct {
	URL string
	Err error
}

func (e *AuthRequiredError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ErrAuthRequired.Error()
}

func (e *AuthRequiredError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrAuthRequired
}

// Kind is the taxonomy label surfaced in the MCP error envelope's `data.kind`.
type Kind string

const (
	KindBadArguments        Kind = "BadArguments"
	KindUnknownTool         Kind = "UnknownTool"
	KindUnknownResource     Kind = "UnknownResource"
	KindUnknownPrompt       Kind = "UnknownPrompt"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUpstreamTimeout     Kind = "UpstreamTimeout"
	KindUpstreamProtocol    Kind = "UpstreamProtocol"
	KindUpstreamToolError   Kind = "UpstreamToolError"
	KindAuthRequired        Kind = "AuthRequired"
	KindToolTimeout         Kind = "ToolTimeout"
	KindToolCrash           Kind = "ToolCrash"
	KindToolBadOutput       Kind = "ToolBadOutput"
	KindToolHTTPStatus      Kind = "ToolHttpStatus"
	KindTemplateSyntax      Kind = "TemplateSyntax"
	KindTemplateMissingCfg  Kind = "TemplateMissingConfig"
	KindTemplateUnknownTgt  Kind = "TemplateUnknownTarget"
	KindTemplateRecursion   Kind = "TemplateRecursion"
	KindUpstreamSaturated   Kind = "UpstreamSaturated"
	KindInternal            Kind = "Internal"
)

// kindBySentinel maps each sentinel error to its taxonomy Kind, used by the
// Composer and Adapter to build the structured `data` field without
// re-deriving the mapping at every call site.
var kindBySentinel = map[error]Kind{
	ErrBadArguments:          KindBadArguments,
	ErrUnknownTool:           KindUnknownTool,
	ErrUnknownResource:       KindUnknownResource,
	ErrUnknownPrompt:         KindUnknownPrompt,
	ErrUpstreamUnavailable:   KindUpstreamUnavailable,
	ErrUpstreamTimeout:       KindUpstreamTimeout,
	ErrUpstreamProtocol:      KindUpstreamProtocol,
	ErrUpstreamToolError:     KindUpstreamToolError,
	ErrAuthRequired:          KindAuthRequired,
	ErrToolTimeout:           KindToolTimeout,
	ErrToolCrash:             KindToolCrash,
	ErrToolBadOutput:         KindToolBadOutput,
	ErrToolHTTPStatus:        KindToolHTTPStatus,
	ErrTemplateSyntax:        KindTemplateSyntax,
	ErrTemplateMissingConfig: KindTemplateMissingCfg,
	ErrTemplateUnknownTarget: KindTemplateUnknownTgt,
	ErrTemplateRecursion:     KindTemplateRecursion,
	ErrUpstreamSaturated:     KindUpstreamSaturated,
}

// ClassifyError returns the taxonomy Kind for err, walking its error chain.
// Unrecognized errors classify as KindInternal.
func ClassifyError(err error) Kind {
	if err == nil {
		return ""
	}
	for sentinel, kind := range kindBySentinel {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// DomainError is the structured error carried in the MCP error envelope's
// `data` field (spec §7): a taxonomy Kind, a redacted detail message, and
// the owning upstream's name when the error originated there.
type DomainError struct {
	Kind   Kind
	Detail string
	Server string
	Err    error
}

func (e *DomainError) Error() string {
	if e.Server != "" {
		return string(e.Kind) + ": " + e.Detail + " (server: " + e.Server + ")"
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError wraps err with its classified Kind and a redacted detail
// string. secrets lists values that must never appear in the detail.
func NewDomainError(err error, server string, secrets []string) *DomainError {
	detail := Redact(err.Error(), secrets)
	return &DomainError{
		Kind:   ClassifyError(err),
		Detail: detail,
		Server: server,
		Err:    err,
	}
}

// Redact replaces every occurrence of each secret value in s with a fixed
// placeholder. Used by error construction and logging so that no env
// variable flagged secret appears in an error detail or a log line
// (spec §8 invariant 7).
func Redact(s string, secrets []string) string {
	out := s
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		out = strings.ReplaceAll(out, secret, "[REDACTED]")
	}
	return out
}
