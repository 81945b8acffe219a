package adapter

import (
	"errors"
	"fmt"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// Standard and application-range JSON-RPC 2.0 error codes (spec §7).
const (
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeInternal       = -32603
	codeUpstreamError  = -32000
	codeAuthRequired   = -32001
)

// errorCode maps a taxonomy Kind to the JSON-RPC error code carried in the
// envelope, grounded on the standard JSON-RPC reserved range plus an
// application range for everything the spec's taxonomy doesn't have a
// standard code for.
func errorCode(kind vmcp.Kind) int {
	switch kind {
	case vmcp.KindBadArguments:
		return codeInvalidParams
	case vmcp.KindUnknownTool, vmcp.KindUnknownResource, vmcp.KindUnknownPrompt:
		return codeMethodNotFound
	case vmcp.KindAuthRequired:
		return codeAuthRequired
	case vmcp.KindUpstreamUnavailable, vmcp.KindUpstreamTimeout, vmcp.KindUpstreamProtocol,
		vmcp.KindUpstreamToolError, vmcp.KindUpstreamSaturated,
		vmcp.KindToolTimeout, vmcp.KindToolCrash, vmcp.KindToolBadOutput, vmcp.KindToolHTTPStatus,
		vmcp.KindTemplateSyntax, vmcp.KindTemplateMissingCfg, vmcp.KindTemplateUnknownTgt, vmcp.KindTemplateRecursion:
		return codeUpstreamError
	default:
		return codeInternal
	}
}

// errorData builds the structured `data` object attached to a JSON-RPC
// error response: kind, redacted detail, and the owning server when the
// error originated at an upstream (spec §7).
func errorData(err error, secrets []string) map[string]any {
	de := vmcp.NewDomainError(err, serverOf(err), secrets)
	data := map[string]any{
		"kind":   string(de.Kind),
		"detail": de.Detail,
	}
	if de.Server != "" {
		data["server"] = de.Server
	}
	var authErr *vmcp.AuthRequiredError
	if errors.As(err, &authErr) && authErr.URL != "" {
		data["authorization_url"] = authErr.URL
	}
	return data
}

// rpcError is returned from resource/prompt handlers in place of the raw
// error, carrying the JSON-RPC code and structured data the spec's error
// envelope requires (kind, redacted detail, optional server) alongside an
// Error() string the SDK's default error path can still render usefully.
type rpcError struct {
	code int
	data map[string]any
	msg  string
}

func (e *rpcError) Error() string { return e.msg }

// Code returns the JSON-RPC error code; Data returns the structured
// envelope data. Exported via methods (not fields) so this stays usable
// through an `error` interface value without a type assertion at call
// sites that don't care.
func (e *rpcError) Code() int            { return e.code }
func (e *rpcError) Data() map[string]any { return e.data }

// toRPCError classifies err into the MCP error envelope shape (spec §7).
func toRPCError(err error, secrets []string) error {
	de := vmcp.NewDomainError(err, serverOf(err), secrets)
	return &rpcError{
		code: errorCode(de.Kind),
		data: errorData(err, secrets),
		msg:  fmt.Sprintf("%s: %s", de.Kind, de.Detail),
	}
}

// serverOf extracts the origin server name from err if it is (or wraps) a
// *vmcp.DomainError already carrying one; otherwise returns "".
func serverOf(err error) string {
	var de *vmcp.DomainError
	for e := err; e != nil; {
		if d, ok := e.(*vmcp.DomainError); ok {
			de = d
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if de == nil {
		return ""
	}
	return de.Server
}
