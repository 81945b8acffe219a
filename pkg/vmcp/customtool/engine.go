// Package customtool implements the three Custom Tool Engines (spec §4.5):
// Script (Docker-sandboxed subprocess execution), HTTP (templated outbound
// request), and Prompt (rendered text, no network or process boundary).
package customtool

import (
	"context"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// Engine executes one CustomTool variant and returns its normalized
// result. Each variant (Script/HTTP/Prompt) has its own Engine
// implementation, selected by the Composer on CustomTool.Kind.
type Engine interface {
	Invoke(ctx context.Context, ic *vmcp.InvocationContext, tool vmcp.CustomTool, args map[string]any) (*vmcp.ToolCallResult, error)
}

func textResult(s string) *vmcp.ToolCallResult {
	return &vmcp.ToolCallResult{Content: []vmcp.Content{{Type: "text", Text: s}}}
}

func errorResult(s string) *vmcp.ToolCallResult {
	return &vmcp.ToolCallResult{Content: []vmcp.Content{{Type: "text", Text: s}}, IsError: true}
}
