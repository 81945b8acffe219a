package customtool

import (
	"context"
	"fmt"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/template"
)

// PromptEngine renders a CustomTool's PromptBody through the template
// engine and returns the result as text content. It performs no network
// or process I/O of its own.
type PromptEngine struct {
	Invoker template.Invoker
	Config  map[string]any
}

// Invoke renders tool.PromptBody with args bound as @param.
func (e *PromptEngine) Invoke(_ context.Context, ic *vmcp.InvocationContext, tool vmcp.CustomTool, args map[string]any) (*vmcp.ToolCallResult, error) {
	ev := &template.Evaluator{Params: args, Config: e.Config, Invoker: e.Invoker}
	out, err := template.Render(ic, ev, tool.PromptBody)
	if err != nil {
		return nil, fmt.Errorf("prompt tool %s: %w", tool.Name, err)
	}
	return textResult(out), nil
}
