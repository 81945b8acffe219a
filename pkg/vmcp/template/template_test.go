package template_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/template"
)

type fakeInvoker struct {
	calls int
}

func (f *fakeInvoker) CallTool(ic *vmcp.InvocationContext, name string, args map[string]any) ([]vmcp.Content, error) {
	f.calls++
	return []vmcp.Content{{Type: "text", Text: name}}, nil
}

func (f *fakeInvoker) ReadResource(ic *vmcp.InvocationContext, uri string) ([]vmcp.Content, error) {
	f.calls++
	return []vmcp.Content{{Type: "text", Text: "resource:" + uri}}, nil
}

func (f *fakeInvoker) GetPrompt(ic *vmcp.InvocationContext, name string, args map[string]any) ([]vmcp.Content, error) {
	f.calls++
	return []vmcp.Content{{Type: "text", Text: "prompt:" + name}}, nil
}

func newRootCtx() *vmcp.InvocationContext {
	ic, cancel := vmcp.NewInvocationContext(context.Background(), &vmcp.VMCP{Name: "t", ID: "t1"})
	_ = cancel
	return ic
}

func TestRender_ParamRoundTrip(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	e := &template.Evaluator{
		Params:  map[string]any{"x": "héllo wörld 🎉"},
		Invoker: inv,
	}
	out, err := template.Render(newRootCtx(), e, "value: {{@param.x}}")
	require.NoError(t, err)
	assert.Equal(t, "value: héllo wörld 🎉", out)
}

func TestRender_EscapedAt(t *testing.T) {
	t.Parallel()

	e := &template.Evaluator{Invoker: &fakeInvoker{}}
	out, err := template.Render(newRootCtx(), e, "email me @@support")
	require.NoError(t, err)
	assert.Equal(t, "email me @support", out)
}

func TestRender_ConfigMissing(t *testing.T) {
	t.Parallel()

	e := &template.Evaluator{Config: map[string]any{}, Invoker: &fakeInvoker{}}
	_, err := template.Render(newRootCtx(), e, "{{@config.missing}}")
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrTemplateMissingConfig)
}

func TestRender_IfBlock(t *testing.T) {
	t.Parallel()

	e := &template.Evaluator{Params: map[string]any{"ok": true}, Invoker: &fakeInvoker{}}
	out, err := template.Render(newRootCtx(), e, "{{#if @param.ok}}yes{{else}}no{{/if}}")
	require.NoError(t, err)
	assert.Equal(t, "yes", out)
}

func TestRender_EachBlock(t *testing.T) {
	t.Parallel()

	e := &template.Evaluator{
		Params:  map[string]any{"items": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}},
		Invoker: &fakeInvoker{},
	}
	out, err := template.Render(newRootCtx(), e, "{{#each @param.items}}[{{.name}}]{{/each}}")
	require.NoError(t, err)
	assert.Equal(t, "[a][b]", out)
}

func TestRender_NestedToolCall(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	e := &template.Evaluator{Invoker: inv}
	out, err := template.Render(newRootCtx(), e, `{{@tool("forecast", {"city": "nyc"})}}`)
	require.NoError(t, err)
	assert.Equal(t, "forecast", out)
	assert.Equal(t, 1, inv.calls)
}

func TestRender_NestedToolCall_BareIdentArgKey(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	e := &template.Evaluator{Invoker: inv}
	out, err := template.Render(newRootCtx(), e, `{{@tool("forecast", {city: "nyc"})}}`)
	require.NoError(t, err)
	assert.Equal(t, "forecast", out)
}

func TestRender_NestedToolCall_NoArgs(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	e := &template.Evaluator{Invoker: inv}
	out, err := template.Render(newRootCtx(), e, `{{@tool("forecast")}}`)
	require.NoError(t, err)
	assert.Equal(t, "forecast", out)
}

func TestRender_ResourceAlias(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	e := &template.Evaluator{Invoker: inv}
	out, err := template.Render(newRootCtx(), e, "{{@resource.readme}}")
	require.NoError(t, err)
	assert.Equal(t, "resource:readme", out)
}

func TestRender_NestedPromptCall(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	e := &template.Evaluator{Invoker: inv}
	out, err := template.Render(newRootCtx(), e, `{{@prompt("brief", {"topic": "rafts"})}}`)
	require.NoError(t, err)
	assert.Equal(t, "prompt:brief", out)
}

func TestRender_RecursionBoundExceeded(t *testing.T) {
	t.Parallel()

	ic := newRootCtx()
	for i := 0; i < vmcp.MaxTemplateDepth; i++ {
		var err error
		ic, err = ic.Nested()
		require.NoError(t, err)
	}

	inv := &fakeInvoker{}
	e := &template.Evaluator{Invoker: inv}
	_, err := template.Render(ic, e, `{{@tool("forecast", {})}}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrTemplateRecursion)
}

func TestRender_UnknownExpressionTarget(t *testing.T) {
	t.Parallel()

	e := &template.Evaluator{Invoker: &fakeInvoker{}}
	_, err := template.Render(newRootCtx(), e, "{{@bogus.x}}")
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrTemplateUnknownTarget)
}
