package composer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/capcache"
	"github.com/vmcpio/vmcpd/pkg/vmcp/composer"
	"github.com/vmcpio/vmcpd/pkg/vmcp/customtool"
	"github.com/vmcpio/vmcpd/pkg/vmcp/upstream"
)

func newComposer(t *testing.T, v *vmcp.VMCP, cache *capcache.Cache) *composer.Composer {
	t.Helper()
	engines := map[vmcp.CustomToolKind]customtool.Engine{
		vmcp.CustomToolPrompt: &customtool.PromptEngine{},
	}
	return composer.New(v, upstream.NewRegistry(), cache, engines)
}

func snapshotWithTool(name string) *vmcp.CapabilitySnapshot {
	return &vmcp.CapabilitySnapshot{
		Tools: []vmcp.ToolDescriptor{{Name: name, Description: "an upstream tool"}},
	}
}

func TestComposer_ListTools_NoCollisionKeepsBareName(t *testing.T) {
	t.Parallel()

	cache := capcache.New()
	cache.Store("weather", snapshotWithTool("forecast"))

	v := &vmcp.VMCP{
		Name:      "t",
		ID:        "t1",
		Upstreams: []vmcp.UpstreamRef{{ServerID: "weather"}},
	}
	c := newComposer(t, v, cache)

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "forecast", tools[0].Name)
}

func TestComposer_ListTools_CustomWinsCollisionSuffixesUpstream(t *testing.T) {
	t.Parallel()

	cache := capcache.New()
	cache.Store("weather", snapshotWithTool("forecast"))

	v := &vmcp.VMCP{
		Name:      "t",
		ID:        "t1",
		Upstreams: []vmcp.UpstreamRef{{ServerID: "weather"}},
		CustomTools: []vmcp.CustomTool{
			{Name: "forecast", Kind: vmcp.CustomToolPrompt, PromptBody: "custom forecast"},
		},
	}
	c := newComposer(t, v, cache)

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	names := map[string]bool{}
	for _, td := range tools {
		names[td.Name] = true
	}
	assert.True(t, names["forecast"], "custom tool keeps the unqualified name")
	assert.True(t, names["forecast@weather"], "colliding upstream tool gets suffixed")
}

func TestComposer_CallTool_DispatchesToCustomPromptEngine(t *testing.T) {
	t.Parallel()

	cache := capcache.New()
	v := &vmcp.VMCP{
		Name: "t",
		ID:   "t1",
		CustomTools: []vmcp.CustomTool{
			{
				Name:       "greet",
				Kind:       vmcp.CustomToolPrompt,
				PromptBody: "hello {{@param.name}}",
				InputSchema: map[string]any{
					"type":     "object",
					"required": []any{"name"},
					"properties": map[string]any{
						"name": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
	c := newComposer(t, v, cache)

	result, err := c.CallTool(context.Background(), "greet", map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hello ada", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestComposer_CallTool_BadArgumentsRejectedBeforeInvoke(t *testing.T) {
	t.Parallel()

	cache := capcache.New()
	v := &vmcp.VMCP{
		Name: "t",
		ID:   "t1",
		CustomTools: []vmcp.CustomTool{
			{
				Name:       "greet",
				Kind:       vmcp.CustomToolPrompt,
				PromptBody: "hello {{@param.name}}",
				InputSchema: map[string]any{
					"type":     "object",
					"required": []any{"name"},
				},
			},
		},
	}
	c := newComposer(t, v, cache)

	_, err := c.CallTool(context.Background(), "greet", map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrBadArguments)
}

func TestComposer_CallTool_UnknownNameReturnsErrUnknownTool(t *testing.T) {
	t.Parallel()

	c := newComposer(t, &vmcp.VMCP{Name: "t", ID: "t1"}, capcache.New())

	_, err := c.CallTool(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrUnknownTool)
}

func TestComposer_ReadResource_CustomResource(t *testing.T) {
	t.Parallel()

	v := &vmcp.VMCP{
		Name: "t",
		ID:   "t1",
		CustomRes: []vmcp.CustomResource{
			{URI: "docs://readme", MimeType: "text/plain", Bytes: []byte("hello world")},
		},
	}
	c := newComposer(t, v, capcache.New())

	res, err := c.ReadResource(context.Background(), "docs://readme")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(res.Contents))
	assert.Equal(t, "text/plain", res.MimeType)
}

func TestComposer_ReadResource_UnknownURI(t *testing.T) {
	t.Parallel()

	c := newComposer(t, &vmcp.VMCP{Name: "t", ID: "t1"}, capcache.New())

	_, err := c.ReadResource(context.Background(), "docs://missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrUnknownResource)
}

func TestComposer_GetPrompt_CustomPromptRendersTemplate(t *testing.T) {
	t.Parallel()

	v := &vmcp.VMCP{
		Name: "t",
		ID:   "t1",
		CustomPrompts: []vmcp.CustomPrompt{
			{Name: "welcome", Description: "greets a user", Body: "welcome, {{@param.who}}!"},
		},
	}
	c := newComposer(t, v, capcache.New())

	result, err := c.GetPrompt(context.Background(), "welcome", map[string]any{"who": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "welcome, ada!", result.Messages)
	assert.Equal(t, "greets a user", result.Description)
}

func TestComposer_SystemPrompt_RendersConfig(t *testing.T) {
	t.Parallel()

	v := &vmcp.VMCP{
		Name:         "t",
		ID:           "t1",
		SystemPrompt: "operating as {{@config.role}}",
		Env:          []vmcp.EnvVar{{Name: "role", Value: "assistant"}},
	}
	c := newComposer(t, v, capcache.New())

	out, err := c.SystemPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "operating as assistant", out)
}

func TestComposer_SystemPrompt_EmptyTemplateIsNoop(t *testing.T) {
	t.Parallel()

	c := newComposer(t, &vmcp.VMCP{Name: "t", ID: "t1"}, capcache.New())

	out, err := c.SystemPrompt(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestComposer_SystemPrompt_RedactsSecretEnv(t *testing.T) {
	t.Parallel()

	v := &vmcp.VMCP{
		Name:         "t",
		ID:           "t1",
		SystemPrompt: "token is {{@config.api_key}}",
		Env:          []vmcp.EnvVar{{Name: "api_key", Value: "sk-topsecret", Secret: true}},
	}
	c := newComposer(t, v, capcache.New())

	out, err := c.SystemPrompt(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-topsecret")
}

func TestComposer_Rebuild_ReflectsNewCacheSnapshot(t *testing.T) {
	t.Parallel()

	cache := capcache.New()
	v := &vmcp.VMCP{
		Name:      "t",
		ID:        "t1",
		Upstreams: []vmcp.UpstreamRef{{ServerID: "weather"}},
	}
	c := newComposer(t, v, cache)

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tools)

	cache.Store("weather", snapshotWithTool("forecast"))
	c.Rebuild()

	tools, err = c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "forecast", tools[0].Name)
}
