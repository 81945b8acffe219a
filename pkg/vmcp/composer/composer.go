package composer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vmcpio/vmcpd/pkg/logger"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/capcache"
	"github.com/vmcpio/vmcpd/pkg/vmcp/customtool"
	"github.com/vmcpio/vmcpd/pkg/vmcp/template"
	"github.com/vmcpio/vmcpd/pkg/vmcp/upstream"
)

// toolSession is the subset of *upstream.Session the Composer depends on,
// narrowed for testability.
type toolSession interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*vmcp.ToolCallResult, error)
	ReadResource(ctx context.Context, uri string) (*vmcp.ResourceReadResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]any) (*vmcp.PromptGetResult, error)
}

// index is the merged, collision-resolved view of one vMCP's capabilities,
// rebuilt whenever the Capability Cache changes and swapped in atomically
// so concurrent requests never observe a partially-merged view.
type index struct {
	tools     []vmcp.ToolDescriptor
	resources []vmcp.ResourceDescriptor
	prompts   []vmcp.PromptDescriptor

	toolOrigin     map[string]origin
	resourceOrigin map[string]origin
	promptOrigin   map[string]origin

	// resourceAlias resolves a resource's short Name (its `@resource.alias`
	// form, spec §4.4) to the same origin its full URI resolves to in
	// resourceOrigin.
	resourceAlias map[string]origin
}

// Composer implements the vMCP Composer (spec §4.6): it merges upstream
// capability snapshots with custom tools/resources/prompts into one view,
// dispatches calls to their resolved origin, and hands out a
// template.Invoker (see Invoker) so @tool/@resource/@prompt expressions can
// recurse back through it.
type Composer struct {
	VMCP     *vmcp.VMCP
	Registry *upstream.Registry
	Cache    *capcache.Cache
	Engines  map[vmcp.CustomToolKind]customtool.Engine

	env     map[string]string
	secrets []string

	idx atomic.Pointer[index]
}

// New builds a Composer for v, wiring the registry, capability cache, and
// one Engine per custom tool kind.
func New(v *vmcp.VMCP, registry *upstream.Registry, cache *capcache.Cache, engines map[vmcp.CustomToolKind]customtool.Engine) *Composer {
	env, secrets := freezeEnv(v.Env)
	c := &Composer{VMCP: v, Registry: registry, Cache: cache, Engines: engines, env: env, secrets: secrets}
	c.Rebuild()
	return c
}

// Invoker returns c wrapped as a template.Invoker, for wiring into a
// Prompt or HTTP custom tool engine that needs to call back into the
// composition (a tool invoking another tool, or a template resolving
// @tool/@resource/@prompt targets). Custom tool engines are normally
// constructed before the Composer that owns them, so callers set this on
// the engine after New returns rather than threading it through New.
func (c *Composer) Invoker() template.Invoker {
	return &invokerAdapter{c}
}

// Rebuild recomputes the merged capability index from the current
// Capability Cache contents and custom definitions, then atomically
// swaps it in. Call after any capability-cache refresh.
func (c *Composer) Rebuild() {
	customToolNames := make([]string, 0, len(c.VMCP.CustomTools))
	customToolByName := make(map[string]vmcp.CustomTool, len(c.VMCP.CustomTools))
	for _, t := range c.VMCP.CustomTools {
		customToolNames = append(customToolNames, t.Name)
		customToolByName[t.Name] = t
	}

	customResNames := make([]string, 0, len(c.VMCP.CustomRes))
	customResByName := make(map[string]vmcp.CustomResource, len(c.VMCP.CustomRes))
	for _, r := range c.VMCP.CustomRes {
		customResNames = append(customResNames, r.URI)
		customResByName[r.URI] = r
	}

	customPromptNames := make([]string, 0, len(c.VMCP.CustomPrompts))
	customPromptByName := make(map[string]vmcp.CustomPrompt, len(c.VMCP.CustomPrompts))
	for _, p := range c.VMCP.CustomPrompts {
		customPromptNames = append(customPromptNames, p.Name)
		customPromptByName[p.Name] = p
	}

	upstreamTools := make(map[string][]string)
	upstreamToolDesc := make(map[string]map[string]vmcp.ToolDescriptor)
	upstreamResources := make(map[string][]string)
	upstreamResourceDesc := make(map[string]map[string]vmcp.ResourceDescriptor)
	upstreamPrompts := make(map[string][]string)
	upstreamPromptDesc := make(map[string]map[string]vmcp.PromptDescriptor)

	// serverOrder mirrors c.VMCP.Upstreams, skipping servers with no cached
	// snapshot yet, so collision resolution and final list ordering follow
	// configured order rather than map iteration (spec §5: deterministic
	// given the vMCP's upstream order).
	serverOrder := make([]string, 0, len(c.VMCP.Upstreams))

	for _, ref := range c.VMCP.Upstreams {
		server := ref.ServerID
		snap := c.Cache.Get(server)
		if snap == nil {
			continue
		}
		serverOrder = append(serverOrder, server)
		names := make([]string, 0, len(snap.Tools))
		descs := make(map[string]vmcp.ToolDescriptor, len(snap.Tools))
		for _, t := range snap.Tools {
			names = append(names, t.Name)
			descs[t.Name] = t
		}
		upstreamTools[server] = names
		upstreamToolDesc[server] = descs

		rnames := make([]string, 0, len(snap.Resources))
		rdescs := make(map[string]vmcp.ResourceDescriptor, len(snap.Resources))
		for _, r := range snap.Resources {
			rnames = append(rnames, r.URI)
			rdescs[r.URI] = r
		}
		upstreamResources[server] = rnames
		upstreamResourceDesc[server] = rdescs

		pnames := make([]string, 0, len(snap.Prompts))
		pdescs := make(map[string]vmcp.PromptDescriptor, len(snap.Prompts))
		for _, p := range snap.Prompts {
			pnames = append(pnames, p.Name)
			pdescs[p.Name] = p
		}
		upstreamPrompts[server] = pnames
		upstreamPromptDesc[server] = pdescs
	}

	toolOrigin, toolOrder := resolveNames(customToolNames, serverOrder, upstreamTools)
	resourceOrigin, resourceOrder := resolveNames(customResNames, serverOrder, upstreamResources)
	promptOrigin, promptOrder := resolveNames(customPromptNames, serverOrder, upstreamPrompts)

	idx := &index{
		toolOrigin:     toolOrigin,
		resourceOrigin: resourceOrigin,
		promptOrigin:   promptOrigin,
		resourceAlias:  make(map[string]origin),
	}
	for _, name := range toolOrder {
		o := toolOrigin[name]
		if o.Kind == originCustom {
			t := customToolByName[o.Original]
			idx.tools = append(idx.tools, renamedTool(vmcp.ToolDescriptor{
				Name: t.Name, Description: t.Description, InputSchema: t.InputSchema,
			}, name))
		} else {
			idx.tools = append(idx.tools, renamedTool(upstreamToolDesc[o.Server][o.Original], name))
		}
	}
	for _, name := range resourceOrder {
		o := resourceOrigin[name]
		if o.Kind == originCustom {
			r := customResByName[o.Original]
			idx.resources = append(idx.resources, renamedResource(vmcp.ResourceDescriptor{
				URI: r.URI, Name: r.Name, MimeType: r.MimeType,
			}, name))
			if r.Name != "" {
				idx.resourceAlias[r.Name] = o
			}
		} else {
			desc := upstreamResourceDesc[o.Server][o.Original]
			idx.resources = append(idx.resources, renamedResource(desc, name))
			if desc.Name != "" {
				idx.resourceAlias[desc.Name] = o
			}
		}
	}
	for _, name := range promptOrder {
		o := promptOrigin[name]
		if o.Kind == originCustom {
			p := customPromptByName[o.Original]
			idx.prompts = append(idx.prompts, renamedPrompt(vmcp.PromptDescriptor{
				Name: p.Name, Description: p.Description,
			}, name))
		} else {
			idx.prompts = append(idx.prompts, renamedPrompt(upstreamPromptDesc[o.Server][o.Original], name))
		}
	}

	c.idx.Store(idx)
}

func (c *Composer) snapshot() *index {
	idx := c.idx.Load()
	if idx == nil {
		c.Rebuild()
		idx = c.idx.Load()
	}
	return idx
}

// ListTools returns the merged, collision-resolved tool list.
func (c *Composer) ListTools(context.Context) ([]vmcp.ToolDescriptor, error) {
	return append([]vmcp.ToolDescriptor(nil), c.snapshot().tools...), nil
}

// ListResources returns the merged, collision-resolved resource list.
func (c *Composer) ListResources(context.Context) ([]vmcp.ResourceDescriptor, error) {
	return append([]vmcp.ResourceDescriptor(nil), c.snapshot().resources...), nil
}

// ListPrompts returns the merged, collision-resolved prompt list.
func (c *Composer) ListPrompts(context.Context) ([]vmcp.PromptDescriptor, error) {
	return append([]vmcp.PromptDescriptor(nil), c.snapshot().prompts...), nil
}

// SystemPrompt renders the vMCP's system prompt template against no
// caller-supplied parameters, only @config.
func (c *Composer) SystemPrompt(ctx context.Context) (string, error) {
	if c.VMCP.SystemPrompt == "" {
		return "", nil
	}
	ic, cancel := vmcp.NewInvocationContext(ctx, c.VMCP)
	defer cancel()
	ev := &template.Evaluator{Config: envAsConfig(c.env), Invoker: &invokerAdapter{c}}
	out, err := template.Render(ic, ev, c.VMCP.SystemPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", vmcp.ErrTemplateSyntax, err)
	}
	return vmcp.Redact(out, c.secrets), nil
}

// CallTool dispatches name to its resolved origin: a custom tool engine
// or the owning upstream session, by way of one implicit reconnect if the
// session isn't currently connected.
func (c *Composer) CallTool(ctx context.Context, name string, args map[string]any) (*vmcp.ToolCallResult, error) {
	ic, cancel := vmcp.NewInvocationContext(ctx, c.VMCP)
	defer cancel()
	return c.dispatchTool(ic, name, args)
}

func (c *Composer) dispatchTool(ic *vmcp.InvocationContext, name string, args map[string]any) (*vmcp.ToolCallResult, error) {
	o, ok := c.snapshot().toolOrigin[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vmcp.ErrUnknownTool, name)
	}

	if o.Kind == originCustom {
		tool := findCustomTool(c.VMCP.CustomTools, o.Original)
		if tool == nil {
			return nil, fmt.Errorf("%w: %s", vmcp.ErrUnknownTool, name)
		}
		if err := customtool.ValidateArguments(tool.InputSchema, args); err != nil {
			return nil, err
		}
		engine, ok := c.Engines[tool.Kind]
		if !ok {
			return nil, fmt.Errorf("no engine registered for custom tool kind %q", tool.Kind)
		}
		result, err := engine.Invoke(ic, ic, *tool, args)
		if err != nil {
			return nil, redactResultErr(err, c.secrets)
		}
		return result, nil
	}

	sess, err := c.Registry.MustGet(o.Server)
	if err != nil {
		return nil, err
	}
	result, err := sess.CallTool(ic, o.Original, args)
	if err != nil {
		logger.Warnf("tool %s on upstream %s failed: %v", o.Original, o.Server, vmcp.Redact(err.Error(), c.secrets))
		return nil, err
	}
	return result, nil
}

// ReadResource dispatches uri to its resolved origin.
func (c *Composer) ReadResource(ctx context.Context, uri string) (*vmcp.ResourceReadResult, error) {
	ic, cancel := vmcp.NewInvocationContext(ctx, c.VMCP)
	defer cancel()
	return c.dispatchResource(ic, uri)
}

func (c *Composer) dispatchResource(ic *vmcp.InvocationContext, uri string) (*vmcp.ResourceReadResult, error) {
	snap := c.snapshot()
	o, ok := snap.resourceOrigin[uri]
	if !ok {
		o, ok = snap.resourceAlias[uri]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", vmcp.ErrUnknownResource, uri)
	}
	if o.Kind == originCustom {
		res := findCustomResource(c.VMCP.CustomRes, o.Original)
		if res == nil {
			return nil, fmt.Errorf("%w: %s", vmcp.ErrUnknownResource, uri)
		}
		return &vmcp.ResourceReadResult{Contents: res.Bytes, MimeType: res.MimeType}, nil
	}
	sess, err := c.Registry.MustGet(o.Server)
	if err != nil {
		return nil, err
	}
	return sess.ReadResource(ic, o.Original)
}

// GetPrompt dispatches name to its resolved origin.
func (c *Composer) GetPrompt(ctx context.Context, name string, args map[string]any) (*vmcp.PromptGetResult, error) {
	ic, cancel := vmcp.NewInvocationContext(ctx, c.VMCP)
	defer cancel()
	return c.dispatchPrompt(ic, name, args)
}

func (c *Composer) dispatchPrompt(ic *vmcp.InvocationContext, name string, args map[string]any) (*vmcp.PromptGetResult, error) {
	o, ok := c.snapshot().promptOrigin[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vmcp.ErrUnknownPrompt, name)
	}
	if o.Kind == originCustom {
		p := findCustomPrompt(c.VMCP.CustomPrompts, o.Original)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", vmcp.ErrUnknownPrompt, name)
		}
		ev := &template.Evaluator{Params: args, Config: envAsConfig(c.env), Invoker: &invokerAdapter{c}}
		body, err := template.Render(ic, ev, p.Body)
		if err != nil {
			return nil, err
		}
		return &vmcp.PromptGetResult{Messages: body, Description: p.Description}, nil
	}
	sess, err := c.Registry.MustGet(o.Server)
	if err != nil {
		return nil, err
	}
	return sess.GetPrompt(ic, o.Original, args)
}

// --- template.Invoker implementation, for recursive @tool/@resource/@prompt evaluation ---
//
// Composer's public CallTool/ReadResource/GetPrompt methods take a plain
// context.Context and return the full result types; template expressions
// carry a nested InvocationContext and expect []vmcp.Content back. Both
// address the same collision-resolved merged names, but the two signatures
// can't share method names on the same receiver, so the Invoker side lives
// on this unexported adapter.

// invokerAdapter implements template.Invoker over a Composer.
type invokerAdapter struct{ c *Composer }

// CallTool resolves name through the merged index, the same way a direct
// inbound call_tool would, so a nested @tool(...) expression addresses the
// vMCP's exposed surface rather than an upstream directly.
func (a *invokerAdapter) CallTool(ic *vmcp.InvocationContext, name string, args map[string]any) ([]vmcp.Content, error) {
	result, err := a.c.dispatchTool(ic, name, args)
	if err != nil {
		return nil, err
	}
	return result.Content, nil
}

// ReadResource resolves uri through the merged index, so a nested
// @resource(...) can address either a custom resource or an upstream one
// transparently.
func (a *invokerAdapter) ReadResource(ic *vmcp.InvocationContext, uri string) ([]vmcp.Content, error) {
	res, err := a.c.dispatchResource(ic, uri)
	if err != nil {
		return nil, err
	}
	return []vmcp.Content{{Type: "text", Text: string(res.Contents), MimeType: res.MimeType}}, nil
}

// GetPrompt resolves name through the merged index.
func (a *invokerAdapter) GetPrompt(ic *vmcp.InvocationContext, name string, args map[string]any) ([]vmcp.Content, error) {
	result, err := a.c.dispatchPrompt(ic, name, args)
	if err != nil {
		return nil, err
	}
	return []vmcp.Content{{Type: "text", Text: result.Messages}}, nil
}

func findCustomTool(tools []vmcp.CustomTool, name string) *vmcp.CustomTool {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}

func findCustomResource(resources []vmcp.CustomResource, uri string) *vmcp.CustomResource {
	for i := range resources {
		if resources[i].URI == uri {
			return &resources[i]
		}
	}
	return nil
}

func findCustomPrompt(prompts []vmcp.CustomPrompt, name string) *vmcp.CustomPrompt {
	for i := range prompts {
		if prompts[i].Name == name {
			return &prompts[i]
		}
	}
	return nil
}

func redactResultErr(err error, secrets []string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", vmcp.Redact(err.Error(), secrets))
}

var _ toolSession = (*upstream.Session)(nil)
