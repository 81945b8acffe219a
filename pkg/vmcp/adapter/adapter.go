// Package adapter implements the MCP Protocol Adapter (spec §4.7): it
// terminates the inbound MCP wire protocol, routes by vMCP name extracted
// from the URL path, and translates tools/list, tools/call, resources/list,
// resources/read, prompts/list, prompts/get, and ping into Composer calls.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vmcpio/vmcpd/pkg/logger"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/composer"
)

// mountPrefix is the path prefix each vMCP is served under, matching
// spec §6's "/private/{vmcp_name}/vmcp" inbound surface. Both the
// streamable and the plain JSON-RPC-over-HTTP forms are served by the
// same handler: the SDK's streamable transport negotiates between them
// from the request's Accept header.
const mountPrefix = "/private"

// Dispatcher is the subset of *composer.Composer the Adapter depends on,
// narrowed for testability.
type Dispatcher interface {
	ListTools(ctx context.Context) ([]vmcp.ToolDescriptor, error)
	ListResources(ctx context.Context) ([]vmcp.ResourceDescriptor, error)
	ListPrompts(ctx context.Context) ([]vmcp.PromptDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*vmcp.ToolCallResult, error)
	ReadResource(ctx context.Context, uri string) (*vmcp.ResourceReadResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]any) (*vmcp.PromptGetResult, error)
}

type mount struct {
	dispatcher Dispatcher
	secrets    []string
	mcpServer  *server.MCPServer
	handler    http.Handler
}

// Adapter owns one mark3labs MCP server per mounted vMCP and routes
// incoming requests to it by name.
type Adapter struct {
	mu     sync.RWMutex
	mounts map[string]*mount
}

// New builds an empty Adapter.
func New() *Adapter {
	return &Adapter{mounts: make(map[string]*mount)}
}

// Mount registers name, building a fresh MCP server over dispatcher's
// current capability snapshot. Call Refresh after any capability change
// to keep the registered tools/resources/prompts in sync.
func (a *Adapter) Mount(ctx context.Context, name string, dispatcher Dispatcher, secrets []string) error {
	m := &mount{dispatcher: dispatcher, secrets: secrets}
	mcpServer := server.NewMCPServer(name, "0.1.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
		server.WithLogging(),
	)
	m.mcpServer = mcpServer
	if err := a.populate(ctx, m); err != nil {
		return fmt.Errorf("mount %s: %w", name, err)
	}
	m.handler = server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(fmt.Sprintf("%s/%s/vmcp", mountPrefix, name)),
	)

	a.mu.Lock()
	a.mounts[name] = m
	a.mu.Unlock()
	return nil
}

// Refresh re-registers name's tools/resources/prompts from its
// dispatcher's current snapshot, picking up any capability-cache or
// custom-tool-list change since Mount or the last Refresh.
func (a *Adapter) Refresh(ctx context.Context, name string) error {
	a.mu.RLock()
	m, ok := a.mounts[name]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("adapter: no vMCP mounted under %q", name)
	}
	return a.populate(ctx, m)
}

// Unmount removes name, if present.
func (a *Adapter) Unmount(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.mounts, name)
}

func (a *Adapter) populate(ctx context.Context, m *mount) error {
	tools, err := m.dispatcher.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	resources, err := m.dispatcher.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}
	prompts, err := m.dispatcher.ListPrompts(ctx)
	if err != nil {
		return fmt.Errorf("list prompts: %w", err)
	}

	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, t := range tools {
		schemaJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			return fmt.Errorf("marshal schema for tool %s: %w", t.Name, err)
		}
		serverTools = append(serverTools, server.ServerTool{
			Tool: mcp.Tool{
				Name:           t.Name,
				Description:    t.Description,
				RawInputSchema: schemaJSON,
			},
			Handler: toolHandler(m, t.Name),
		})
	}
	m.mcpServer.AddTools(serverTools...)

	for _, r := range resources {
		m.mcpServer.AddResource(mcp.Resource{
			URI:      r.URI,
			Name:     r.Name,
			MIMEType: r.MimeType,
		}, resourceHandler(m, r.URI))
	}

	for _, p := range prompts {
		args := make([]mcp.PromptArgument, len(p.Arguments))
		for i, pa := range p.Arguments {
			args[i] = mcp.PromptArgument{Name: pa.Name, Description: pa.Description, Required: pa.Required}
		}
		m.mcpServer.AddPrompt(mcp.Prompt{
			Name:        p.Name,
			Description: p.Description,
			Arguments:   args,
		}, promptHandler(m, p.Name))
	}

	logger.Debugf("adapter: populated %d tools, %d resources, %d prompts", len(tools), len(resources), len(prompts))
	return nil
}

func toolHandler(m *mount, name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		result, err := m.dispatcher.CallTool(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(vmcp.Redact(err.Error(), m.secrets)), nil
		}
		content := make([]mcp.Content, len(result.Content))
		for i, c := range result.Content {
			content[i] = toMCPContent(c)
		}
		return &mcp.CallToolResult{Content: content, IsError: result.IsError}, nil
	}
}

func resourceHandler(m *mount, uri string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		result, err := m.dispatcher.ReadResource(ctx, uri)
		if err != nil {
			return nil, toRPCError(err, m.secrets)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: result.MimeType, Text: string(result.Contents)},
		}, nil
	}
}

func promptHandler(m *mount, name string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := make(map[string]any, len(request.Params.Arguments))
		for k, v := range request.Params.Arguments {
			args[k] = v
		}
		result, err := m.dispatcher.GetPrompt(ctx, name, args)
		if err != nil {
			return nil, toRPCError(err, m.secrets)
		}
		return &mcp.GetPromptResult{
			Description: result.Description,
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleAssistant, Content: mcp.NewTextContent(result.Messages)},
			},
		}, nil
	}
}

func toMCPContent(c vmcp.Content) mcp.Content {
	switch c.Type {
	case "image":
		return mcp.NewImageContent(c.Data, c.MimeType)
	case "audio":
		return mcp.NewAudioContent(c.Data, c.MimeType)
	default:
		return mcp.NewTextContent(c.Text)
	}
}

// Router returns the chi router serving every mounted vMCP under
// /private/{vmcp_name}/vmcp.
func (a *Adapter) Router() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc(mountPrefix+"/{vmcp_name}/vmcp", a.serveVMCP)
	r.HandleFunc(mountPrefix+"/{vmcp_name}/vmcp/*", a.serveVMCP)
	return r
}

func (a *Adapter) serveVMCP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "vmcp_name")
	a.mu.RLock()
	m, ok := a.mounts[name]
	a.mu.RUnlock()
	if !ok {
		http.Error(w, fmt.Sprintf(`{"jsonrpc":"2.0","error":{"code":%d,"message":"no such vMCP: %s"}}`, codeMethodNotFound, name), http.StatusNotFound)
		return
	}
	m.handler.ServeHTTP(w, r)
}
