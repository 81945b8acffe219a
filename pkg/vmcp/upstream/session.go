package upstream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vmcpio/vmcpd/pkg/logger"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// initTimeout bounds the MCP initialize handshake.
const initTimeout = 30 * time.Second

// maxResponseSize caps backend HTTP response bodies read into memory,
// protecting against a misbehaving or compromised upstream exhausting
// process memory via an oversized tools/list or resource payload.
const maxResponseSize = 100 * 1024 * 1024

// Session is an Upstream Session: the persistent, stateful connection to
// one backend MCP server, implementing the state machine from spec §4.1
// (idle → connecting → connected → {disconnected, auth_required, error}).
type Session struct {
	server vmcp.UpstreamServer

	mu          sync.Mutex
	state       vmcp.SessionState
	client      *client.Client
	lastErr     error
	pendingAuth string // authorization_url surfaced by the last reactive auth challenge, if any

	oauthSrc *pkceOAuthSource
}

// NewSession constructs an idle Session for the given upstream server
// configuration. Connect must be called before use.
func NewSession(server vmcp.UpstreamServer) *Session {
	s := &Session{server: server, state: vmcp.StateIdle}
	if server.Auth.Kind == vmcp.AuthOAuth2 && server.Auth.OAuth != nil {
		s.oauthSrc = newPKCEOAuthSource(server.Auth.OAuth)
	}
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() vmcp.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Server returns the upstream server configuration this session targets.
func (s *Session) Server() vmcp.UpstreamServer { return s.server }

// AuthorizationURL returns the URL the end user must visit to complete
// OAuth2 authorization, transitioning the session to auth_required.
// Returns an error if this session's auth policy is not oauth2.
func (s *Session) AuthorizationURL(state string) (string, error) {
	if s.oauthSrc == nil {
		return "", fmt.Errorf("session %s is not configured for oauth2", s.server.Name)
	}
	url, err := s.oauthSrc.AuthorizationURL(state)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.state = vmcp.StateAuthRequired
	s.pendingAuth = url
	s.mu.Unlock()
	return url, nil
}

// PendingAuthorizationURL returns the authorization URL surfaced by the
// most recent auth challenge (synchronous AuthorizationURL call or a
// reactive mid-call 401), or "" if none is pending.
func (s *Session) PendingAuthorizationURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAuth
}

// triggerAuthRequired transitions the session to auth_required reactively,
// in response to a backend returning 401 to an already-authenticated
// request mid-call (spec §4.1/§7, Testable Scenario 5): the credential
// this session was using no longer authorizes it, independent of the
// synchronous AuthorizationURL()/CompleteAuthorization() flow a caller
// might also be driving. For an oauth2 session this also computes a fresh
// authorization URL so the caller can hand it back to the end user without
// a second round trip.
func (s *Session) triggerAuthRequired() {
	var url string
	if s.oauthSrc != nil {
		url, _ = s.oauthSrc.AuthorizationURL(uuid.NewString())
	}
	s.mu.Lock()
	s.state = vmcp.StateAuthRequired
	s.pendingAuth = url
	s.mu.Unlock()
}

// CompleteAuthorization finishes the PKCE exchange and attempts to connect.
func (s *Session) CompleteAuthorization(ctx context.Context, code string) error {
	if s.oauthSrc == nil {
		return fmt.Errorf("session %s is not configured for oauth2", s.server.Name)
	}
	if err := s.oauthSrc.ExchangeCode(ctx, code); err != nil {
		return err
	}
	return s.Connect(ctx)
}

// Connect establishes the backend MCP client connection and performs the
// initialize handshake, transitioning idle/disconnected → connecting →
// connected (or → auth_required / error on failure).
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.oauthSrc != nil && s.oauthSrc.AwaitingAuthorization() {
		s.state = vmcp.StateAuthRequired
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s awaiting oauth2 authorization", vmcp.ErrAuthRequired, s.server.Name)
	}
	s.state = vmcp.StateConnecting
	s.mu.Unlock()

	c, err := s.buildClient(ctx)
	if err != nil {
		s.fail(err)
		return wrapConnectError(err, s.server.Name)
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if _, err := c.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "vmcpd",
				Version: "0.1.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}); err != nil {
		_ = c.Close()
		s.fail(err)
		return wrapConnectError(err, s.server.Name)
	}

	s.mu.Lock()
	s.client = c
	s.state = vmcp.StateConnected
	s.lastErr = nil
	s.pendingAuth = ""
	s.mu.Unlock()
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if errors.Is(err, vmcp.ErrAuthRequired) {
		s.state = vmcp.StateAuthRequired
	} else {
		s.state = vmcp.StateError
	}
}

// Close tears down the backend connection, transitioning to disconnected.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.state = vmcp.StateDisconnected
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

func (s *Session) buildClient(ctx context.Context) (*client.Client, error) {
	var base http.RoundTripper = http.DefaultTransport
	var ts oauthTokenSource
	if s.oauthSrc != nil {
		ts = s.oauthSrc
	}
	httpClient := newAuthenticatedClient(s.server.Auth, ts, base, s.triggerAuthRequired)
	httpClient.Transport = sizeLimited(httpClient.Transport)
	httpClient.Timeout = 60 * time.Second

	var c *client.Client
	var err error
	switch s.server.Transport {
	case vmcp.TransportHTTP:
		c, err = client.NewStreamableHttpClient(
			s.server.Endpoint,
			transport.WithHTTPTimeout(60*time.Second),
			transport.WithHTTPBasicClient(httpClient),
		)
	case vmcp.TransportSSE:
		c, err = client.NewSSEMCPClient(
			s.server.Endpoint,
			transport.WithHTTPClient(httpClient),
		)
	default:
		return nil, fmt.Errorf("unsupported transport %q", s.server.Transport)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func sizeLimited(base http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp.Body = newLimitedReadCloser(resp.Body, maxResponseSize)
		return resp, nil
	})
}

// ensureConnected performs one implicit reconnect attempt before giving up
// with ErrUpstreamUnavailable (spec §7).
func (s *Session) ensureConnected(ctx context.Context) (*client.Client, error) {
	s.mu.Lock()
	state := s.state
	c := s.client
	s.mu.Unlock()

	if state == vmcp.StateConnected && c != nil {
		return c, nil
	}
	if state == vmcp.StateAuthRequired {
		return nil, s.authRequiredErr(fmt.Errorf("%w: session %s", vmcp.ErrAuthRequired, s.server.Name))
	}

	if err := s.Connect(ctx); err != nil {
		if errors.Is(err, vmcp.ErrAuthRequired) {
			return nil, s.authRequiredErr(err)
		}
		return nil, fmt.Errorf("%w: %v", vmcp.ErrUpstreamUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, nil
}

// ListCapabilities queries tools/resources/prompts from the backend,
// skipping queries for capability kinds the server doesn't advertise.
func (s *Session) ListCapabilities(ctx context.Context) (*vmcp.CapabilitySnapshot, error) {
	c, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	var tools mcp.ListToolsResult
	if r, err := c.ListTools(ctx, mcp.ListToolsRequest{}); err != nil {
		return nil, s.wrapCallError(err, "list tools")
	} else if r != nil {
		tools = *r
	}

	var resources mcp.ListResourcesResult
	if r, err := c.ListResources(ctx, mcp.ListResourcesRequest{}); err != nil {
		logger.Debugf("backend %s does not support resources: %v", s.server.Name, err)
	} else if r != nil {
		resources = *r
	}

	var prompts mcp.ListPromptsResult
	if r, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{}); err != nil {
		logger.Debugf("backend %s does not support prompts: %v", s.server.Name, err)
	} else if r != nil {
		prompts = *r
	}

	snap := &vmcp.CapabilitySnapshot{DiscoveredAt: time.Now()}
	for _, t := range tools.Tools {
		schema := map[string]any{"type": t.InputSchema.Type}
		if t.InputSchema.Properties != nil {
			schema["properties"] = t.InputSchema.Properties
		}
		if len(t.InputSchema.Required) > 0 {
			schema["required"] = t.InputSchema.Required
		}
		snap.Tools = append(snap.Tools, vmcp.ToolDescriptor{
			Name: t.Name, Description: t.Description, InputSchema: schema,
		})
	}
	for _, r := range resources.Resources {
		snap.Resources = append(snap.Resources, vmcp.ResourceDescriptor{
			URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MIMEType,
		})
	}
	for _, p := range prompts.Prompts {
		var args []vmcp.PromptArgument
		for _, a := range p.Arguments {
			args = append(args, vmcp.PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		snap.Prompts = append(snap.Prompts, vmcp.PromptDescriptor{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return snap, nil
}

// CallTool invokes toolName on the backend with arguments.
func (s *Session) CallTool(ctx context.Context, toolName string, arguments map[string]any) (*vmcp.ToolCallResult, error) {
	c, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: toolName, Arguments: arguments},
	})
	if err != nil {
		return nil, s.wrapCallError(err, "call tool "+toolName)
	}
	content := make([]vmcp.Content, len(result.Content))
	for i, c := range result.Content {
		content[i] = convertContent(c)
	}
	return &vmcp.ToolCallResult{Content: content, IsError: result.IsError}, nil
}

// ReadResource reads uri from the backend.
func (s *Session) ReadResource(ctx context.Context, uri string) (*vmcp.ResourceReadResult, error) {
	c, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	result, err := c.ReadResource(ctx, mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: uri}})
	if err != nil {
		return nil, s.wrapCallError(err, "read resource "+uri)
	}
	var data []byte
	var mimeType string
	for i, content := range result.Contents {
		if tc, ok := mcp.AsTextResourceContents(content); ok {
			data = append(data, []byte(tc.Text)...)
			if i == 0 {
				mimeType = tc.MIMEType
			}
		} else if bc, ok := mcp.AsBlobResourceContents(content); ok {
			decoded, err := base64.StdEncoding.DecodeString(bc.Blob)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid base64 blob from %s: %v", vmcp.ErrUpstreamProtocol, s.server.Name, err)
			}
			data = append(data, decoded...)
			if i == 0 {
				mimeType = bc.MIMEType
			}
		}
	}
	return &vmcp.ResourceReadResult{Contents: data, MimeType: mimeType}, nil
}

// GetPrompt renders name from the backend with arguments.
func (s *Session) GetPrompt(ctx context.Context, name string, arguments map[string]any) (*vmcp.PromptGetResult, error) {
	c, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	stringArgs := make(map[string]string, len(arguments))
	for k, v := range arguments {
		stringArgs[k] = fmt.Sprintf("%v", v)
	}
	result, err := c.GetPrompt(ctx, mcp.GetPromptRequest{Params: mcp.GetPromptParams{Name: name, Arguments: stringArgs}})
	if err != nil {
		return nil, s.wrapCallError(err, "get prompt "+name)
	}
	var body string
	for _, msg := range result.Messages {
		if tc, ok := mcp.AsTextContent(msg.Content); ok {
			body += tc.Text + "\n"
		}
	}
	return &vmcp.PromptGetResult{Messages: body, Description: result.Description}, nil
}

func convertContent(c mcp.Content) vmcp.Content {
	if tc, ok := mcp.AsTextContent(c); ok {
		return vmcp.Content{Type: "text", Text: tc.Text}
	}
	if ic, ok := mcp.AsImageContent(c); ok {
		return vmcp.Content{Type: "image", Data: ic.Data, MimeType: ic.MIMEType}
	}
	if ac, ok := mcp.AsAudioContent(c); ok {
		return vmcp.Content{Type: "audio", Data: ac.Data, MimeType: ac.MIMEType}
	}
	return vmcp.Content{Type: "unknown"}
}

func wrapConnectError(err error, server string) error {
	if errors.Is(err, vmcp.ErrAuthRequired) {
		return err
	}
	return fmt.Errorf("%w: connect to %s: %v", vmcp.ErrUpstreamUnavailable, server, err)
}

// authRequiredErr wraps err (already classified as ErrAuthRequired) with
// this session's pending authorization URL, if one was computed.
func (s *Session) authRequiredErr(err error) error {
	return &vmcp.AuthRequiredError{URL: s.PendingAuthorizationURL(), Err: err}
}

func (s *Session) wrapCallError(err error, op string) error {
	if err == nil {
		return nil
	}
	server := s.server.Name
	if errors.Is(err, vmcp.ErrAuthRequired) {
		s.triggerAuthRequired()
		return s.authRequiredErr(fmt.Errorf("%w: %s on %s: %v", vmcp.ErrAuthRequired, op, server, err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s on %s timed out: %v", vmcp.ErrUpstreamTimeout, op, server, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s on %s cancelled: %v", vmcp.ErrUpstreamTimeout, op, server, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s on %s timed out: %v", vmcp.ErrUpstreamTimeout, op, server, err)
	}
	return fmt.Errorf("%w: %s on %s: %v", vmcp.ErrUpstreamToolError, op, server, err)
}
