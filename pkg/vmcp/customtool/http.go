package customtool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/template"
)

const (
	httpConnectTimeout = 10 * time.Second
	httpTotalTimeout   = 60 * time.Second
	httpMaxRedirects   = 5
	httpMaxBody        = 25 * 1024 * 1024

	// httpErrorExcerptLen bounds how much of a non-2xx response body is
	// embedded in ErrToolHTTPStatus's detail (spec §4.5:
	// ToolHttpStatus(status, body_excerpt)) -- an excerpt for diagnosing the
	// failure, not the full (up to httpMaxBody) response.
	httpErrorExcerptLen = 2048
)

// HTTPEngine renders a CustomTool's method/URL/headers/body templates and
// issues the resulting request, applying the tool's auth binding. It
// bounds total request time, redirect count, and response size the way
// the Upstream Session's HTTP client does for backend connections.
type HTTPEngine struct {
	Invoker template.Invoker
	Config  map[string]any
	Client  *http.Client
}

// NewHTTPEngine builds an HTTPEngine with the spec's default timeouts and
// redirect policy.
func NewHTTPEngine(invoker template.Invoker, config map[string]any) *HTTPEngine {
	return &HTTPEngine{
		Invoker: invoker,
		Config:  config,
		Client: &http.Client{
			Timeout: httpTotalTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= httpMaxRedirects {
					return fmt.Errorf("stopped after %d redirects", httpMaxRedirects)
				}
				return nil
			},
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: httpConnectTimeout}).DialContext,
			},
		},
	}
}

// Invoke renders the tool's method, URL, headers, and body templates,
// issues the request, and parses the response per ResponseKind.
func (e *HTTPEngine) Invoke(ctx context.Context, ic *vmcp.InvocationContext, tool vmcp.CustomTool, args map[string]any) (*vmcp.ToolCallResult, error) {
	ev := &template.Evaluator{Params: args, Config: e.Config, Invoker: e.Invoker}

	url, err := template.Render(ic, ev, tool.HTTPURLTemplate)
	if err != nil {
		return nil, fmt.Errorf("http tool %s: rendering url: %w", tool.Name, err)
	}

	var body io.Reader
	if tool.HTTPBodyTemplate != "" {
		rendered, err := template.Render(ic, ev, tool.HTTPBodyTemplate)
		if err != nil {
			return nil, fmt.Errorf("http tool %s: rendering body: %w", tool.Name, err)
		}
		body = strings.NewReader(rendered)
	}

	method := tool.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request for tool %s: %v", vmcp.ErrBadArguments, tool.Name, err)
	}

	for k, vtmpl := range tool.HTTPHeaders {
		v, err := template.Render(ic, ev, vtmpl)
		if err != nil {
			return nil, fmt.Errorf("http tool %s: rendering header %s: %w", tool.Name, k, err)
		}
		req.Header.Set(k, v)
	}
	applyHTTPAuth(req, tool.HTTPAuth)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s request failed: %v", vmcp.ErrToolCrash, tool.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpMaxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s failed reading response: %v", vmcp.ErrToolCrash, tool.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: tool %s received status %d: %s", vmcp.ErrToolHTTPStatus, tool.Name, resp.StatusCode, bodyExcerpt(data))
	}

	return parseHTTPResponse(tool, data)
}

// bodyExcerpt truncates data to httpErrorExcerptLen bytes for embedding in
// an error message, marking truncation so the excerpt is never mistaken
// for the full body.
func bodyExcerpt(data []byte) string {
	if len(data) <= httpErrorExcerptLen {
		return string(data)
	}
	return string(data[:httpErrorExcerptLen]) + "...(truncated)"
}

func parseHTTPResponse(tool vmcp.CustomTool, data []byte) (*vmcp.ToolCallResult, error) {
	switch tool.HTTPResponseKind {
	case vmcp.ResponseJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: tool %s response is not valid JSON: %v", vmcp.ErrToolBadOutput, tool.Name, err)
		}
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			pretty = data
		}
		return textResult(string(pretty)), nil

	case vmcp.ResponseBinary:
		return &vmcp.ToolCallResult{Content: []vmcp.Content{{
			Type: "resource", Data: base64.StdEncoding.EncodeToString(data), MimeType: "application/octet-stream",
		}}}, nil

	default: // ResponseText
		return textResult(string(data)), nil
	}
}

func applyHTTPAuth(req *http.Request, binding vmcp.HTTPAuthBinding) {
	switch binding.Kind {
	case vmcp.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+binding.Token)
	case vmcp.AuthAPIKey:
		name := binding.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		req.Header.Set(name, binding.Token)
	case vmcp.AuthBasic:
		req.SetBasicAuth(binding.Username, binding.Password)
	case vmcp.AuthCustomHeader:
		if binding.HeaderName != "" {
			req.Header.Set(binding.HeaderName, binding.Token)
		}
	}
}
