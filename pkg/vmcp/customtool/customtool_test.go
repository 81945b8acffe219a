package customtool_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/customtool"
)

type fakeInvoker struct{}

func (fakeInvoker) CallTool(*vmcp.InvocationContext, string, map[string]any) ([]vmcp.Content, error) {
	return nil, nil
}
func (fakeInvoker) ReadResource(*vmcp.InvocationContext, string) ([]vmcp.Content, error) {
	return nil, nil
}
func (fakeInvoker) GetPrompt(*vmcp.InvocationContext, string, map[string]any) ([]vmcp.Content, error) {
	return nil, nil
}

func newCtx(t *testing.T) *vmcp.InvocationContext {
	t.Helper()
	ic, cancel := vmcp.NewInvocationContext(context.Background(), &vmcp.VMCP{Name: "t", ID: "t1"})
	t.Cleanup(cancel)
	return ic
}

func TestValidateArguments_MissingRequiredField(t *testing.T) {
	t.Parallel()

	schema := map[string]any{
		"type":     "object",
		"required": []any{"city"},
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	}
	err := customtool.ValidateArguments(schema, map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrBadArguments)
}

func TestValidateArguments_Valid(t *testing.T) {
	t.Parallel()

	schema := map[string]any{
		"type":     "object",
		"required": []any{"city"},
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	}
	err := customtool.ValidateArguments(schema, map[string]any{"city": "nyc"})
	require.NoError(t, err)
}

func TestValidateArguments_NilSchemaAlwaysPasses(t *testing.T) {
	t.Parallel()

	err := customtool.ValidateArguments(nil, map[string]any{"anything": true})
	require.NoError(t, err)
}

func TestPromptEngine_Invoke(t *testing.T) {
	t.Parallel()

	e := &customtool.PromptEngine{Invoker: fakeInvoker{}}
	tool := vmcp.CustomTool{Name: "greet", Kind: vmcp.CustomToolPrompt, PromptBody: "hello {{@param.name}}"}

	result, err := e.Invoke(context.Background(), newCtx(t), tool, map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hello ada", result.Content[0].Text)
	assert.False(t, result.IsError)
}

// TestHTTPEngine_Invoke_GreetScenario covers the spec's scenario 3: a
// custom HTTP tool templating its URL from an argument and returning the
// upstream's JSON body as the tool result.
func TestHTTPEngine_Invoke_GreetScenario(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hello", r.URL.Path)
		assert.Equal(t, "ada", r.URL.Query().Get("n"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"greeting":"hello ada"}`))
	}))
	t.Cleanup(srv.Close)

	e := customtool.NewHTTPEngine(fakeInvoker{}, nil)
	tool := vmcp.CustomTool{
		Name:             "greet",
		Kind:             vmcp.CustomToolHTTP,
		HTTPMethod:       http.MethodGet,
		HTTPURLTemplate:  srv.URL + "/hello?n={{@param.name}}",
		HTTPResponseKind: vmcp.ResponseJSON,
	}

	result, err := e.Invoke(context.Background(), newCtx(t), tool, map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "hello ada")
}

// TestHTTPEngine_Invoke_NonSuccessStatusIsTruncated checks that a non-2xx
// response wraps ErrToolHTTPStatus and that a body larger than the excerpt
// bound arrives truncated rather than embedded whole.
func TestHTTPEngine_Invoke_NonSuccessStatusIsTruncated(t *testing.T) {
	t.Parallel()

	hugeBody := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(hugeBody))
	}))
	t.Cleanup(srv.Close)

	e := customtool.NewHTTPEngine(fakeInvoker{}, nil)
	tool := vmcp.CustomTool{
		Name:             "flaky",
		Kind:             vmcp.CustomToolHTTP,
		HTTPMethod:       http.MethodGet,
		HTTPURLTemplate:  srv.URL,
		HTTPResponseKind: vmcp.ResponseText,
	}

	_, err := e.Invoke(context.Background(), newCtx(t), tool, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrToolHTTPStatus)
	assert.Contains(t, err.Error(), "...(truncated)")
	assert.NotContains(t, err.Error(), hugeBody)
}

// TestHTTPEngine_Invoke_BinaryResponse covers the binary response_kind,
// which base64-encodes the body into a resource content block.
func TestHTTPEngine_Invoke_BinaryResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x00, 0x01, 0x02, 0xff})
	}))
	t.Cleanup(srv.Close)

	e := customtool.NewHTTPEngine(fakeInvoker{}, nil)
	tool := vmcp.CustomTool{
		Name:             "raw",
		Kind:             vmcp.CustomToolHTTP,
		HTTPMethod:       http.MethodGet,
		HTTPURLTemplate:  srv.URL,
		HTTPResponseKind: vmcp.ResponseBinary,
	}

	result, err := e.Invoke(context.Background(), newCtx(t), tool, nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "resource", result.Content[0].Type)
	assert.Equal(t, "application/octet-stream", result.Content[0].MimeType)
}

// TestHTTPEngine_Invoke_BearerAuthBinding checks the tool's auth binding is
// applied to the outgoing request.
func TestHTTPEngine_Invoke_BearerAuthBinding(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	e := customtool.NewHTTPEngine(fakeInvoker{}, nil)
	tool := vmcp.CustomTool{
		Name:             "secured",
		Kind:             vmcp.CustomToolHTTP,
		HTTPMethod:       http.MethodGet,
		HTTPURLTemplate:  srv.URL,
		HTTPResponseKind: vmcp.ResponseText,
		HTTPAuth:         vmcp.HTTPAuthBinding{Kind: vmcp.AuthBearer, Token: "s3cr3t"},
	}

	_, err := e.Invoke(context.Background(), newCtx(t), tool, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cr3t", gotAuth)
}

// dockerAvailable reports whether a Docker (or Docker-compatible) daemon
// is reachable, so ScriptEngine tests can skip cleanly in environments
// without one instead of failing.
func dockerAvailable(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Ping(ctx); err != nil {
		t.Skipf("docker daemon unreachable: %v", err)
	}
	return c
}

// TestScriptEngine_Invoke_ArgsAndEnvPreamble covers the spec's input
// contract: declared arguments land in TOOL_ARGS and the declared
// environment names land in TOOL_ENV, both without the script touching
// stdin itself.
func TestScriptEngine_Invoke_ArgsAndEnvPreamble(t *testing.T) {
	docker := dockerAvailable(t)
	e := &customtool.ScriptEngine{Docker: docker}

	tool := vmcp.CustomTool{
		Name:       "echoargs",
		Kind:       vmcp.CustomToolScript,
		ScriptEnv:  []string{"GREETING"},
		ScriptSource: "import json\n" +
			"print(json.dumps({'args': TOOL_ARGS, 'env': TOOL_ENV}))\n",
	}
	ic, cancel := vmcp.NewInvocationContext(context.Background(), &vmcp.VMCP{Name: "t", ID: "t1"})
	t.Cleanup(cancel)
	ic.Env = map[string]string{"GREETING": "hi"}

	result, err := e.Invoke(context.Background(), ic, tool, map[string]any{"city": "nyc"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, `"city": "nyc"`)
	assert.Contains(t, result.Content[0].Text, `"GREETING": "hi"`)
}

// TestScriptEngine_Invoke_WallClockTimeout covers the spec's scenario 6:
// a script that never exits is killed at its wall-clock bound and the
// call fails with ErrToolTimeout.
func TestScriptEngine_Invoke_WallClockTimeout(t *testing.T) {
	docker := dockerAvailable(t)
	e := &customtool.ScriptEngine{Docker: docker}

	tool := vmcp.CustomTool{
		Name:         "spin",
		Kind:         vmcp.CustomToolScript,
		ScriptSource: "while True:\n    pass\n",
	}

	_, err := e.Invoke(context.Background(), newCtx(t), tool, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrToolTimeout)
}

// TestScriptEngine_Invoke_CancelKillsSubprocessWithinOneSecond checks that
// cancelling the caller's context returns promptly rather than waiting out
// the full wall clock, and that the container is actually torn down.
func TestScriptEngine_Invoke_CancelKillsSubprocessWithinOneSecond(t *testing.T) {
	docker := dockerAvailable(t)
	e := &customtool.ScriptEngine{Docker: docker}

	tool := vmcp.CustomTool{
		Name:         "spin",
		Kind:         vmcp.CustomToolScript,
		ScriptSource: "while True:\n    pass\n",
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Invoke(ctx, newCtx(t), tool, nil)
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, vmcp.ErrToolTimeout)
	case <-time.After(1 * time.Second):
		t.Fatal("Invoke did not return within 1s of cancellation")
	}
}
