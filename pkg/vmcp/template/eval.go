package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// Invoker lets the template evaluator recurse back into the vMCP Composer
// for @tool, @resource, and @prompt expressions without the template
// package importing the composer package. The Composer supplies the
// implementation through Composer.Invoker; tests supply fakes.
type Invoker interface {
	CallTool(ic *vmcp.InvocationContext, name string, args map[string]any) ([]vmcp.Content, error)
	ReadResource(ic *vmcp.InvocationContext, uri string) ([]vmcp.Content, error)
	GetPrompt(ic *vmcp.InvocationContext, name string, args map[string]any) ([]vmcp.Content, error)
}

// Evaluator evaluates parsed @-expressions against one invocation's
// parameters and config, recursing into an Invoker for @tool/@resource/
// @prompt expressions.
type Evaluator struct {
	Params  map[string]any
	Config  map[string]any
	Invoker Invoker
}

// Eval evaluates expr within ic, returning the resulting value. @param and
// @config expressions yield whatever value sits at the resolved path
// (which may be non-string); @tool/@resource/@prompt expressions always
// yield a string, the concatenation of the invoked capability's text
// content.
func (e *Evaluator) Eval(ic *vmcp.InvocationContext, expr Expr) (any, error) {
	switch v := expr.(type) {
	case Literal:
		return v.Value, nil

	case ParamRef:
		val, ok := lookupPath(e.Params, v.Path)
		if !ok {
			return nil, fmt.Errorf("%w: @param.%s", vmcp.ErrBadArguments, strings.Join(v.Path, "."))
		}
		return val, nil

	case ConfigRef:
		val, ok := lookupPath(e.Config, v.Path)
		if !ok {
			return nil, fmt.Errorf("%w: @config.%s", vmcp.ErrTemplateMissingConfig, strings.Join(v.Path, "."))
		}
		return val, nil

	case ToolRef:
		return e.evalTool(ic, v)

	case ResourceRef:
		return e.evalResource(ic, v)

	case ResourceAliasRef:
		return e.evalResource(ic, ResourceRef{URI: Literal{Value: v.Alias}})

	case PromptRef:
		return e.evalPrompt(ic, v)

	default:
		return nil, fmt.Errorf("%w: unrecognized expression node %T", vmcp.ErrTemplateSyntax, expr)
	}
}

func (e *Evaluator) evalTool(ic *vmcp.InvocationContext, ref ToolRef) (string, error) {
	args, err := e.evalArgs(ic, ref.Args)
	if err != nil {
		return "", err
	}

	key, err := memoKey("tool", ref.Name, args)
	if err != nil {
		return "", err
	}
	if cached, cacheErr, hit := ic.MemoGet(key); hit {
		if cacheErr != nil {
			return "", cacheErr
		}
		return joinText(cached), nil
	}

	nested, err := ic.Nested()
	if err != nil {
		return "", err
	}
	content, err := e.Invoker.CallTool(nested, ref.Name, args)
	ic.MemoPut(key, content, err)
	if err != nil {
		return "", err
	}
	return joinText(content), nil
}

func (e *Evaluator) evalResource(ic *vmcp.InvocationContext, ref ResourceRef) (string, error) {
	uriVal, err := e.Eval(ic, ref.URI)
	if err != nil {
		return "", err
	}
	uri, ok := uriVal.(string)
	if !ok {
		return "", fmt.Errorf("%w: @resource uri must evaluate to a string", vmcp.ErrBadArguments)
	}

	key, err := memoKey("resource", uri, nil)
	if err != nil {
		return "", err
	}
	if cached, cacheErr, hit := ic.MemoGet(key); hit {
		if cacheErr != nil {
			return "", cacheErr
		}
		return joinText(cached), nil
	}

	nested, err := ic.Nested()
	if err != nil {
		return "", err
	}
	content, err := e.Invoker.ReadResource(nested, uri)
	ic.MemoPut(key, content, err)
	if err != nil {
		return "", err
	}
	return joinText(content), nil
}

func (e *Evaluator) evalPrompt(ic *vmcp.InvocationContext, ref PromptRef) (string, error) {
	args, err := e.evalArgs(ic, ref.Args)
	if err != nil {
		return "", err
	}

	key, err := memoKey("prompt", ref.Name, args)
	if err != nil {
		return "", err
	}
	if cached, cacheErr, hit := ic.MemoGet(key); hit {
		if cacheErr != nil {
			return "", cacheErr
		}
		return joinText(cached), nil
	}

	nested, err := ic.Nested()
	if err != nil {
		return "", err
	}
	content, err := e.Invoker.GetPrompt(nested, ref.Name, args)
	ic.MemoPut(key, content, err)
	if err != nil {
		return "", err
	}
	return joinText(content), nil
}

// memoKey builds the request-scoped memoization key for a nested @tool,
// @resource, or @prompt call: kind, name, and the canonical JSON encoding of
// its resolved arguments (encoding/json sorts map keys, so equal argument
// sets always marshal identically regardless of source order).
func memoKey(kind, name string, args map[string]any) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling memo key args: %v", vmcp.ErrBadArguments, err)
	}
	return kind + ":" + name + ":" + string(argsJSON), nil
}

func (e *Evaluator) evalArgs(ic *vmcp.InvocationContext, exprs map[string]Expr) (map[string]any, error) {
	if exprs == nil {
		return nil, nil
	}
	out := make(map[string]any, len(exprs))
	for k, expr := range exprs {
		val, err := e.Eval(ic, expr)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

func joinText(content []vmcp.Content) string {
	var b strings.Builder
	for _, c := range content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// lookupPath walks a dotted path through nested map[string]any values. An
// empty path returns root itself (e.g. bare @param with no suffix yields
// the whole parameter object).
func lookupPath(root map[string]any, path []string) (any, bool) {
	var cur any = root
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
