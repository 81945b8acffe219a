package vmcp

import (
	"context"
	"sync"
	"time"
)

// MaxTemplateDepth bounds recursive @tool/@resource/@prompt evaluation
// (spec §5). A chain longer than this fails with ErrTemplateRecursion
// rather than growing the call stack unbounded.
const MaxTemplateDepth = 8

// InvocationContext is the request-scoped state threaded through one
// inbound MCP call: the vMCP it targets, its frozen environment, the
// deadline derived from VMCP.Deadline, a recursion counter for nested
// @tool/@resource/@prompt evaluation, and a memo cache so repeated
// @tool/@resource/@prompt expressions with the same arguments within the
// same request reuse one result (spec §4.4 Open Question: resources
// memoize per Invocation Context).
type InvocationContext struct {
	context.Context

	VMCPName string
	VMCPID   string
	Env      map[string]string

	depth int

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	value []Content
	err   error
}

// NewInvocationContext derives a root InvocationContext for one inbound
// request, applying the vMCP's default deadline when it is nonzero.
func NewInvocationContext(parent context.Context, v *VMCP) (*InvocationContext, context.CancelFunc) {
	ctx := parent
	cancel := func() {}
	if v.Deadline > 0 {
		ctx, cancel = context.WithTimeout(parent, v.Deadline)
	}

	env := make(map[string]string, len(v.Env))
	for _, e := range v.Env {
		env[e.Name] = e.Value
	}

	return &InvocationContext{
		Context:  ctx,
		VMCPName: v.Name,
		VMCPID:   v.ID,
		Env:      env,
		memo:     make(map[string]memoEntry),
	}, cancel
}

// Nested returns a child InvocationContext for one level of recursive
// evaluation (a @tool or @prompt expression invoking another capability),
// sharing the memo cache and environment but incrementing the recursion
// counter. It returns ErrTemplateRecursion once MaxTemplateDepth is
// exceeded.
func (ic *InvocationContext) Nested() (*InvocationContext, error) {
	if ic.depth+1 > MaxTemplateDepth {
		return nil, ErrTemplateRecursion
	}
	return &InvocationContext{
		Context:  ic.Context,
		VMCPName: ic.VMCPName,
		VMCPID:   ic.VMCPID,
		Env:      ic.Env,
		depth:    ic.depth + 1,
		mu:       sync.Mutex{},
		memo:     ic.memo,
	}, nil
}

// Depth returns the current recursion depth (0 for the root context).
func (ic *InvocationContext) Depth() int { return ic.depth }

// MemoGet returns a previously cached @tool/@resource/@prompt result for
// key, if any.
func (ic *InvocationContext) MemoGet(key string) ([]Content, error, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	e, ok := ic.memo[key]
	if !ok {
		return nil, nil, false
	}
	return e.value, e.err, true
}

// MemoPut records the result of a @tool/@resource/@prompt call under key for the
// remainder of this request.
func (ic *InvocationContext) MemoPut(key string, value []Content, err error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.memo[key] = memoEntry{value: value, err: err}
}

// RemainingDeadline reports the time remaining before this request's deadline,
// or false if no deadline was set.
func (ic *InvocationContext) RemainingDeadline() (time.Duration, bool) {
	dl, ok := ic.Context.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(dl), true
}
