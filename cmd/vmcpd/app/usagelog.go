package app

import (
	"context"
	"time"

	"github.com/vmcpio/vmcpd/pkg/store"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/adapter"
)

// loggingDispatcher wraps an adapter.Dispatcher, appending one
// store.UsageLogEntry per tool call, resource read, and prompt get (spec
// §6's append-only usage_log row). List methods pass straight through.
type loggingDispatcher struct {
	adapter.Dispatcher
	vmcpID string
	log    store.UsageLogStore
}

func newLoggingDispatcher(vmcpID string, d adapter.Dispatcher, log store.UsageLogStore) adapter.Dispatcher {
	return &loggingDispatcher{Dispatcher: d, vmcpID: vmcpID, log: log}
}

func (d *loggingDispatcher) record(ctx context.Context, method, name, server string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(vmcp.ClassifyError(err))
	}
	_ = d.log.Append(ctx, store.UsageLogEntry{
		VMCPID:     d.vmcpID,
		Method:     method,
		ToolName:   name,
		ServerName: server,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
		Outcome:    outcome,
	})
}

func (d *loggingDispatcher) CallTool(ctx context.Context, name string, args map[string]any) (*vmcp.ToolCallResult, error) {
	started := time.Now()
	result, err := d.Dispatcher.CallTool(ctx, name, args)
	d.record(ctx, "tools/call", name, "", started, err)
	return result, err
}

func (d *loggingDispatcher) ReadResource(ctx context.Context, uri string) (*vmcp.ResourceReadResult, error) {
	started := time.Now()
	result, err := d.Dispatcher.ReadResource(ctx, uri)
	d.record(ctx, "resources/read", uri, "", started, err)
	return result, err
}

func (d *loggingDispatcher) GetPrompt(ctx context.Context, name string, args map[string]any) (*vmcp.PromptGetResult, error) {
	started := time.Now()
	result, err := d.Dispatcher.GetPrompt(ctx, name, args)
	d.record(ctx, "prompts/get", name, "", started, err)
	return result, err
}
