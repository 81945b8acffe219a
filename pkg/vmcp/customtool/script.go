package customtool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/vmcpio/vmcpd/pkg/logger"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// scriptWallClock bounds how long a Script tool's container may run
// before it is forcibly killed (spec §5).
const scriptWallClock = 30 * time.Second

// scriptImage is the sandbox image used to execute a Script tool's
// ScriptSource as a Python program. Arguments are passed as a JSON object
// on stdin; the program's stdout is returned as the tool's text result.
const scriptImage = "python:3.12-slim"

// ScriptEngine runs a CustomTool's ScriptSource inside a short-lived
// Docker container, giving genuine process isolation and a hard
// kill-on-cancel boundary that an in-process interpreter cannot provide.
// Grounded on the teacher's pkg/container/docker client usage.
type ScriptEngine struct {
	Docker *client.Client
}

// NewScriptEngine connects to the local Docker (or Docker-compatible)
// socket using the default environment, the way the teacher's
// docker.NewClient negotiates API version against whatever daemon is
// reachable.
func NewScriptEngine() (*ScriptEngine, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &ScriptEngine{Docker: c}, nil
}

// Invoke starts a container running tool.ScriptSource, writes args as a
// JSON object to its stdin, and returns stdout as the tool's text result.
// The container is killed if ctx is cancelled or scriptWallClock elapses,
// whichever comes first.
func (e *ScriptEngine) Invoke(ctx context.Context, ic *vmcp.InvocationContext, tool vmcp.CustomTool, args map[string]any) (*vmcp.ToolCallResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, scriptWallClock)
	defer cancel()

	env := buildScriptEnv(tool, ic.Env)
	stdinJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: failed to encode arguments: %v", vmcp.ErrBadArguments, tool.Name, err)
	}

	source, err := scriptSourceWithPreamble(tool)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: failed to build script preamble: %v", vmcp.ErrBadArguments, tool.Name, err)
	}

	resp, err := e.Docker.ContainerCreate(runCtx,
		&container.Config{
			Image:        scriptImage,
			Cmd:          []string{"python3", "-c", source},
			Env:          env,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
			OpenStdin:    true,
			StdinOnce:    true,
			Tty:          false,
		},
		&container.HostConfig{
			NetworkMode: "none",
			AutoRemove:  false,
		},
		nil, nil, "",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: failed to create sandbox container: %v", vmcp.ErrToolCrash, tool.Name, err)
	}
	containerID := resp.ID
	defer func() {
		_ = e.Docker.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	attach, err := e.Docker.ContainerAttach(runCtx, containerID, container.AttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: failed to attach to sandbox: %v", vmcp.ErrToolCrash, tool.Name, err)
	}
	defer attach.Close()

	if err := e.Docker.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: tool %s: failed to start sandbox: %v", vmcp.ErrToolCrash, tool.Name, err)
	}

	if _, err := attach.Conn.Write(stdinJSON); err != nil {
		logger.Warnf("tool %s: failed to write stdin: %v", tool.Name, err)
	}
	_ = attach.CloseWrite()

	var stdout bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(&stdout, attach.Reader)
		copyDone <- err
	}()

	waitCh, errCh := e.Docker.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)
	select {
	case <-runCtx.Done():
		_ = e.Docker.ContainerKill(context.Background(), containerID, "SIGKILL")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: tool %s: cancelled", vmcp.ErrToolTimeout, tool.Name)
		}
		return nil, fmt.Errorf("%w: tool %s: exceeded %s wall clock", vmcp.ErrToolTimeout, tool.Name, scriptWallClock)

	case err := <-errCh:
		if runCtx.Err() != nil {
			_ = e.Docker.ContainerKill(context.Background(), containerID, "SIGKILL")
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: tool %s: cancelled", vmcp.ErrToolTimeout, tool.Name)
			}
			return nil, fmt.Errorf("%w: tool %s: exceeded %s wall clock", vmcp.ErrToolTimeout, tool.Name, scriptWallClock)
		}
		return nil, fmt.Errorf("%w: tool %s: wait failed: %v", vmcp.ErrToolCrash, tool.Name, err)

	case status := <-waitCh:
		<-copyDone
		if status.StatusCode != 0 {
			return errorResult(stdout.String()), nil
		}
		return textResult(stdout.String()), nil
	}
}

// buildScriptEnv exposes only the environment variables the tool
// declared it reads, preventing an unrelated secret from leaking into a
// sandbox that never asked for it.
func buildScriptEnv(tool vmcp.CustomTool, env map[string]string) []string {
	out := make([]string, 0, len(tool.ScriptEnv))
	for _, name := range tool.ScriptEnv {
		if v, ok := env[name]; ok {
			out = append(out, name+"="+v)
		}
	}
	return out
}

// scriptPreambleTemplate is prepended to a Script tool's source before it
// runs, so the tool body can reference its declared arguments and selected
// environment variables as ready-made Python values instead of hand-parsing
// stdin (spec §4.5: "the declared arguments as a JSON object injected into
// a well-known variable; the selected environment variables exposed as a
// dictionary"). TOOL_ARGS is read from stdin rather than embedded as a
// literal so argument values containing Python-meaningful characters can't
// break out of the generated source.
const scriptPreambleTemplate = `import json as _vmcp_json, os as _vmcp_os, sys as _vmcp_sys
TOOL_ARGS = _vmcp_json.loads(_vmcp_sys.stdin.read() or "{}")
TOOL_ENV = {_name: _vmcp_os.environ[_name] for _name in %s if _name in _vmcp_os.environ}
`

// scriptSourceWithPreamble renders scriptPreambleTemplate for tool and
// prepends it to tool.ScriptSource.
func scriptSourceWithPreamble(tool vmcp.CustomTool) (string, error) {
	envNamesJSON, err := json.Marshal(tool.ScriptEnv)
	if err != nil {
		return "", err
	}
	preamble := fmt.Sprintf(scriptPreambleTemplate, envNamesJSON)
	return preamble + tool.ScriptSource, nil
}
