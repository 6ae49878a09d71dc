package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

// defaultBlockedCommands are substrings that make a command ineligible for
// execution unless overridden via tool configuration.
var defaultBlockedCommands = []string{"rm -rf", "sudo", "format", "mkfs"}

// CommandLineTool runs shell commands and streams their combined output.
// An allow list restricts commands to known prefixes; when it is empty any
// command not matching the block list may run.
type CommandLineTool struct {
	mu      sync.Mutex
	allowed []string
	blocked []string
}

// NewCommandLineTool creates a CommandLineTool with the default block list
// and an empty allow list.
func NewCommandLineTool() *CommandLineTool {
	return &CommandLineTool{blocked: append([]string(nil), defaultBlockedCommands...)}
}

// Name implements Tool.
func (t *CommandLineTool) Name() string { return "CommandLineTool" }

// Description implements Tool.
func (t *CommandLineTool) Description() string {
	return "Execute command line operations and stream their output"
}

// Configure implements Configurable. It is applied on every dispatch so the
// current grant's settings overwrite whatever the previous caller set.
func (t *CommandLineTool) Configure(config map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if allowed, ok := stringSlice(config["allowed_commands"]); ok {
		t.allowed = allowed
	}
	if blocked, ok := stringSlice(config["blocked_commands"]); ok {
		t.blocked = blocked
	}
}

func (t *CommandLineTool) commandAllowed(command string) bool {
	t.mu.Lock()
	allowed := t.allowed
	blocked := t.blocked
	t.mu.Unlock()

	for _, b := range blocked {
		if strings.Contains(command, b) {
			return false
		}
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.HasPrefix(command, a) {
			return true
		}
	}
	return false
}

// Run implements Tool.
func (t *CommandLineTool) Run(ctx context.Context, args map[string]any, _ []core.ContextEntry) <-chan core.ToolEvent {
	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)

		command := stringArg(args, "command", "")
		if command == "" {
			command = stringArg(args, "message", "")
		}
		if command == "" {
			emit(ctx, out, core.NewToolError("no command provided"))
			return
		}
		if !t.commandAllowed(command) {
			emit(ctx, out, core.NewToolError("command execution is not allowed on this system"))
			return
		}

		workDir := stringArg(args, "working_directory", "")
		if workDir == "" {
			workDir, _ = os.Getwd()
		}
		timeout := intArg(args, "timeout", 60)

		runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()

		if !emit(ctx, out, core.NewToolStatus(fmt.Sprintf("Executing command in %s: %s", workDir, command))) {
			return
		}

		cmd := exec.CommandContext(runCtx, "sh", "-c", command)
		cmd.Dir = workDir
		cmd.Env = commandEnv(args)

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to execute command: %v", err)))
			return
		}
		cmd.Stderr = cmd.Stdout

		if err := cmd.Start(); err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to execute command: %v", err)))
			return
		}

		if !emit(ctx, out, core.NewToolStatus(fmt.Sprintf("Process started (PID: %d)", cmd.Process.Pid))) {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if !emit(ctx, out, core.NewToolChunk(scanner.Text()+"\n")) {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}

		err = cmd.Wait()
		if runCtx.Err() == context.DeadlineExceeded {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("command execution timed out after %d seconds", timeout)))
			return
		}
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				emit(ctx, out, core.NewToolResult(map[string]any{
					"status":      "error",
					"return_code": exitErr.ExitCode(),
					"command":     command,
				}))
				return
			}
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to execute command: %v", err)))
			return
		}
		emit(ctx, out, core.NewToolResult(map[string]any{
			"status":      "success",
			"return_code": 0,
			"command":     command,
		}))
	}()
	return out
}

func commandEnv(args map[string]any) []string {
	env := os.Environ()
	extra, ok := args["env_vars"].(map[string]any)
	if !ok {
		return env
	}
	for k, v := range extra {
		if s, ok := v.(string); ok {
			env = append(env, k+"="+s)
		}
	}
	return env
}

func stringSlice(v any) ([]string, bool) {
	switch vals := v.(type) {
	case []string:
		return append([]string(nil), vals...), true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}
