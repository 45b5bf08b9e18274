package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"google.golang.org/genai"
)

// SafeEnvVars is the whitelist of environment variables passed to
// shell commands. Keeps API keys and other secrets out of subprocesses.
var SafeEnvVars = []string{
	"PATH",
	"HOME",
	"USER",
	"SHELL",
	"TERM",
	"LANG",
	"LC_ALL",
	"LC_CTYPE",
	"TMPDIR",
	"TMP",
	"TEMP",
	"EDITOR",
	"VISUAL",
	"PAGER",
	"XDG_CONFIG_HOME",
	"XDG_DATA_HOME",
	"XDG_CACHE_HOME",
	"XDG_RUNTIME_DIR",
	// Go-specific
	"GOPATH",
	"GOROOT",
	"GOPROXY",
	"GOPRIVATE",
	"GOFLAGS",
	// Node/npm
	"NODE_PATH",
	"NPM_CONFIG_PREFIX",
	// Python
	"PYTHONPATH",
	"VIRTUAL_ENV",
	// Git
	"GIT_AUTHOR_NAME",
	"GIT_AUTHOR_EMAIL",
	"GIT_COMMITTER_NAME",
	"GIT_COMMITTER_EMAIL",
}

// DefaultBashTimeout bounds command execution when the model does not
// supply a timeout.
const DefaultBashTimeout = 60 * time.Second

// maxBashOutput caps captured output returned to the model.
const maxBashOutput = 30000

// buildSafeEnv creates a sanitized environment for command execution.
// Only whitelisted environment variables are passed through.
func buildSafeEnv() []string {
	env := make([]string, 0, len(SafeEnvVars))
	for _, key := range SafeEnvVars {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	hasPath := false
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			hasPath = true
			break
		}
	}
	if !hasPath {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	return env
}

// BashTool executes a shell command and captures stdout, stderr and
// the exit code. A non-zero exit is reported in the result, never as
// an execution error.
type BashTool struct {
	baseDir string
}

// NewBashTool creates a new BashTool instance.
func NewBashTool(baseDir string) *BashTool {
	return &BashTool{baseDir: baseDir}
}

func (t *BashTool) Name() string {
	return "bash"
}

func (t *BashTool) Group() string {
	return PowerGroup
}

func (t *BashTool) Description() string {
	return "Executes a shell command. For safety, commands require user approval. Returns stdout, stderr and the exit code."
}

func (t *BashTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"command": {
					Type:        genai.TypeString,
					Description: "The shell command to execute (e.g., ls -la, npm install).",
				},
				"cwd": {
					Type:        genai.TypeString,
					Description: "The working directory for the command (relative to project root). Default: project root.",
				},
				"timeout_ms": {
					Type:        genai.TypeInteger,
					Description: "Timeout for the command execution in milliseconds. Default: 60000 ms.",
				},
			},
			Required: []string{"command"},
		},
	}
}

func (t *BashTool) Validate(args map[string]any) error {
	command, ok := GetString(args, "command")
	if !ok || command == "" {
		return NewValidationError("command", "is required")
	}
	if timeout, ok := GetInt(args, "timeout_ms"); ok && timeout < 0 {
		return NewValidationError("timeout_ms", "must not be negative")
	}
	return nil
}

// ApprovalPrompt makes shell execution require interactive approval.
func (t *BashTool) ApprovalPrompt(args map[string]any) (string, string) {
	command, _ := GetString(args, "command")
	cwd := GetStringDefault(args, "cwd", ".")
	timeout := GetIntDefault(args, "timeout_ms", int(DefaultBashTimeout/time.Millisecond))

	subject := fmt.Sprintf("Command: %s\nWorking Directory: %s\nTimeout: %dms", command, cwd, timeout)
	return "Approve executing bash command?", subject
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	command, _ := GetString(args, "command")
	cwd := GetStringDefault(args, "cwd", "")

	timeout := DefaultBashTimeout
	if ms, ok := GetInt(args, "timeout_ms"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	workDir := t.baseDir
	if cwd != "" {
		workDir = resolvePath(t.baseDir, cwd)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	cmd.Dir = workDir
	cmd.Env = buildSafeEnv()

	// Process group so a timeout kills spawned children too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return NewErrorResult(fmt.Sprintf("failed to start command: %s", err)), nil
	}

	cmdDone := make(chan error, 1)
	go func() {
		cmdDone <- cmd.Wait()
	}()

	var cmdErr error
	timedOut := false
	select {
	case cmdErr = <-cmdDone:
	case <-execCtx.Done():
		timedOut = true
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		cmdErr = <-cmdDone
	}

	if timedOut {
		return NewErrorResult(fmt.Sprintf("command timed out after %v", timeout)), nil
	}

	exitCode := 0
	if cmdErr != nil {
		if exitErr, ok := cmdErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return NewErrorResult(fmt.Sprintf("command failed: %s", cmdErr)), nil
		}
	}

	return buildBashResult(stdout.String(), stderr.String(), exitCode), nil
}

// buildBashResult renders captured output. A non-zero exit code stays
// a successful tool result so the model can react to it.
func buildBashResult(stdoutStr, stderrStr string, exitCode int) ToolResult {
	var output strings.Builder

	if len(stdoutStr) > 0 {
		output.WriteString(stdoutStr)
	}
	if len(stderrStr) > 0 {
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString("STDERR:\n")
		output.WriteString(stderrStr)
	}
	if exitCode != 0 {
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("Exit code: %d", exitCode))
	}

	content := output.String()
	if len(content) > maxBashOutput {
		total := len(content)
		content = content[:maxBashOutput] + fmt.Sprintf("\n... (output truncated: showing %d of %d characters)", maxBashOutput, total)
	}
	if content == "" {
		content = "(no output)"
	}

	return NewSuccessResultWithData(content, map[string]any{
		"stdout":    stdoutStr,
		"stderr":    stderrStr,
		"exit_code": exitCode,
	})
}
