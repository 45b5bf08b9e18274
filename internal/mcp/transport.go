package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"deskagent/internal/logging"
)

// Transport moves JSON-RPC messages to and from a server.
type Transport interface {
	// Send sends a JSON-RPC message to the server.
	Send(msg *JSONRPCMessage) error

	// Receive blocks until the next message arrives. Returns io.EOF
	// when the transport is closed.
	Receive() (*JSONRPCMessage, error)

	// Close closes the transport connection.
	Close() error
}

// safeEnvVars is the whitelist of environment variables passed to
// spawned server processes. Everything else, API keys in particular,
// stays out of the child environment.
var safeEnvVars = []string{
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
	"XDG_CONFIG_HOME",
	"XDG_DATA_HOME",
	"XDG_CACHE_HOME",
	"XDG_RUNTIME_DIR",
	"NODE_PATH",
	"NPM_CONFIG_PREFIX",
	"PYTHONPATH",
	"VIRTUAL_ENV",
}

func buildSafeEnv() []string {
	env := make([]string, 0, len(safeEnvVars))
	hasPath := false
	for _, key := range safeEnvVars {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
			if key == "PATH" {
				hasPath = true
			}
		}
	}
	if !hasPath {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	return env
}

// StdioTransport talks to a server subprocess over newline-delimited
// JSON on stdin/stdout.
type StdioTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	encoder *json.Encoder
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool

	stderrDone chan struct{}
}

// NewStdioTransport starts the server command with a sanitized
// environment plus the configured extra variables.
func NewStdioTransport(serverName, command string, args []string, env map[string]string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)

	cmd.Env = buildSafeEnv()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("starting MCP server: %w", err)
	}

	t := &StdioTransport{
		cmd:        cmd,
		stdin:      stdin,
		encoder:    json.NewEncoder(stdin),
		scanner:    bufio.NewScanner(stdout),
		stderrDone: make(chan struct{}),
	}

	const maxScannerBuffer = 1024 * 1024
	t.scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	go func() {
		defer close(t.stderrDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			logging.Debug("mcp server stderr", "server", serverName, "line", sc.Text())
		}
	}()

	logging.Debug("mcp stdio transport started",
		"server", serverName,
		"command", command,
		"pid", cmd.Process.Pid)

	return t, nil
}

func (t *StdioTransport) Send(msg *JSONRPCMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	msg.JSONRPC = "2.0"
	if err := t.encoder.Encode(msg); err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return nil
}

func (t *StdioTransport) Receive() (*JSONRPCMessage, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, io.EOF
	}
	t.mu.Unlock()

	for {
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading from server: %w", err)
			}
			return nil, io.EOF
		}

		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}

		var msg JSONRPCMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("parsing JSON-RPC message: %w", err)
		}
		return &msg, nil
	}
}

func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	// Closing stdin signals the server to exit
	t.stdin.Close()

	select {
	case <-t.stderrDone:
	case <-time.After(time.Second):
	}

	done := make(chan error, 1)
	go func() {
		done <- t.cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logging.Warn("mcp server did not exit, killing process")
		if t.cmd.Process != nil {
			t.cmd.Process.Kill()
		}
		<-done
	}

	return nil
}

// HTTPTransport talks to a server over HTTP POST. Responses to sent
// requests are queued for Receive.
type HTTPTransport struct {
	url     string
	headers map[string]string
	timeout time.Duration
	client  *http.Client

	recvChan chan *JSONRPCMessage

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHTTPTransport creates a transport posting to the given URL.
func NewHTTPTransport(url string, headers map[string]string, timeout time.Duration) (*HTTPTransport, error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		url:      url,
		headers:  headers,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		recvChan: make(chan *JSONRPCMessage, 10),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (t *HTTPTransport) Send(msg *JSONRPCMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	msg.JSONRPC = "2.0"
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if len(body) == 0 {
		return nil
	}

	var response JSONRPCMessage
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	select {
	case t.recvChan <- &response:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *HTTPTransport) Receive() (*JSONRPCMessage, error) {
	select {
	case msg := <-t.recvChan:
		return msg, nil
	case <-t.ctx.Done():
		return nil, io.EOF
	}
}

func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.cancel()
	return nil
}
