package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"deskagent/internal/config"
	"deskagent/internal/logging"
)

// defaultRPCTimeout bounds a single request round trip. Tool calls can
// legitimately run for minutes, so the bound is generous.
const defaultRPCTimeout = 10 * time.Minute

// Client is a JSON-RPC client for one MCP server connection.
type Client struct {
	transport  Transport
	serverName string
	timeout    time.Duration

	serverInfo  *ServerInfo
	initialized bool
	mu          sync.RWMutex

	nextID    int64
	pending   map[int64]chan *JSONRPCMessage
	pendingMu sync.Mutex

	cancel context.CancelFunc
	ctx    context.Context
	done   chan struct{}
}

// NewClient connects a transport for the named server. Stdio servers
// are spawned from the command, HTTP servers reached at the URL. The
// config must already be interpolated.
func NewClient(serverName string, cfg config.MCPServerConfig) (*Client, error) {
	var transport Transport
	var err error

	switch {
	case cfg.Command != "":
		transport, err = NewStdioTransport(serverName, cfg.Command, cfg.Args, cfg.Env)
	case cfg.URL != "":
		transport, err = NewHTTPTransport(cfg.URL, cfg.Headers, cfg.Timeout)
	default:
		return nil, fmt.Errorf("server %q has neither command nor url", serverName)
	}
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRPCTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:  transport,
		serverName: serverName,
		timeout:    timeout,
		pending:    make(map[int64]chan *JSONRPCMessage),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go c.receiveLoop()

	return c, nil
}

func (c *Client) receiveLoop() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msg, err := c.transport.Receive()
		if err != nil {
			if c.ctx.Err() == nil {
				logging.Warn("mcp receive error", "server", c.serverName, "error", err)
			}
			return
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg *JSONRPCMessage) {
	if msg.IsResponse() {
		// JSON numbers decode as float64
		id, ok := msg.ID.(float64)
		if !ok {
			logging.Warn("mcp response with invalid id type", "server", c.serverName, "id", msg.ID)
			return
		}

		c.pendingMu.Lock()
		ch, exists := c.pending[int64(id)]
		if exists {
			delete(c.pending, int64(id))
		}
		c.pendingMu.Unlock()

		if !exists {
			logging.Warn("mcp response for unknown request", "server", c.serverName, "id", id)
			return
		}
		ch <- msg
		return
	}

	if msg.IsNotification() {
		logging.Debug("mcp notification", "server", c.serverName, "method", msg.Method)
	}
}

func (c *Client) request(ctx context.Context, method string, params any) (*JSONRPCMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)

	respCh := make(chan *JSONRPCMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	msg := &JSONRPCMessage{ID: id, Method: method, Params: params}
	if err := c.transport.Send(msg); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("request timeout after %v", c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) notify(method string, params any) error {
	return c.transport.Send(&JSONRPCMessage{Method: method, Params: params})
}

// decodeResult remarshals a generic result into a typed struct.
func decodeResult(result any, out any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing result: %w", err)
	}
	return nil
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	params := &InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo: &ClientInfo{
			Name:    "deskagent",
			Version: "1.0.0",
		},
		Capabilities: map[string]any{},
	}

	resp, err := c.request(ctx, MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	var result InitializeResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return err
	}
	c.serverInfo = result.ServerInfo

	if err := c.notify(MethodInitialized, nil); err != nil {
		return fmt.Errorf("sending initialized notification: %w", err)
	}

	c.initialized = true

	name, version := c.serverName, ""
	if c.serverInfo != nil {
		name, version = c.serverInfo.Name, c.serverInfo.Version
	}
	logging.Info("mcp server initialized", "server", c.serverName, "name", name, "version", version)

	return nil
}

// ListTools retrieves the tools advertised by the server.
func (c *Client) ListTools(ctx context.Context) ([]*ToolInfo, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client not initialized")
	}

	resp, err := c.request(ctx, MethodToolsList, nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}

	var result ListToolsResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return nil, err
	}

	logging.Debug("mcp tools listed", "server", c.serverName, "count", len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client not initialized")
	}

	resp, err := c.request(ctx, MethodToolsCall, &CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call failed: %w", err)
	}

	var result CallToolResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsInitialized() {
		return fmt.Errorf("client not initialized")
	}
	_, err := c.request(ctx, MethodPing, nil)
	return err
}

// ServerName returns the configured server name.
func (c *Client) ServerName() string {
	return c.serverName
}

// IsInitialized reports whether the handshake has completed.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Close shuts the connection down and waits for the receive loop.
func (c *Client) Close() error {
	c.cancel()

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		logging.Warn("mcp client receive loop did not stop in time", "server", c.serverName)
	}

	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	return nil
}
