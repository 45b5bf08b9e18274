package mcp

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"deskagent/internal/config"
	"deskagent/internal/llm"
	"deskagent/internal/logging"
	"deskagent/internal/tools"
)

// connectTimeout bounds one server handshake plus tool listing.
const connectTimeout = 15 * time.Second

// projectDirVar is the placeholder interpolated in server configs.
const projectDirVar = "${projectDir}"

// connector is one live server connection and its wrapped tools.
type connector struct {
	config config.MCPServerConfig
	client *Client
	tools  []tools.Tool
}

// Manager owns the MCP server connections for one project. Connections
// are reconciled against the settings on every run start: unchanged
// servers keep their connection, changed or removed servers are torn
// down, new servers are connected.
type Manager struct {
	projectDir string

	connectors map[string]*connector
	generation int64
	mu         sync.Mutex
}

// NewManager creates a manager for the given project directory.
func NewManager(projectDir string) *Manager {
	return &Manager{
		projectDir: projectDir,
		connectors: make(map[string]*connector),
	}
}

// InterpolateServerConfig returns a copy of the config with
// ${projectDir} replaced in all string fields.
func InterpolateServerConfig(cfg config.MCPServerConfig, projectDir string) config.MCPServerConfig {
	interp := func(s string) string {
		return strings.ReplaceAll(s, projectDirVar, projectDir)
	}

	out := config.MCPServerConfig{
		Command: interp(cfg.Command),
		URL:     interp(cfg.URL),
		Timeout: cfg.Timeout,
	}
	if cfg.Args != nil {
		out.Args = make([]string, len(cfg.Args))
		for i, a := range cfg.Args {
			out.Args[i] = interp(a)
		}
	}
	if cfg.Env != nil {
		out.Env = make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			out.Env[k] = interp(v)
		}
	}
	if cfg.Headers != nil {
		out.Headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			out.Headers[k] = interp(v)
		}
	}
	return out
}

type connectResult struct {
	name string
	conn *connector
	err  error
}

// InitConnectors reconciles connections with the given server configs.
// A server whose interpolated config is unchanged keeps its connection
// unless forceReload is set. Declarations are normalized for the given
// provider family. A newer InitConnectors call supersedes an older one
// still connecting.
func (m *Manager) InitConnectors(ctx context.Context, configs map[string]config.MCPServerConfig, family llm.Family, forceReload bool) error {
	m.mu.Lock()
	m.generation++
	gen := m.generation

	interpolated := make(map[string]config.MCPServerConfig, len(configs))
	for name, cfg := range configs {
		interpolated[name] = InterpolateServerConfig(cfg, m.projectDir)
	}

	// Tear down removed and changed servers, keep unchanged ones
	var toConnect []string
	var toClose []*connector
	for name, conn := range m.connectors {
		cfg, stillWanted := interpolated[name]
		if stillWanted && !forceReload && reflect.DeepEqual(conn.config, cfg) {
			continue
		}
		toClose = append(toClose, conn)
		delete(m.connectors, name)
	}
	for name := range interpolated {
		if _, connected := m.connectors[name]; !connected {
			toConnect = append(toConnect, name)
		}
	}
	m.mu.Unlock()

	for _, conn := range toClose {
		if err := conn.client.Close(); err != nil {
			logging.Warn("mcp connector close error", "server", conn.client.ServerName(), "error", err)
		}
	}

	if len(toConnect) == 0 {
		return nil
	}

	results := make(chan connectResult, len(toConnect))
	var wg sync.WaitGroup
	for _, name := range toConnect {
		wg.Add(1)
		go func(name string, cfg config.MCPServerConfig) {
			defer wg.Done()

			serverCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()

			conn, err := connect(serverCtx, name, cfg, family)
			results <- connectResult{name: name, conn: conn, err: err}
		}(name, interpolated[name])
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	for res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.name, res.err))
			continue
		}

		m.mu.Lock()
		if m.generation != gen {
			// A newer reconcile superseded this one
			m.mu.Unlock()
			res.conn.client.Close()
			continue
		}
		m.connectors[res.name] = res.conn
		m.mu.Unlock()

		logging.Info("mcp server connected", "server", res.name, "tools", len(res.conn.tools))
	}

	return errors.Join(errs...)
}

func connect(ctx context.Context, name string, cfg config.MCPServerConfig, family llm.Family) (*connector, error) {
	client, err := NewClient(name, cfg)
	if err != nil {
		return nil, err
	}

	if err := client.Initialize(ctx); err != nil {
		client.Close()
		return nil, err
	}

	infos, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	conn := &connector{config: cfg, client: client}
	for _, info := range infos {
		conn.tools = append(conn.tools, NewMCPTool(client, name, info, family))
	}
	return conn, nil
}

// Tools returns all tools from all connected servers.
func (m *Manager) Tools() []tools.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []tools.Tool
	for _, conn := range m.connectors {
		all = append(all, conn.tools...)
	}
	return all
}

// ConnectedServers returns the names of the connected servers.
func (m *Manager) ConnectedServers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.connectors))
	for name := range m.connectors {
		names = append(names, name)
	}
	return names
}

// Shutdown closes all connections.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.generation++
	conns := make([]*connector, 0, len(m.connectors))
	for _, conn := range m.connectors {
		conns = append(conns, conn)
	}
	m.connectors = make(map[string]*connector)
	m.mu.Unlock()

	var lastErr error
	for _, conn := range conns {
		if err := conn.client.Close(); err != nil {
			logging.Warn("mcp client close error", "server", conn.client.ServerName(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}
