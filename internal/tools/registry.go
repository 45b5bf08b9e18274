package tools

import (
	"sort"
	"sync"

	"google.golang.org/genai"

	"deskagent/internal/logging"
)

// Registry holds the qualified tool map for one run. Tools are layered
// in registration order and a later registration with the same
// qualified name overwrites the earlier one. Built-in groups use
// disjoint prefixes, so an overwrite normally only happens when a
// remote server shadows another; it is logged, not rejected.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool under its qualified name, replacing any
// previous tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	qualified := Qualify(tool.Group(), tool.Name())
	if _, exists := r.tools[qualified]; exists {
		logging.Warn("tool overwritten in registry", "tool", qualified)
	}
	r.tools[qualified] = tool
}

// Remove deletes a tool by qualified name. Removing an absent name is
// a no-op.
func (r *Registry) Remove(qualified string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, qualified)
}

// Get retrieves a tool by qualified name.
func (r *Registry) Get(qualified string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[qualified]
	return tool, ok
}

// ResolveSuffix finds the qualified name whose local part matches the
// given bare name. Used by the repair policy when the model drops the
// group prefix. Returns false when no local name matches.
func (r *Registry) ResolveSuffix(bareName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for qualified := range r.tools {
		if _, name := SplitQualified(qualified); name == bareName {
			return qualified, true
		}
	}
	return "", false
}

// Names returns all qualified names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VisibleNames returns the qualified names the model may call, sorted.
// Helper tools are reserved for the repair policy and excluded.
func (r *Registry) VisibleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name, tool := range r.tools {
		if tool.Group() == HelpersGroup {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		list = append(list, tool)
	}
	return list
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Declarations returns all tool declarations, sorted by name so the
// model sees a stable ordering across steps.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}

// GenaiTools returns the registry contents as a single tool bundle.
func (r *Registry) GenaiTools() []*genai.Tool {
	decls := r.Declarations()
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{
		{FunctionDeclarations: decls},
	}
}
