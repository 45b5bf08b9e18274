package agent

import (
	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/project"
	"deskagent/internal/tools"
)

// BuildRegistry assembles the tool registry for one run. Disabled tools
// are left out entirely; connector tools from disabled servers never
// reach the registry because their connectors are not started.
func BuildRegistry(p project.Project, mcpTools []tools.Tool, agentCfg *config.AgentConfig) *tools.Registry {
	registry := tools.NewRegistry()
	baseDir := p.BaseDir()

	// Connector tools go in first so a server squatting on a built-in
	// group name loses to the built-ins under last-write-wins
	for _, tool := range mcpTools {
		registry.Register(tool)
	}

	if agentCfg.UseAiderTools {
		registry.Register(tools.NewGetContextFilesTool(p))
		registry.Register(tools.NewAddContextFileTool(p))
		registry.Register(tools.NewDropContextFileTool(p))
		registry.Register(tools.NewRunPromptTool(p))
	}

	if agentCfg.UsePowerTools {
		registry.Register(tools.NewFileReadTool(baseDir))
		registry.Register(tools.NewFileWriteTool(baseDir))
		registry.Register(tools.NewFileEditTool(baseDir))
		registry.Register(tools.NewGlobTool(baseDir))
		registry.Register(tools.NewGrepTool(baseDir))
		registry.Register(tools.NewSearchTool(baseDir))
		registry.Register(tools.NewBashTool(baseDir))
	}

	// Helpers answer repaired calls; they are registered last so the
	// no_such_tool listing sees the final tool set
	registry.Register(tools.NewNoSuchTool(registry))
	registry.Register(tools.NewInvalidToolArgumentsTool())

	for _, qualified := range registry.Names() {
		if agentCfg.IsToolDisabled(qualified) {
			registry.Remove(qualified)
		}
	}

	return registry
}

// modelDeclarations returns the declarations advertised to the model.
// Helper tools and tools the user has marked never-approved are not
// advertised.
func modelDeclarations(registry *tools.Registry, agentCfg *config.AgentConfig) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, qualified := range registry.VisibleNames() {
		if agentCfg.ApprovalFor(qualified) == config.ApprovalNever {
			continue
		}
		if tool, ok := registry.Get(qualified); ok {
			decls = append(decls, tool.Declaration())
		}
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
