package agent

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/logging"
	"deskagent/internal/project"
	"deskagent/internal/tools"
)

const defaultRolePrompt = `You are a highly skilled software engineer assisting a developer inside their project. You investigate the project with the available tools, explain what you find, and make the requested changes. Prefer small, verifiable steps and report what you did.`

// Acknowledgement pairs injected around context file listings. The
// model-role replies prime the model to treat the files correctly.
const (
	readOnlyFilesPrefix = "Here are READ ONLY files included in the aider context, provided for your reference. Do not try to edit these files!\n\n"
	readOnlyFilesAck    = "Ok, I will use these files as references and will not try to edit them."
	editableFilesPrefix = "These are files included in the aider context that can be edited, if needed.\n\n"
	editableFilesAck    = "OK, I understand that I can update those files, but only when needed."

	repoMapPrefix = "Here is the repository map for reference:\n\n"
	repoMapAck    = "Ok, I will use the repository map as a reference."
)

// PromptAssembler builds the system prompt and the message list for a
// run from the project state and settings.
type PromptAssembler struct {
	project project.Project
}

// NewPromptAssembler creates an assembler bound to a project.
func NewPromptAssembler(p project.Project) *PromptAssembler {
	return &PromptAssembler{project: p}
}

// SystemPrompt renders the role prompt plus system information and any
// custom user instructions.
func (a *PromptAssembler) SystemPrompt(agentCfg *config.AgentConfig) string {
	role := agentCfg.SystemPrompt
	if role == "" {
		role = defaultRolePrompt
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteString(fmt.Sprintf("\n\n# System Information\n\nCurrent Date: %s\nOperating System: %s\nCurrent Working Directory: %s",
		time.Now().Format(time.RFC3339), runtime.GOOS, a.project.BaseDir()))

	if agentCfg.CustomInstructions != "" {
		b.WriteString(fmt.Sprintf("\n\n## Custom User Instructions\n\n%s", agentCfg.CustomInstructions))
	}

	return b.String()
}

// Messages builds the full conversation for a run: the repo map, the
// accumulated history, the context file listings, and finally the user
// prompt.
func (a *PromptAssembler) Messages(agentCfg *config.AgentConfig, prompt string) []*genai.Content {
	var messages []*genai.Content

	if agentCfg.IncludeRepoMap {
		if repoMap := a.project.RepoMap(); repoMap != "" {
			messages = append(messages,
				userText(repoMapPrefix+repoMap),
				modelText(repoMapAck))
		}
	}

	messages = append(messages, a.project.ContextMessages()...)

	if agentCfg.IncludeContextFiles {
		messages = append(messages, a.contextFileMessages()...)
	}

	messages = append(messages, userText(prompt))
	return messages
}

// contextFileMessages renders the context files into at most two
// message pairs, read-only files first. Binary files are skipped.
func (a *PromptAssembler) contextFileMessages() []*genai.Content {
	var readOnly, editable []string
	for _, file := range a.project.ContextFiles() {
		if tools.IsBinaryPath(file.Path) {
			continue
		}
		rendered, ok := a.renderFile(file.Path)
		if !ok {
			continue
		}
		if file.ReadOnly {
			readOnly = append(readOnly, rendered)
		} else {
			editable = append(editable, rendered)
		}
	}

	var messages []*genai.Content
	if len(readOnly) > 0 {
		messages = append(messages,
			userText(readOnlyFilesPrefix+strings.Join(readOnly, "")),
			modelText(readOnlyFilesAck))
	}
	if len(editable) > 0 {
		messages = append(messages,
			userText(editableFilesPrefix+strings.Join(editable, "")),
			modelText(editableFilesAck))
	}
	return messages
}

func (a *PromptAssembler) renderFile(path string) (string, bool) {
	baseDir := a.project.BaseDir()
	absPath := path
	if !strings.HasPrefix(path, string(os.PathSeparator)) {
		absPath = baseDir + string(os.PathSeparator) + path
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		logging.Debug("context file unreadable, skipping", "file", path, "error", err)
		return "", false
	}

	// Files inside the project are labeled by their project-relative path
	return fmt.Sprintf("File: %s\n```\n%s\n```\n\n", tools.RelPath(baseDir, absPath), string(data)), true
}

func userText(text string) *genai.Content {
	return genai.NewContentFromText(text, genai.RoleUser)
}

func modelText(text string) *genai.Content {
	return genai.NewContentFromText(text, genai.RoleModel)
}
