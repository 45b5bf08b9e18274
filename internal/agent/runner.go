// Package agent drives the model run loop: prompting, streaming,
// tool dispatch with approval gating, and accounting.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"deskagent/internal/approval"
	"deskagent/internal/config"
	"deskagent/internal/llm"
	"deskagent/internal/logging"
	"deskagent/internal/mcp"
	"deskagent/internal/project"
	"deskagent/internal/ratelimit"
	"deskagent/internal/tools"
)

// ErrRunInProgress is returned when a run is requested while another
// run is active on the same project.
var ErrRunInProgress = errors.New("agent run already in progress")

const credentialRemediation = "The model provider rejected the request because of missing or invalid credentials. Configure the API key for the active provider in the settings and try again."

// Runner executes agent runs against one project. At most one run is
// active at a time.
type Runner struct {
	project project.Project
	mcp     *mcp.Manager

	// newModel builds the provider model for a run; replaceable in tests
	newModel func(ctx context.Context, p config.ProviderConfig, opts llm.Options) (llm.Model, error)

	running  atomic.Bool
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// reloadConnectors forces the next run to tear down and rebuild all
	// MCP connections instead of keeping unchanged ones
	reloadConnectors atomic.Bool
}

// NewRunner creates a runner for the project. The MCP manager may be
// shared across runs; connectors are reconciled at run start.
func NewRunner(p project.Project, mcpManager *mcp.Manager) *Runner {
	return &Runner{project: p, mcp: mcpManager, newModel: llm.NewModel}
}

// Interrupt cancels the active run, if any. The run still emits its
// final finished message before returning.
func (r *Runner) Interrupt() {
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// IsRunning reports whether a run is active.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// SettingsChanged notifies the runner that the host's settings were
// replaced. Runs always snapshot settings at start, so the only cached
// state to invalidate is the connector pool: a change to the server
// set or the active provider (whose family drives schema conversion)
// forces a full reconnect on the next run.
func (r *Runner) SettingsChanged(previous, current *config.Settings) {
	if previous == nil || current == nil {
		return
	}
	if !reflect.DeepEqual(previous.MCPServers, current.MCPServers) ||
		previous.Agent.ActiveProvider != current.Agent.ActiveProvider {
		r.reloadConnectors.Store(true)
	}
}

// Run executes one prompt to completion: it reconciles MCP connectors,
// builds the tool registry, then loops over model steps dispatching
// tool calls until the model answers without calls, the iteration cap
// is reached, or the context is cancelled. Exactly one finished
// response message is emitted at the end, cancelled or not.
func (r *Runner) Run(ctx context.Context, prompt string) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer r.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancelMu.Lock()
	r.cancel = cancel
	r.cancelMu.Unlock()
	defer func() {
		r.cancelMu.Lock()
		r.cancel = nil
		r.cancelMu.Unlock()
	}()

	// The closing finished message is the host's signal that the run is
	// over, so it is sent on every exit path
	defer func() {
		r.project.ProcessResponseMessage(project.ResponseMessage{
			ID:       uuid.NewString(),
			Finished: true,
		})
	}()

	settings := r.project.Settings()
	providerCfg, err := settings.ActiveProvider()
	if err != nil {
		r.project.AddLogMessage("error", err.Error())
		return err
	}
	family := llm.FamilyOf(providerCfg.Kind)

	r.reconcileConnectors(runCtx, settings, family)

	registry := BuildRegistry(r.project, r.mcp.Tools(), &settings.Agent)

	model, err := r.newModel(runCtx, providerCfg, llm.Options{MaxTokens: int32(settings.Agent.MaxTokens)})
	if err != nil {
		r.project.AddLogMessage("error", err.Error())
		return err
	}
	defer model.Close()

	assembler := NewPromptAssembler(r.project)
	model.SetSystemInstruction(assembler.SystemPrompt(&settings.Agent))
	model.SetTools(modelDeclarations(registry, &settings.Agent))

	gate := approval.NewGate(r.project)
	throttle := ratelimit.NewThrottle(settings.Agent.MinTimeBetweenToolCalls)

	messages := assembler.Messages(&settings.Agent, prompt)

	for iteration := 0; iteration < settings.Agent.MaxIterations; iteration++ {
		resp, messageID, err := r.streamStep(runCtx, model, messages)
		if err != nil {
			if runCtx.Err() != nil {
				logging.Info("agent run cancelled")
				return nil
			}
			return r.reportModelError(err)
		}

		r.finishStep(model, resp, messageID)
		messages = append(messages, resp.Content())

		if len(resp.FunctionCalls) == 0 {
			return nil
		}

		// The run continues into tool dispatch; let the host show a
		// progress state after the streamed text settles
		if resp.Text != "" {
			r.project.AddLogMessage("loading", "")
		}

		for _, call := range resp.FunctionCalls {
			reply, err := r.dispatch(runCtx, registry, gate, throttle, model, messages, call)
			if err != nil {
				if runCtx.Err() != nil {
					logging.Info("agent run cancelled during tool dispatch")
					return nil
				}
				return err
			}
			messages = append(messages, reply)
		}
	}

	logging.Warn("agent run hit iteration cap", "max_iterations", settings.Agent.MaxIterations)
	return nil
}

// reconcileConnectors starts or refreshes MCP connections. Failures
// are reported but do not block the run; built-in tools still work.
func (r *Runner) reconcileConnectors(ctx context.Context, settings *config.Settings, family llm.Family) {
	enabled := make(map[string]config.MCPServerConfig)
	for name, cfg := range settings.MCPServers {
		if settings.Agent.IsServerDisabled(name) {
			continue
		}
		enabled[name] = cfg
	}

	if err := r.mcp.InitConnectors(ctx, enabled, family, r.reloadConnectors.Swap(false)); err != nil {
		logging.Warn("mcp connector init failed", "error", err)
		r.project.AddLogMessage("warning", fmt.Sprintf("Some MCP servers failed to connect: %s", err))
	}
}

// streamStep runs one model turn, forwarding text chunks to the host
// as they arrive.
func (r *Runner) streamStep(ctx context.Context, model llm.Model, messages []*genai.Content) (*llm.Response, string, error) {
	stream, err := model.StreamChat(ctx, messages)
	if err != nil {
		return nil, "", err
	}

	messageID := uuid.NewString()
	resp := &llm.Response{}
	var accumulated string

	for chunk := range stream.Chunks {
		if chunk.Error != nil {
			return nil, "", chunk.Error
		}
		if chunk.Text != "" {
			accumulated += chunk.Text
			messageID = r.project.ProcessResponseMessage(project.ResponseMessage{
				ID:      messageID,
				Content: accumulated,
			})
		}
		resp.Text += chunk.Text
		resp.Reasoning += chunk.Reasoning
		resp.FunctionCalls = append(resp.FunctionCalls, chunk.FunctionCalls...)
		if chunk.Done {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.InputTokens > 0 {
			resp.InputTokens = chunk.InputTokens
		}
		if chunk.OutputTokens > 0 {
			resp.OutputTokens += chunk.OutputTokens
		}
	}

	return resp, messageID, nil
}

// finishStep replaces the streamed message with the authoritative
// formatted response and books the step cost.
func (r *Runner) finishStep(model llm.Model, resp *llm.Response, messageID string) {
	cost := llm.PricingFor(model.ModelID()).Cost(resp.InputTokens, resp.OutputTokens)
	r.project.AddCost(cost)

	usage := &project.UsageReport{
		SentTokens:     int32(resp.InputTokens),
		ReceivedTokens: int32(resp.OutputTokens),
		MessageCost:    cost,
		TotalCost:      r.project.TotalCost(),
	}

	r.project.ProcessResponseMessage(project.ResponseMessage{
		ID:       messageID,
		Content:  formatResponse(resp),
		Finished: true,
		Usage:    usage,
	})
}

// formatResponse renders reasoning and answer into the final message
// content.
func formatResponse(resp *llm.Response) string {
	if resp.Reasoning == "" {
		return resp.Text
	}
	return fmt.Sprintf("---\n► **THINKING**\n%s\n---\n► **ANSWER**\n%s", resp.Reasoning, resp.Text)
}

// reportModelError surfaces a model failure to the host. Credential
// failures get a remediation message instead of the raw provider error.
func (r *Runner) reportModelError(err error) error {
	if llm.IsCredentialError(err) {
		r.project.ProcessResponseMessage(project.ResponseMessage{
			ID:       uuid.NewString(),
			Content:  credentialRemediation,
			Finished: true,
		})
		r.project.AddLogMessage("error", err.Error())
		return err
	}

	r.project.AddLogMessage("error", fmt.Sprintf("Model request failed: %s", err))
	return err
}

// dispatch executes one tool call end to end: repair, lifecycle
// notifications, approval, throttling, validation, execution. Failures
// become result strings so the model can react; only context
// cancellation aborts the run.
func (r *Runner) dispatch(ctx context.Context, registry *tools.Registry, gate *approval.Gate, throttle *ratelimit.Throttle, model llm.Model, messages []*genai.Content, call *genai.FunctionCall) (*genai.Content, error) {
	qualified := call.Name
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	tool, ok := registry.Get(qualified)
	if !ok {
		// The model may have dropped the group prefix
		if resolved, found := registry.ResolveSuffix(qualified); found {
			qualified = resolved
			tool, _ = registry.Get(resolved)
		} else {
			return r.repairUnknownTool(ctx, registry, call.Name)
		}
	}

	group, name := tools.SplitQualified(qualified)
	toolMsgID := uuid.NewString()
	r.project.AddToolMessage(project.ToolMessage{
		ID:         toolMsgID,
		ServerName: group,
		ToolName:   name,
		Args:       args,
	})

	result := r.executeGated(ctx, gate, throttle, registry, tool, qualified, args, model, messages)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r.project.AddToolMessage(project.ToolMessage{
		ID:         toolMsgID,
		ServerName: group,
		ToolName:   name,
		Args:       args,
		Result:     resultText(result),
	})

	return functionResponse(qualified, result), nil
}

// executeGated runs the approval, throttle, validate, execute sequence
// for an already resolved tool.
func (r *Runner) executeGated(ctx context.Context, gate *approval.Gate, throttle *ratelimit.Throttle, registry *tools.Registry, tool tools.Tool, qualified string, args map[string]any, model llm.Model, messages []*genai.Content) tools.ToolResult {
	decision, err := gate.Check(ctx, tool, qualified, args)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("error asking for tool approval: %s", err))
	}
	if !decision.Approved {
		return tools.NewSuccessResult(denialMessage(qualified, decision.UserInput))
	}

	if err := throttle.Wait(ctx); err != nil {
		return tools.NewErrorResult("tool execution cancelled")
	}

	if err := tool.Validate(args); err != nil {
		return r.repairInvalidArgs(ctx, registry, qualified, args, err)
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		if repaired, ok := r.repairFailedCall(ctx, model, messages, tool, qualified, args, err); ok {
			return repaired
		}
		return tools.NewErrorResult(fmt.Sprintf("error executing tool: %s", err))
	}
	return result
}

// repairFailedCall replays the conversation plus the failed call and
// its error, asking the model to reissue the call. A retry naming the
// same tool is executed once; anything else leaves the failure in
// place. Never returns an error, only ok=false for "no repair".
func (r *Runner) repairFailedCall(ctx context.Context, model llm.Model, messages []*genai.Content, tool tools.Tool, qualified string, args map[string]any, execErr error) (tools.ToolResult, bool) {
	if model == nil || ctx.Err() != nil {
		return tools.ToolResult{}, false
	}

	replay := make([]*genai.Content, 0, len(messages)+3)
	replay = append(replay, messages...)
	replay = append(replay, &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: qualified, Args: args}}},
	})
	replay = append(replay, functionResponse(qualified, tools.NewErrorResult(execErr.Error())))
	replay = append(replay, userText(fmt.Sprintf(
		"The call to '%s' failed with: %s. Reissue the call with corrected arguments.", qualified, execErr)))

	resp, err := llm.Complete(ctx, model, replay)
	if err != nil || len(resp.FunctionCalls) == 0 {
		return tools.ToolResult{}, false
	}

	retry := resp.FunctionCalls[0]
	if retry.Name != qualified && retry.Name != tool.Name() {
		return tools.ToolResult{}, false
	}
	retryArgs := retry.Args
	if retryArgs == nil {
		retryArgs = map[string]any{}
	}

	if err := tool.Validate(retryArgs); err != nil {
		return tools.ToolResult{}, false
	}
	result, err := tool.Execute(ctx, retryArgs)
	if err != nil {
		return tools.ToolResult{}, false
	}

	logging.Info("repaired failed tool call", "tool", qualified)
	return result, true
}

// repairUnknownTool answers a call to a nonexistent tool with the
// corrective helper response.
func (r *Runner) repairUnknownTool(ctx context.Context, registry *tools.Registry, requested string) (*genai.Content, error) {
	helperName := tools.Qualify(tools.HelpersGroup, "no_such_tool")
	helper, ok := registry.Get(helperName)
	if !ok {
		return functionResponse(requested, tools.NewErrorResult(fmt.Sprintf("unknown tool: %s", requested))), nil
	}

	result, err := helper.Execute(ctx, map[string]any{"tool_name": requested})
	if err != nil {
		return nil, err
	}
	logging.Info("repaired unknown tool call", "requested", requested)
	return functionResponse(requested, result), nil
}

// repairInvalidArgs builds the corrective helper result for a call that
// failed validation.
func (r *Runner) repairInvalidArgs(ctx context.Context, registry *tools.Registry, qualified string, args map[string]any, verr error) tools.ToolResult {
	helperName := tools.Qualify(tools.HelpersGroup, "invalid_tool_arguments")
	helper, ok := registry.Get(helperName)
	if !ok {
		return tools.NewErrorResult(fmt.Sprintf("invalid arguments: %s", verr))
	}

	serialized, _ := json.Marshal(args)
	result, err := helper.Execute(ctx, map[string]any{
		"tool_name": qualified,
		"tool_args": string(serialized),
		"error":     verr.Error(),
	})
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("invalid arguments: %s", verr))
	}
	logging.Info("repaired invalid tool arguments", "tool", qualified, "error", verr)
	return result
}

func denialMessage(qualified string, userInput string) string {
	msg := "Tool execution denied by user."
	if qualified == tools.Qualify(tools.AiderGroup, "run_prompt") {
		msg = "Aider prompt execution denied by user."
	}
	if userInput != "" {
		msg += " User input: " + userInput
	}
	return msg
}

func resultText(result tools.ToolResult) string {
	if result.Success {
		return result.Content
	}
	return result.Error
}

func functionResponse(name string, result tools.ToolResult) *genai.Content {
	return &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{{
			FunctionResponse: &genai.FunctionResponse{
				Name:     name,
				Response: result.ToMap(),
			},
		}},
	}
}
