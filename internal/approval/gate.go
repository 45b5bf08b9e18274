// Package approval decides whether a tool call may execute, asking the
// user when the stored policy does not settle it.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deskagent/internal/config"
	"deskagent/internal/project"
	"deskagent/internal/tools"
)

// Decision is the outcome of an approval check.
type Decision struct {
	Approved  bool
	UserInput string
}

// Gate resolves tool approvals for one run. Interactive answers with
// the "always for this run" shortkey are remembered only for the gate's
// lifetime; the gate is discarded when the run ends.
type Gate struct {
	project project.Project

	mu          sync.Mutex
	alwaysInRun map[string]struct{}
}

// NewGate creates a gate bound to the project's question channel.
func NewGate(p project.Project) *Gate {
	return &Gate{
		project:     p,
		alwaysInRun: make(map[string]struct{}),
	}
}

// Check decides whether the tool call may run. Tools that implement
// tools.ApprovalPrompter always prompt interactively regardless of the
// stored policy, unless already approved for this run. For other tools
// the stored policy applies: always approves silently, never denies
// silently, ask prompts.
func (g *Gate) Check(ctx context.Context, tool tools.Tool, qualified string, args map[string]any) (Decision, error) {
	key := "tool_" + qualified

	g.mu.Lock()
	_, approvedForRun := g.alwaysInRun[key]
	g.mu.Unlock()
	if approvedForRun {
		return Decision{Approved: true}, nil
	}

	question := project.Question{
		Text:          fmt.Sprintf("Approve running tool '%s'?", qualified),
		Subject:       formatArgs(args),
		DefaultAnswer: "y",
		Key:           key,
	}

	if prompter, mandatory := tool.(tools.ApprovalPrompter); mandatory {
		question.Text, question.Subject = prompter.ApprovalPrompt(args)
	} else {
		switch g.policyFor(qualified) {
		case config.ApprovalAlways:
			return Decision{Approved: true}, nil
		case config.ApprovalNever:
			return Decision{Approved: false}, nil
		}
	}

	answer, err := g.project.AskQuestion(ctx, question)
	if err != nil {
		return Decision{}, fmt.Errorf("asking for approval: %w", err)
	}

	switch answer.Answer {
	case "y":
		return Decision{Approved: true, UserInput: answer.Input}, nil
	case "a", "r":
		// "a" would also persist the policy; persistence lives in the
		// settings layer, so both answers behave like "r" here
		g.mu.Lock()
		g.alwaysInRun[key] = struct{}{}
		g.mu.Unlock()
		return Decision{Approved: true, UserInput: answer.Input}, nil
	default:
		return Decision{Approved: false, UserInput: answer.Input}, nil
	}
}

// policyFor resolves the stored policy, falling back from the qualified
// name to the group key. Tools with no stored policy run without
// prompting; the mandatory prompt marker covers the destructive ones.
func (g *Gate) policyFor(qualified string) config.Approval {
	agent := &g.project.Settings().Agent
	if v, ok := agent.ToolApprovals[qualified]; ok {
		return v
	}
	group, _ := tools.SplitQualified(qualified)
	if group != "" {
		if v, ok := agent.ToolApprovals[group]; ok {
			return v
		}
	}
	return config.ApprovalAlways
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}
