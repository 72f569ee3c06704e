// Package agent runs the per-instance conversational loop: it drives the
// generative model, dispatches tool calls, and collects the intermediate
// steps the orchestrator distills into a final reply.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/enquiro/internal/model"
	"github.com/kalambet/enquiro/internal/tools"
)

// Invoker streams a model completion. Satisfied by model.Pool.
type Invoker interface {
	Stream(ctx context.Context, req model.Request, fn func(model.Chunk) error) error
}

// Step is one entry of an execution trace. Assistant steps carry model
// output; tool steps carry the raw tool result. Tool-call announcements
// are assistant steps prefixed with "Prepared Action:" so downstream
// filtering can drop them from the user-facing reply.
type Step struct {
	Role    string
	Tool    string
	Content string
}

const (
	// ActionPrefix marks placeholder assistant steps that announce an
	// imminent tool invocation.
	ActionPrefix = "Prepared Action:"

	maxToolSteps = 4
)

// Agent is a live conversational handle for one user. It is immutable
// after construction; per-turn state (history, recent queries) is owned
// by the runtime registry.
type Agent struct {
	invoker Invoker
	tools   *tools.Registry
	system  string
}

// New builds an agent with a system prompt derived from the user's
// personalization profile and the available tool catalogue.
func New(inv Invoker, reg *tools.Registry, p Params) *Agent {
	return &Agent{
		invoker: inv,
		tools:   reg,
		system:  buildSystemPrompt(p, reg.Describe()),
	}
}

// SystemPrompt exposes the assembled prompt, mostly for tests.
func (a *Agent) SystemPrompt() string { return a.system }

// Execute runs one turn: it completes against the model, dispatches any
// requested tool calls, and loops until the model produces a final answer
// or the step budget runs out. extraContext is appended to the system
// prompt for this turn only.
func (a *Agent) Execute(ctx context.Context, extraContext string, window []model.Message) ([]Step, error) {
	system := a.system
	if extraContext != "" {
		system += "\n\n" + extraContext
	}

	msgs := make([]model.Message, len(window))
	copy(msgs, window)

	var steps []Step
	for i := 0; i < maxToolSteps; i++ {
		text, err := a.complete(ctx, system, msgs)
		if err != nil {
			return steps, fmt.Errorf("agent: model call: %w", err)
		}

		name, args, ok := parseToolCall(text)
		if !ok {
			steps = append(steps, Step{Role: "assistant", Content: text})
			return steps, nil
		}

		steps = append(steps, Step{
			Role:    "assistant",
			Tool:    name,
			Content: fmt.Sprintf("%s %s", ActionPrefix, name),
		})
		result := a.dispatch(ctx, name, args)
		steps = append(steps, Step{Role: "tool", Tool: name, Content: result})

		msgs = append(msgs,
			model.Message{Role: "assistant", Content: text},
			model.Message{Role: "user", Content: toolResultMessage(name, result)},
		)
	}

	// Step budget exhausted; force a final answer.
	text, err := a.complete(ctx, system+"\n\nAnswer now using what you already know. Do not call tools.", msgs)
	if err != nil {
		return steps, fmt.Errorf("agent: final call: %w", err)
	}
	steps = append(steps, Step{Role: "assistant", Content: text})
	return steps, nil
}

func (a *Agent) dispatch(ctx context.Context, name, args string) string {
	tool, ok := a.tools.Get(name)
	if !ok {
		slog.Warn("agent requested unknown tool", "tool", name)
		return fmt.Sprintf("unknown tool %q; available tools: %s", name, strings.Join(a.tools.Names(), ", "))
	}
	result, err := tool.Run(ctx, args)
	if err != nil {
		slog.Warn("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
	return result
}

func (a *Agent) complete(ctx context.Context, system string, msgs []model.Message) (string, error) {
	req := model.Request{System: system, Messages: msgs}
	var sb strings.Builder
	err := a.invoker.Stream(ctx, req, func(c model.Chunk) error {
		sb.WriteString(c.Delta)
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

func toolResultMessage(name, result string) string {
	return fmt.Sprintf("Tool %s returned:\n%s\n\nUse this result. Reply with the final answer, or another tool call if more information is needed.", name, result)
}
