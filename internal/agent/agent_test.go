package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/enquiro/internal/model"
	"github.com/kalambet/enquiro/internal/tools"
)

// scriptedInvoker replays canned responses, one per Stream call, split
// into two chunks to exercise delta accumulation.
type scriptedInvoker struct {
	responses []string
	requests  []model.Request
	err       error
}

func (s *scriptedInvoker) Stream(_ context.Context, req model.Request, fn func(model.Chunk) error) error {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return s.err
	}
	if len(s.responses) == 0 {
		return errors.New("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]

	mid := len(resp) / 2
	for _, delta := range []string{resp[:mid], resp[mid:]} {
		if err := fn(model.Chunk{Delta: delta}); err != nil {
			return err
		}
	}
	return fn(model.Chunk{Done: true})
}

func echoTool(name string, calls *[]string) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: "test tool",
		Run: func(_ context.Context, args string) (string, error) {
			*calls = append(*calls, args)
			return "result for " + args, nil
		},
	}
}

func TestExecuteDirectAnswer(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{"The answer is 42."}}
	a := New(inv, tools.NewRegistry(), Params{UserID: "u1"})

	steps, err := a.Execute(context.Background(), "", []model.Message{{Role: "user", Content: "what is the answer"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	if steps[0].Role != "assistant" || steps[0].Content != "The answer is 42." {
		t.Fatalf("step = %+v", steps[0])
	}
}

func TestExecuteToolLoop(t *testing.T) {
	var calls []string
	inv := &scriptedInvoker{responses: []string{
		`{"tool": "lookup", "args": {"query": "x"}}`,
		"Based on the lookup, the answer is ready.",
	}}
	a := New(inv, tools.NewRegistry(echoTool("lookup", &calls)), Params{UserID: "u1"})

	steps, err := a.Execute(context.Background(), "", []model.Message{{Role: "user", Content: "look it up"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(calls) != 1 || !strings.Contains(calls[0], `"query"`) {
		t.Fatalf("tool calls = %v", calls)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3: %+v", len(steps), steps)
	}
	if !strings.HasPrefix(steps[0].Content, ActionPrefix) || steps[0].Tool != "lookup" {
		t.Fatalf("announcement step = %+v", steps[0])
	}
	if steps[1].Role != "tool" || steps[1].Tool != "lookup" {
		t.Fatalf("tool step = %+v", steps[1])
	}
	if steps[2].Content != "Based on the lookup, the answer is ready." {
		t.Fatalf("final step = %+v", steps[2])
	}
	// The follow-up request carries the tool result back to the model.
	if len(inv.requests) != 2 {
		t.Fatalf("got %d requests", len(inv.requests))
	}
	last := inv.requests[1].Messages
	if !strings.Contains(last[len(last)-1].Content, "result for") {
		t.Fatalf("tool result not forwarded: %q", last[len(last)-1].Content)
	}
}

func TestExecuteFencedToolCall(t *testing.T) {
	var calls []string
	inv := &scriptedInvoker{responses: []string{
		"Let me check.\n```json\n{\"tool\": \"lookup\", \"args\": {\"q\": 1}}\n```",
		"Done.",
	}}
	a := New(inv, tools.NewRegistry(echoTool("lookup", &calls)), Params{})

	if _, err := a.Execute(context.Background(), "", nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("tool calls = %v", calls)
	}
}

func TestExecuteUnknownToolRecovers(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"tool": "nope", "args": {}}`,
		"Answering without that tool.",
	}}
	a := New(inv, tools.NewRegistry(), Params{})

	steps, err := a.Execute(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps", len(steps))
	}
	if !strings.Contains(steps[1].Content, `unknown tool "nope"`) {
		t.Fatalf("tool step = %+v", steps[1])
	}
}

func TestExecuteStepBudget(t *testing.T) {
	var calls []string
	loop := `{"tool": "lookup", "args": {}}`
	inv := &scriptedInvoker{responses: []string{loop, loop, loop, loop, "Forced final answer."}}
	a := New(inv, tools.NewRegistry(echoTool("lookup", &calls)), Params{})

	steps, err := a.Execute(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(calls) != maxToolSteps {
		t.Fatalf("tool calls = %d, want %d", len(calls), maxToolSteps)
	}
	final := steps[len(steps)-1]
	if final.Content != "Forced final answer." {
		t.Fatalf("final = %+v", final)
	}
}

func TestExecuteModelError(t *testing.T) {
	inv := &scriptedInvoker{err: errors.New("backend down")}
	a := New(inv, tools.NewRegistry(), Params{})

	if _, err := a.Execute(context.Background(), "", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestSystemPromptPersonalization(t *testing.T) {
	a := New(&scriptedInvoker{}, tools.NewRegistry(tools.Tool{Name: "lookup", Description: "find things"}), Params{
		UserID:          "u1",
		Role:            "data engineer",
		Tone:            "formal",
		Verbosity:       "brief",
		TopTechnologies: []string{"go", "sql"},
		TopDomains:      []string{"finance"},
	})
	sys := a.SystemPrompt()
	for _, want := range []string{
		"lookup: find things",
		"data engineer",
		"formal, professional tone",
		"short and to the point",
		"go, sql",
		"finance",
	} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestSystemPromptNeutralAxesOmitted(t *testing.T) {
	a := New(&scriptedInvoker{}, tools.NewRegistry(), Params{UserID: "u1", Tone: "neutral", Verbosity: "neutral"})
	sys := a.SystemPrompt()
	if strings.Contains(sys, "tone") && strings.Contains(sys, "neutral") {
		// Neutral axes add no guidance lines.
		if strings.Contains(sys, "Use a") {
			t.Fatalf("unexpected guidance in %q", sys)
		}
	}
}

func TestParseToolCall(t *testing.T) {
	cases := []struct {
		name string
		in   string
		tool string
		ok   bool
	}{
		{"bare object", `{"tool": "search", "args": {"q": "x"}}`, "search", true},
		{"no args", `{"tool": "search"}`, "search", true},
		{"fenced", "```json\n{\"tool\": \"search\", \"args\": {}}\n```", "search", true},
		{"prose", "Here is the answer you wanted.", "", false},
		{"json without tool field", `{"answer": 42}`, "", false},
		{"malformed json", `{"tool": "search",`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tool, args, ok := parseToolCall(tc.in)
			if ok != tc.ok || tool != tc.tool {
				t.Fatalf("parseToolCall(%q) = (%q, %q, %v)", tc.in, tool, args, ok)
			}
			if ok && args == "" {
				t.Fatal("empty args for successful parse")
			}
		})
	}
}
