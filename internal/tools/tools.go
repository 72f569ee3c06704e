package tools

import (
	"context"
	"fmt"
	"strings"
)

// Tool is one callable capability exposed to the agent. Args arrive as a
// JSON object string; the result is plain text or a JSON payload the
// orchestrator knows how to post-process.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args string) (string, error)
}

// Registry is an ordered, named set of tools. The runtime passes it
// opaquely into agent construction and never inspects tool internals.
type Registry struct {
	order  []string
	byName map[string]Tool
}

// NewRegistry creates a Registry from the given tools. Later registrations
// with a duplicate name replace earlier ones.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if _, exists := r.byName[t.Name]; !exists {
			r.order = append(r.order, t.Name)
		}
		r.byName[t.Name] = t
	}
	return r
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Describe renders a tool catalogue for inclusion in a system prompt.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.order {
		t := r.byName[name]
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}
