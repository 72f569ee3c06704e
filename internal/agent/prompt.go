package agent

import (
	"fmt"
	"strings"
)

// Params captures the personalization slice baked into an agent's system
// prompt at construction time. Fast-moving state (recent queries, the
// message window) is supplied per turn instead.
type Params struct {
	UserID          string
	Role            string
	Tone            string
	Verbosity       string
	TopTechnologies []string
	TopDomains      []string
}

const basePrompt = `You are a knowledgeable assistant helping a user with questions about their documents, data, and general topics.

You can call tools. To call a tool, reply with ONLY a JSON object:
{"tool": "<name>", "args": {...}}

Available tools:
%s

Rules:
- Call a tool only when it clearly helps answer the question.
- After receiving a tool result, either answer the user or call another tool.
- When you answer the user, reply in plain prose. Never include tool-call JSON in a final answer.
- If a tool produced a file, mention the file in your answer.`

var toneGuidance = map[string]string{
	"formal": "Use a formal, professional tone.",
	"casual": "Use a relaxed, conversational tone.",
}

var verbosityGuidance = map[string]string{
	"brief":    "Keep answers short and to the point.",
	"detailed": "Give thorough answers with explanations and examples.",
}

func buildSystemPrompt(p Params, toolCatalogue string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, basePrompt, toolCatalogue)

	var persona []string
	if p.Role != "" {
		persona = append(persona, fmt.Sprintf("The user is a %s.", p.Role))
	}
	if g, ok := toneGuidance[p.Tone]; ok {
		persona = append(persona, g)
	}
	if g, ok := verbosityGuidance[p.Verbosity]; ok {
		persona = append(persona, g)
	}
	if len(p.TopTechnologies) > 0 {
		persona = append(persona, fmt.Sprintf("The user works with: %s.", strings.Join(p.TopTechnologies, ", ")))
	}
	if len(p.TopDomains) > 0 {
		persona = append(persona, fmt.Sprintf("The user is interested in: %s.", strings.Join(p.TopDomains, ", ")))
	}

	if len(persona) > 0 {
		sb.WriteString("\n\nAbout this user:\n")
		for _, line := range persona {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
