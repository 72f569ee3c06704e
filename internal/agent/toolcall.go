package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type toolCall struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// parseToolCall detects a tool directive in model output. The directive is
// a JSON object with a "tool" field and optional "args", either as the
// whole response or inside a fenced code block. Anything else is treated
// as a final answer.
func parseToolCall(text string) (name, args string, ok bool) {
	candidates := []string{strings.TrimSpace(text)}
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}

	for _, cand := range candidates {
		if !strings.HasPrefix(cand, "{") {
			continue
		}
		var call toolCall
		if err := json.Unmarshal([]byte(cand), &call); err != nil {
			continue
		}
		if call.Tool == "" {
			continue
		}
		args := string(call.Args)
		if args == "" || args == "null" {
			args = "{}"
		}
		return call.Tool, args, true
	}
	return "", "", false
}
