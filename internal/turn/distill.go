package turn

import (
	"strings"

	"github.com/kalambet/enquiro/internal/agent"
)

// fileProducingTools names the tools whose results carry a file reference
// instead of conversational text.
var fileProducingTools = map[string]struct{}{
	"generate_document": {},
}

// distill reduces an execution trace to the user-facing reply and an
// optional file reference. Placeholder and empty steps are dropped; the
// last substantive assistant step wins.
func distill(steps []agent.Step) (string, FileRef, bool) {
	var (
		reply  string
		ref    FileRef
		hasRef bool
	)
	for _, step := range steps {
		content := strings.TrimSpace(step.Content)
		if content == "" || strings.Contains(content, agent.ActionPrefix) {
			continue
		}
		if step.Role == "tool" {
			if _, ok := fileProducingTools[step.Tool]; ok {
				if r, found := NormalizeFileRef(content); found {
					ref, hasRef = r, true
				}
			}
			continue
		}
		if step.Role == "assistant" {
			reply = content
		}
	}
	return scrubJSONFragments(reply), ref, hasRef
}
