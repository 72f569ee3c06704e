package classifier

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reFenceOpen  = regexp.MustCompile("^```[a-zA-Z0-9]*\\s*")
	reFenceClose = regexp.MustCompile("```$")
	reObject     = regexp.MustCompile(`(?s)\{.*\}`)
	reTrailing   = regexp.MustCompile(`,(\s*[}\]])`)
	reBackslash  = regexp.MustCompile(`(\w)\\(\w)`)
)

// cleanJSON strips markdown fences and surrounding prose from a model
// response and, when the remainder still fails to parse, applies a
// lightweight repair pass (quote fixing, trailing commas, stray escapes).
// The returned string is best-effort; callers must still handle unmarshal
// failure.
func cleanJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = reFenceOpen.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(reFenceClose.ReplaceAllString(cleaned, ""))

	if m := reObject.FindString(cleaned); m != "" {
		cleaned = strings.TrimSpace(m)
	}

	if json.Valid([]byte(cleaned)) {
		return cleaned
	}

	fixed := strings.ReplaceAll(cleaned, "'", `"`)
	fixed = reTrailing.ReplaceAllString(fixed, "$1")
	fixed = strings.ReplaceAll(fixed, "\\n", "")
	fixed = reBackslash.ReplaceAllString(fixed, "$1$2")

	if json.Valid([]byte(fixed)) {
		return fixed
	}
	return cleaned
}
