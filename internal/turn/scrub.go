package turn

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSONRe   = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{[^{}]*\\})\\s*(?:```)?")
	bareJSONRe     = regexp.MustCompile(`(?i)(?:json\s*)?(\{[^{}]*\})`)
	fileNameLineRe = regexp.MustCompile(`["']file_name["']\s*:\s*["']([^"']+)["']`)
)

// scrubJSONFragments replaces leaked JSON blocks in a reply with the file
// name they mention. Valid blocks collapse to their file_name value;
// malformed blocks fall back to the raw file_name line. Blocks without a
// file name are left untouched. Fenced blocks are handled first so the
// fences disappear along with the payload.
func scrubJSONFragments(reply string) string {
	reply = replaceJSONBlocks(reply, fencedJSONRe)
	reply = replaceJSONBlocks(reply, bareJSONRe)
	return strings.TrimSpace(reply)
}

func replaceJSONBlocks(reply string, re *regexp.Regexp) string {
	matches := re.FindAllStringSubmatchIndex(reply, -1)

	// Replace back to front so earlier offsets stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		jsonText := strings.TrimSpace(reply[m[2]:m[3]])

		if replacement, ok := fileNameReplacement(jsonText); ok {
			reply = reply[:m[0]] + replacement + reply[m[1]:]
		}
	}
	return reply
}

func fileNameReplacement(jsonText string) (string, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(jsonText), &parsed); err == nil {
		if name, ok := parsed["file_name"].(string); ok {
			return name, true
		}
		return "", false
	}
	// Malformed JSON: keep the raw file_name line when present.
	if lm := fileNameLineRe.FindStringSubmatch(jsonText); lm != nil {
		return `  "file_name": "` + lm[1] + `",`, true
	}
	return "", false
}
