package turn

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// FileRef is a generated or retrieved file attached to a reply.
type FileRef struct {
	Path string
	Name string
}

// refKind tags the shapes a file-producing tool payload can take. Tools
// are expected to return {"file_path": ...}, but the model occasionally
// relays the payload as a bare string, a list, or something else entirely,
// so each shape gets its own normalization.
type refKind int

const (
	refString refKind = iota
	refObject
	refList
	refUnrecognized
)

type refPayload struct {
	kind refKind
	str  string
	obj  map[string]any
	list []any
}

// classifyPayload decides which shape a raw tool payload has. Content
// that does not parse as JSON is treated as a bare path string.
func classifyPayload(raw string) refPayload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return refPayload{kind: refUnrecognized}
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return refPayload{kind: refString, str: trimmed}
	}
	switch val := v.(type) {
	case string:
		return refPayload{kind: refString, str: val}
	case map[string]any:
		return refPayload{kind: refObject, obj: val}
	case []any:
		return refPayload{kind: refList, list: val}
	default:
		return refPayload{kind: refUnrecognized}
	}
}

// NormalizeFileRef extracts a file reference from a file tool's payload.
// The boolean reports whether a usable path was found.
func NormalizeFileRef(content string) (FileRef, bool) {
	p := classifyPayload(content)

	var path string
	switch p.kind {
	case refString:
		path = pathFromString(p.str)
	case refObject:
		path = pathFromObject(p.obj)
	case refList:
		path = pathFromList(p.list)
	case refUnrecognized:
		return FileRef{}, false
	}

	path = cleanPath(path)
	if path == "" {
		return FileRef{}, false
	}
	return FileRef{Path: path, Name: filepath.Base(path)}, true
}

func pathFromString(s string) string {
	return s
}

func pathFromObject(obj map[string]any) string {
	if v, ok := obj["file_path"].(string); ok {
		return v
	}
	return ""
}

// pathFromList takes the first element: an object is treated like a
// refObject payload, anything else like a string.
func pathFromList(list []any) string {
	if len(list) == 0 {
		return ""
	}
	switch first := list[0].(type) {
	case map[string]any:
		return pathFromObject(first)
	case string:
		return first
	default:
		return ""
	}
}

func cleanPath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, `"`)
	path = strings.TrimRight(path, "}")
	return strings.TrimSpace(path)
}
