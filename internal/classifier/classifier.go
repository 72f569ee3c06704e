package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/enquiro/internal/model"
)

const classifyTimeout = 10 * time.Second

// Invoker is the slice of the credential pool the classifier needs.
type Invoker interface {
	Invoke(ctx context.Context, req model.Request) (*model.Response, error)
}

// Signal is the normalized classification of one user query: candidate
// topic terms plus tone and verbosity labels, all lower-cased.
type Signal struct {
	Technologies []string `json:"technologies"`
	Domains      []string `json:"domains"`
	Tone         string   `json:"tone"`
	Verbosity    string   `json:"verbosity"`
}

// Neutral returns the fallback signal used when classification fails.
func Neutral() Signal {
	return Signal{Tone: "neutral", Verbosity: "neutral"}
}

// Classifier extracts tone, verbosity, and topic signal from raw queries
// with a single structured-output model call.
type Classifier struct {
	invoker Invoker
}

// New creates a Classifier backed by the given model invoker.
func New(invoker Invoker) *Classifier {
	return &Classifier{invoker: invoker}
}

// Classify analyses the query and returns its Signal. The model output is
// untrusted: it is cleaned, repaired, and normalized, and any failure
// (call error, malformed JSON) degrades to the neutral signal — the turn
// must not fail because classification did.
func (c *Classifier) Classify(ctx context.Context, query string) Signal {
	if strings.TrimSpace(query) == "" {
		return Neutral()
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := c.invoker.Invoke(ctx, model.Request{
		System:   classifySystemPrompt,
		Messages: []model.Message{{Role: "user", Content: buildClassifyPrompt(query)}},
	})
	if err != nil {
		slog.Warn("signal classification failed", "error", err)
		return Neutral()
	}

	raw := cleanJSON(resp.Message.Content)
	var sig Signal
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		slog.Warn("failed to unmarshal classification", "error", err, "response", resp.Message.Content)
		return Neutral()
	}
	return normalize(sig)
}

// normalize lower-cases every label, drops empty terms, and fills missing
// tone/verbosity with the neutral default.
func normalize(sig Signal) Signal {
	out := Signal{
		Tone:      strings.ToLower(strings.TrimSpace(sig.Tone)),
		Verbosity: strings.ToLower(strings.TrimSpace(sig.Verbosity)),
	}
	if out.Tone == "" {
		out.Tone = "neutral"
	}
	if out.Verbosity == "" {
		out.Verbosity = "neutral"
	}
	for _, t := range sig.Technologies {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out.Technologies = append(out.Technologies, t)
		}
	}
	for _, d := range sig.Domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out.Domains = append(out.Domains, d)
		}
	}
	return out
}
