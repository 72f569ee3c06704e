package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
	show  func(cfg *Config) string
}

var specs = []keySpec{
	{
		env: "ENQUIRO_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Server.Port) },
	},
	{
		env: "ENQUIRO_SERVER_MCP_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Server.MCPPort) },
	},
	{
		env: "ENQUIRO_SERVER_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		show: func(cfg *Config) string {
			if cfg.Server.Token == "" {
				return "(unset)"
			}
			return "(redacted)"
		},
	},
	{
		env: "ENQUIRO_MODEL_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Model.BaseURL = v.(string) },
		show:  func(cfg *Config) string { return cfg.Model.BaseURL },
	},
	{
		env: "ENQUIRO_MODEL_CHAT", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Model.ChatModel = v.(string) },
		show:  func(cfg *Config) string { return cfg.Model.ChatModel },
	},
	{
		env: "ENQUIRO_MODEL_EMBED", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Model.EmbedModel = v.(string) },
		show:  func(cfg *Config) string { return cfg.Model.EmbedModel },
	},
	{
		env: "ENQUIRO_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		show:  func(cfg *Config) string { return cfg.Storage.DataDir },
	},
	{
		env: "ENQUIRO_OUTPUT_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Documents.OutputDir = v.(string) },
		show:  func(cfg *Config) string { return cfg.Documents.OutputDir },
	},
	{
		env: "ENQUIRO_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		show:  func(cfg *Config) string { return cfg.Log.Level },
	},
	{
		env: "ENQUIRO_DEFAULT_ROLE", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Persona.DefaultRole = v.(string) },
		show:  func(cfg *Config) string { return cfg.Persona.DefaultRole },
	},
	{
		env: "ENQUIRO_TONE_THRESHOLD", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.ToneThreshold = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.ToneThreshold) },
	},
	{
		env: "ENQUIRO_VERBOSITY_THRESHOLD", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.VerbosityThreshold = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.VerbosityThreshold) },
	},
	{
		env: "ENQUIRO_TONE_INCREMENT", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.ToneIncrement = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.ToneIncrement) },
	},
	{
		env: "ENQUIRO_TONE_DECAY", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.ToneDecay = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.ToneDecay) },
	},
	{
		env: "ENQUIRO_VERBOSITY_INCREMENT", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.VerbosityIncrement = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.VerbosityIncrement) },
	},
	{
		env: "ENQUIRO_VERBOSITY_DECAY", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.VerbosityDecay = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.VerbosityDecay) },
	},
	{
		env: "ENQUIRO_INTEREST_INCREMENT", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.InterestIncrement = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.InterestIncrement) },
	},
	{
		env: "ENQUIRO_INTEREST_DECAY", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Persona.InterestDecay = v.(float64) },
		show:  func(cfg *Config) string { return formatFloat(cfg.Persona.InterestDecay) },
	},
	{
		env: "ENQUIRO_MAX_RECENT_QUERIES", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Persona.MaxRecentQueries = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Persona.MaxRecentQueries) },
	},
	{
		env: "ENQUIRO_MAX_INTEREST_ITEMS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Persona.MaxInterestItems = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Persona.MaxInterestItems) },
	},
	{
		env: "ENQUIRO_MAX_INSTANCES", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Runtime.MaxInstances = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Runtime.MaxInstances) },
	},
	{
		env: "ENQUIRO_WINDOW_SIZE", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Runtime.WindowSize = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Runtime.WindowSize) },
	},
	{
		env: "ENQUIRO_MAX_WINDOW_SIZE", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Runtime.MaxWindowSize = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Runtime.MaxWindowSize) },
	},
	{
		env: "ENQUIRO_TOP_INTERESTS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Runtime.TopInterests = v.(int) },
		show:  func(cfg *Config) string { return strconv.Itoa(cfg.Runtime.TopInterests) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			}
		}
	}
}

// KV is one resolved configuration entry, keyed by its environment
// variable name.
type KV struct {
	Key   string
	Value string
}

// ShowAll renders the resolved configuration. Secrets are redacted; model
// API keys are reported only as a count.
func ShowAll(cfg Config) []KV {
	out := make([]KV, 0, len(specs)+1)
	for _, s := range specs {
		out = append(out, KV{Key: s.env, Value: s.show(&cfg)})
	}
	out = append(out, KV{
		Key:   "ENQUIRO_API_KEYS",
		Value: fmt.Sprintf("(%d keys)", len(cfg.Model.APIKeys)),
	})
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
