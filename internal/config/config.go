package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Storage   StorageConfig
	Persona   PersonaConfig
	Runtime   RuntimeConfig
	Documents DocumentsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
	Token   string // bearer token for the HTTP API; empty disables auth
}

type ModelConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	APIKeys    []string
}

type StorageConfig struct {
	DataDir string
}

// PersonaConfig holds the tuning knobs for the personalization engine.
// Increments and decay factors drive the exponential-moving-average scoring;
// thresholds control when historical scores win over the classifier label.
type PersonaConfig struct {
	ToneThreshold      float64
	VerbosityThreshold float64
	ToneIncrement      float64
	ToneDecay          float64
	VerbosityIncrement float64
	VerbosityDecay     float64
	InterestIncrement  float64
	InterestDecay      float64
	MaxRecentQueries   int
	MaxInterestItems   int
	DefaultRole        string
}

// RuntimeConfig bounds the in-process runtime registry.
type RuntimeConfig struct {
	MaxInstances  int // LRU capacity for live (user, thread) instances
	WindowSize    int // messages rehydrated from storage per thread
	MaxWindowSize int // in-memory append cap per thread
	TopInterests  int // top-K interest lists computed at instance creation
}

type DocumentsConfig struct {
	OutputDir string
}

type LogConfig struct {
	Level string // "info" or "debug"
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Model: ModelConfig{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			ChatModel:  "gemini-2.5-flash",
			EmbedModel: "gemini-embedding-001",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Persona: PersonaConfig{
			ToneThreshold:      0.3,
			VerbosityThreshold: 0.2,
			ToneIncrement:      0.15,
			ToneDecay:          0.85,
			VerbosityIncrement: 0.15,
			VerbosityDecay:     0.8,
			InterestIncrement:  0.2,
			InterestDecay:      0.95,
			MaxRecentQueries:   5,
			MaxInterestItems:   20,
			DefaultRole:        "general user",
		},
		Runtime: RuntimeConfig{
			MaxInstances:  256,
			WindowSize:    10,
			MaxWindowSize: 200,
			TopInterests:  5,
		},
		Documents: DocumentsConfig{
			OutputDir: filepath.Join(dataDir, "generated"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults and ENQUIRO_* environment variables.
// API keys come from numbered variables (ENQUIRO_API_KEY_1, ENQUIRO_API_KEY_2,
// ...) or a comma-separated ENQUIRO_API_KEYS; at least one is required.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)
	cfg.Model.APIKeys = loadAPIKeys()

	if len(cfg.Model.APIKeys) == 0 {
		return Config{}, fmt.Errorf(
			"missing required config: model API keys. " +
				"Set ENQUIRO_API_KEYS (comma-separated) or numbered ENQUIRO_API_KEY_1..N variables")
	}
	return cfg, nil
}

// LoadClient reads the same defaults and environment overrides as Load but
// does not require model API keys. CLI commands that only talk to a running
// server use this.
func LoadClient() Config {
	cfg := defaults()
	applyEnvOverrides(&cfg)
	cfg.Model.APIKeys = loadAPIKeys()
	return cfg
}

// loadAPIKeys collects credential tokens in pool order. Numbered variables
// take precedence over the comma-separated list; numbering stops at the
// first gap.
func loadAPIKeys() []string {
	var keys []string
	for i := 1; ; i++ {
		v := os.Getenv(fmt.Sprintf("ENQUIRO_API_KEY_%d", i))
		if v == "" {
			break
		}
		keys = append(keys, v)
	}
	if len(keys) > 0 {
		return keys
	}
	for _, v := range strings.Split(os.Getenv("ENQUIRO_API_KEYS"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "enquiro")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".enquiro"
	}
	return filepath.Join(home, ".local", "share", "enquiro")
}
