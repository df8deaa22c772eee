// Package config is the typed destination struct every component is
// constructed from. Loading itself reads only the environment —
// file-based config loading, profile resolution, and CLI
// user-management are out of scope for this rewrite.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store configures the tabular store's SQLite files.
type Store struct {
	WriterPath string
	ReaderPath string
	// BusyPolicy selects the store's busy-retry backoff preset: one of
	// "default", "aggressive", or "conservative".
	BusyPolicy string
}

// Orchestrator configures the turn orchestrator's bounds.
type Orchestrator struct {
	MaxRounds        int
	ToolTimeout      time.Duration
	ThreadTitleChars int
}

// Providers holds per-provider API keys and base URL overrides.
type Providers struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GeminiAPIKey     string
}

// Auth configures the auth role's reference JWT implementation.
type Auth struct {
	JWTSecret     string
	TokenExpiry   time.Duration
	AllowedModels map[string][]string
}

// Log controls the process-wide structured logger.
type Log struct {
	Level  string
	Format string
}

// ToolRedaction bounds what a tool's result may carry once it leaves
// the tool registry, before the orchestrator persists or streams it.
type ToolRedaction struct {
	MaxChars int
	Denylist []string
}

// Config is the process-level configuration object every component
// constructor takes a reference to.
type Config struct {
	ListenAddr        string
	Store             Store
	Orchestrator      Orchestrator
	Providers         Providers
	Auth              Auth
	Log               Log
	SystemPromptsFile string
	ToolRedaction     ToolRedaction
}

// Load reads configuration from the environment, applying the same
// defaults a bare-bones deployment would need to boot without any
// environment variables set at all.
func Load() Config {
	return Config{
		ListenAddr: getenv("CHATCORE_LISTEN_ADDR", ":8080"),
		Store: Store{
			WriterPath: getenv("CHATCORE_DB_WRITER_PATH", "chatcore.db"),
			ReaderPath: os.Getenv("CHATCORE_DB_READER_PATH"),
			BusyPolicy: getenv("CHATCORE_STORE_BUSY_POLICY", "default"),
		},
		Orchestrator: Orchestrator{
			MaxRounds:        getenvInt("CHATCORE_MAX_ROUNDS", 8),
			ToolTimeout:      getenvDuration("CHATCORE_TOOL_TIMEOUT", 30*time.Second),
			ThreadTitleChars: getenvInt("CHATCORE_THREAD_TITLE_CHARS", 60),
		},
		Providers: Providers{
			AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
			GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		},
		Auth: Auth{
			JWTSecret:     os.Getenv("CHATCORE_JWT_SECRET"),
			TokenExpiry:   getenvDuration("CHATCORE_JWT_TTL", 24*time.Hour),
			AllowedModels: getenvAllowedModels("CHATCORE_ALLOWED_MODELS"),
		},
		Log: Log{
			Level:  getenv("CHATCORE_LOG_LEVEL", "info"),
			Format: getenv("CHATCORE_LOG_FORMAT", "text"),
		},
		SystemPromptsFile: os.Getenv("CHATCORE_SYSTEM_PROMPTS_FILE"),
		ToolRedaction: ToolRedaction{
			MaxChars: getenvInt("CHATCORE_TOOL_RESULT_MAX_CHARS", 0),
			Denylist: getenvList("CHATCORE_TOOL_RESULT_DENYLIST"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getenvAllowedModels parses "user1:modelA|modelB,user2:modelC" into a
// per-user allow-list. A user present with no models after the colon
// is denied every model.
func getenvAllowedModels(key string) map[string][]string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	out := map[string][]string{}
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		userID, models, found := strings.Cut(entry, ":")
		userID = strings.TrimSpace(userID)
		if !found || userID == "" {
			continue
		}
		var allowed []string
		for _, m := range strings.Split(models, "|") {
			if m = strings.TrimSpace(m); m != "" {
				allowed = append(allowed, m)
			}
		}
		out[userID] = allowed
	}
	return out
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
