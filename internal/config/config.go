package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for phasebot.
type Config struct {
	General     GeneralConfig             `json:"general"`
	Actor       ActorConfig               `json:"actor"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Models      ModelsConfig              `json:"models"`
	Store       StoreConfig               `json:"store"`
	Lexicon     LexiconConfig             `json:"lexicon"`
	Attachments AttachmentsConfig         `json:"attachments"`
	Notes       NotesConfig               `json:"notes"`
	History     HistoryConfig             `json:"history"`
	Metrics     MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel          string `json:"logLevel"`
	DataDir           string `json:"dataDir"`
	MaxConcurrentRuns int    `json:"maxConcurrentRuns"`
}

// ActorConfig is the bot identity on its platform.
type ActorConfig struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"` // "slack" | "discord" | "console"
	DisplayName string `json:"displayName,omitempty"`
}

type ProviderConfig struct {
	Enabled        bool   `json:"enabled"`
	APIBase        string `json:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	DefaultModel   string `json:"defaultModel,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// ModelsConfig selects which providers and models serve each pipeline call.
type ModelsConfig struct {
	Provider         string   `json:"provider"`
	TextModel        string   `json:"textModel,omitempty"`
	FailoverChain    []string `json:"failoverChain,omitempty"` // tried after provider, in order
	VisionProvider   string   `json:"visionProvider,omitempty"`
	VisionModel      string   `json:"visionModel,omitempty"`
	MaxTokens        int      `json:"maxTokens,omitempty"`
	NotesTemperature float64  `json:"notesTemperature"`
	RatePerMinute    float64  `json:"ratePerMinute"`
	Burst            int      `json:"burst"`
}

type StoreConfig struct {
	DBPath          string `json:"dbPath"`
	CacheTTLSeconds int    `json:"cacheTTLSeconds"`
}

type LexiconConfig struct {
	BundlePath      string `json:"bundlePath"`
	Watch           bool   `json:"watch"`
	IncludeInPrompt bool   `json:"includeInPrompt"`
}

type AttachmentsConfig struct {
	AuthToken      string    `json:"authToken,omitempty"`
	MaxBytes       int64     `json:"maxBytes"`
	TimeoutSeconds int       `json:"timeoutSeconds"`
	OCR            OCRConfig `json:"ocr"`
}

type OCRConfig struct {
	Enabled bool     `json:"enabled"`
	Command []string `json:"command"` // image is written to stdin, text read from stdout
}

// NotesConfig controls background profile-note extraction.
type NotesConfig struct {
	Enabled     bool `json:"enabled"`
	Workers     int  `json:"workers"`
	QueueSize   int  `json:"queueSize"`
	MaxAttempts int  `json:"maxAttempts"`
}

type HistoryConfig struct {
	MaxReplyDepth int `json:"maxReplyDepth"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.phasebot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phasebot"
	}
	return filepath.Join(home, ".phasebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Lexicon.BundlePath = ExpandPath(cfg.Lexicon.BundlePath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if _, err := ParseLogLevel(cfg.General.LogLevel); err != nil {
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentRuns < 1 || cfg.General.MaxConcurrentRuns > 100 {
		errs = append(errs, "general.maxConcurrentRuns must be between 1 and 100")
	}

	if strings.TrimSpace(cfg.Actor.ID) == "" {
		errs = append(errs, "actor.id is required")
	}
	switch cfg.Actor.Platform {
	case "slack", "discord", "console":
		// valid
	default:
		errs = append(errs, "actor.platform must be one of: slack, discord, console")
	}

	if _, ok := cfg.Providers[cfg.Models.Provider]; !ok {
		errs = append(errs, fmt.Sprintf("models.provider references unknown provider: %s", cfg.Models.Provider))
	}
	if cfg.Models.VisionProvider != "" {
		if _, ok := cfg.Providers[cfg.Models.VisionProvider]; !ok {
			errs = append(errs, fmt.Sprintf("models.visionProvider references unknown provider: %s", cfg.Models.VisionProvider))
		}
	}
	for _, provName := range cfg.Models.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("models.failoverChain references unknown provider: %s", provName))
		}
	}
	if cfg.Models.RatePerMinute < 0 {
		errs = append(errs, "models.ratePerMinute must be >= 0")
	}

	for name, pc := range cfg.Providers {
		// ollama has a default local endpoint
		if pc.Enabled && pc.APIBase == "" && name != "ollama" {
			errs = append(errs, fmt.Sprintf("providers.%s: apiBase is required", name))
		}
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}
	if cfg.Store.CacheTTLSeconds < 0 {
		errs = append(errs, "store.cacheTTLSeconds must be >= 0")
	}

	if cfg.Attachments.MaxBytes < 1 {
		errs = append(errs, "attachments.maxBytes must be >= 1")
	}
	if cfg.Attachments.TimeoutSeconds < 1 {
		errs = append(errs, "attachments.timeoutSeconds must be >= 1")
	}
	if cfg.Attachments.OCR.Enabled && len(cfg.Attachments.OCR.Command) == 0 {
		errs = append(errs, "attachments.ocr.command is required when OCR is enabled")
	}

	if cfg.Notes.Enabled {
		if cfg.Notes.Workers < 1 {
			errs = append(errs, "notes.workers must be >= 1")
		}
		if cfg.Notes.QueueSize < 1 {
			errs = append(errs, "notes.queueSize must be >= 1")
		}
		if cfg.Notes.MaxAttempts < 1 || cfg.Notes.MaxAttempts > 10 {
			errs = append(errs, "notes.maxAttempts must be between 1 and 10")
		}
	}

	if cfg.History.MaxReplyDepth < 1 {
		errs = append(errs, "history.maxReplyDepth must be >= 1")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLogLevel maps a config log level to slog. Empty means info.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
