package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for SiriusChat.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Platforms map[string]PlatformConfig `json:"platforms"`
	Models    ModelsConfig              `json:"models"`
	Chat      ChatConfig                `json:"chat"`
	Talk      TalkConfig                `json:"talk"`
	Sticker   StickerConfig             `json:"sticker"`
	Memory    MemoryConfig              `json:"memory"`
	Channels  ChannelsConfig            `json:"channels"`
}

type GeneralConfig struct {
	Workspace   string `json:"workspace"`
	LogLevel    string `json:"logLevel"`
	LogFile     string `json:"logFile,omitempty"`
	MetricsAddr string `json:"metricsAddr,omitempty"` // e.g. 127.0.0.1:9090; empty disables the endpoint
}

// PlatformConfig is one OpenAI-compatible completion endpoint.
type PlatformConfig struct {
	Enabled bool   `json:"enabled"`
	APIBase string `json:"apiBase"`
	APIKey  string `json:"apiKey,omitempty"`
}

type ModelsConfig struct {
	Chat    ModelConfig `json:"chat"`
	Filter  ModelConfig `json:"filter"`
	Sticker ModelConfig `json:"sticker"`
}

// ModelConfig binds one model role to a platform and its sampling
// profile.
type ModelConfig struct {
	Enabled        bool    `json:"enabled"`
	Platform       string  `json:"platform"`
	Name           string  `json:"name"`
	Temperature    float64 `json:"temperature,omitempty"`
	TopP           float64 `json:"topP,omitempty"`
	MaxTokens      int     `json:"maxTokens,omitempty"`
	ResponseFormat string  `json:"responseFormat,omitempty"`
	EnableThinking bool    `json:"enableThinking,omitempty"`
	ThinkingBudget int     `json:"thinkingBudget,omitempty"`
}

type ChatConfig struct {
	PersonaPath          string   `json:"personaPath"`
	Subscribed           []string `json:"subscribed,omitempty"` // group sources to serve; empty serves all
	WillingnessThreshold float64  `json:"willingnessThreshold"`
	Keywords             []string `json:"keywords,omitempty"` // outbound keyword filter
}

type TalkConfig struct {
	QueueSize        int `json:"queueSize"`
	IdleAfterSeconds int `json:"idleAfterSeconds"`
	ReapEverySeconds int `json:"reapEverySeconds"`
	PaceMillis       int `json:"paceMillis"`
}

type StickerConfig struct {
	Enabled  bool    `json:"enabled"`
	DBPath   string  `json:"dbPath"`
	ImageDir string  `json:"imageDir"`
	SendProb float64 `json:"sendProb"`
}

type MemoryConfig struct {
	ShortTermCapacity int `json:"shortTermCapacity"`
	DiaryCapacity     int `json:"diaryCapacity"`
}

type ChannelsConfig struct {
	OneBot   OneBotConfig   `json:"onebot"`
	Telegram TelegramConfig `json:"telegram"`
}

type OneBotConfig struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	AccessToken string `json:"accessToken,omitempty"`
	SelfID      int64  `json:"selfId"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// DefaultConfigDir returns the default config directory (~/.siriuschat).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".siriuschat"
	}
	return filepath.Join(home, ".siriuschat")
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

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Chat.PersonaPath = ExpandPath(cfg.Chat.PersonaPath)
	cfg.Sticker.DBPath = ExpandPath(cfg.Sticker.DBPath)
	cfg.Sticker.ImageDir = ExpandPath(cfg.Sticker.ImageDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is
// unset or empty.
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
			return match
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

	if cfg.Models.Chat.Platform == "" || cfg.Models.Chat.Name == "" {
		errs = append(errs, "models.chat requires platform and name")
	}
	for role, mc := range map[string]ModelConfig{
		"chat": cfg.Models.Chat, "filter": cfg.Models.Filter, "sticker": cfg.Models.Sticker,
	} {
		if !mc.Enabled && role != "chat" {
			continue
		}
		if mc.Platform == "" {
			continue
		}
		pc, ok := cfg.Platforms[mc.Platform]
		if !ok {
			errs = append(errs, fmt.Sprintf("models.%s references unknown platform: %s", role, mc.Platform))
			continue
		}
		if !pc.Enabled {
			errs = append(errs, fmt.Sprintf("models.%s references disabled platform: %s", role, mc.Platform))
		}
	}
	for name, pc := range cfg.Platforms {
		if pc.Enabled && pc.APIBase == "" {
			errs = append(errs, fmt.Sprintf("platforms.%s: apiBase is required", name))
		}
	}

	if cfg.Chat.WillingnessThreshold < 0 || cfg.Chat.WillingnessThreshold > 100 {
		errs = append(errs, "chat.willingnessThreshold must be between 0 and 100")
	}
	for _, s := range cfg.Chat.Subscribed {
		if len(s) < 2 || (s[0] != 'G' && s[0] != 'P') {
			errs = append(errs, fmt.Sprintf("chat.subscribed entry %q must look like G<id> or P<id>", s))
		}
	}

	if cfg.Talk.QueueSize < 1 {
		errs = append(errs, "talk.queueSize must be >= 1")
	}
	if cfg.Talk.IdleAfterSeconds < 1 {
		errs = append(errs, "talk.idleAfterSeconds must be >= 1")
	}
	if cfg.Talk.ReapEverySeconds < 1 {
		errs = append(errs, "talk.reapEverySeconds must be >= 1")
	}

	if cfg.Sticker.SendProb < 0 || cfg.Sticker.SendProb > 1 {
		errs = append(errs, "sticker.sendProb must be between 0 and 1")
	}
	if cfg.Memory.ShortTermCapacity < 1 {
		errs = append(errs, "memory.shortTermCapacity must be >= 1")
	}
	if cfg.Memory.DiaryCapacity < 1 {
		errs = append(errs, "memory.diaryCapacity must be >= 1")
	}

	if cfg.Channels.OneBot.Enabled && cfg.Channels.OneBot.URL == "" {
		errs = append(errs, "channels.onebot.url is required when enabled")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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
