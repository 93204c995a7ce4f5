package config

import "path/filepath"

// Defaults returns a config populated with sane defaults. Load layers
// the file's values on top.
func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			Workspace: dir,
			LogLevel:  "info",
		},
		Platforms: map[string]PlatformConfig{},
		Models: ModelsConfig{
			Chat: ModelConfig{
				Enabled:        true,
				Temperature:    0.7,
				TopP:           1.0,
				MaxTokens:      1024,
				ResponseFormat: "json_object",
			},
			Filter: ModelConfig{
				Temperature:    0,
				MaxTokens:      1024,
				ResponseFormat: "json_object",
			},
			Sticker: ModelConfig{
				Temperature:    0,
				MaxTokens:      1024,
				EnableThinking: true,
				ThinkingBudget: 512,
			},
		},
		Chat: ChatConfig{
			PersonaPath:          filepath.Join(dir, "BotBaseInfo.yaml"),
			WillingnessThreshold: 70,
		},
		Talk: TalkConfig{
			QueueSize:        32,
			IdleAfterSeconds: 300,
			ReapEverySeconds: 10,
			PaceMillis:       150,
		},
		Sticker: StickerConfig{
			DBPath:   filepath.Join(dir, "stickers.db"),
			ImageDir: filepath.Join(dir, "stickers"),
			SendProb: 0.5,
		},
		Memory: MemoryConfig{
			ShortTermCapacity: 16,
			DiaryCapacity:     12,
		},
	}
}
