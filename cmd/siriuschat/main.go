package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"siriuschat/internal/brain"
	"siriuschat/internal/channel"
	"siriuschat/internal/config"
	"siriuschat/internal/gateway"
	"siriuschat/internal/guard"
	"siriuschat/internal/memory"
	"siriuschat/internal/metrics"
	"siriuschat/internal/model"
	"siriuschat/internal/persona"
	"siriuschat/internal/provider"
	"siriuschat/internal/sticker"
	"siriuschat/internal/talk"
	"siriuschat/internal/tool"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "siriuschat",
		Short: "SiriusChat: persona-driven group chat companion",
		Long:  "SiriusChat is a persona-driven conversational agent for QQ (OneBot) and Telegram group chats.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.siriuschat/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config, workspace, and persona file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
				return err
			}
			if _, err := persona.Load(cfg.Chat.PersonaPath); err != nil {
				return err
			}
			logger.Info("initialized",
				"config", cfgPath,
				"workspace", cfg.General.Workspace,
				"persona", cfg.Chat.PersonaPath,
			)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and platform status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("version", "version", version)
			for name, pc := range cfg.Platforms {
				logger.Info("platform", "name", name, "enabled", pc.Enabled, "apiBase", pc.APIBase)
			}
			logger.Info("models",
				"chat", cfg.Models.Chat.Name,
				"filter_enabled", cfg.Models.Filter.Enabled,
				"sticker_enabled", cfg.Models.Sticker.Enabled,
			)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			for name, pc := range cfg.Platforms {
				if pc.APIKey != "" {
					pc.APIKey = "***"
					cfg.Platforms[name] = pc
				}
			}
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the chat gateway (all enabled channels)",
		Long:  "Connects the enabled channels and serves conversations. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.General.MetricsAddr != "" {
		go serveMetrics(cfg.General.MetricsAddr)
	}

	p, err := persona.Load(cfg.Chat.PersonaPath)
	if err != nil {
		return fmt.Errorf("persona: %w", err)
	}

	platforms, err := buildPlatforms(cfg)
	if err != nil {
		return err
	}

	chatModel, err := buildChatModel(cfg, p, platforms)
	if err != nil {
		return err
	}

	var filterModel *model.FilterModel
	if cfg.Models.Filter.Enabled {
		platform, err := platformFor(platforms, cfg.Models.Filter.Platform)
		if err != nil {
			return fmt.Errorf("filter model: %w", err)
		}
		filterModel = model.NewFilterModel(profileOf(cfg.Models.Filter), platform, persona.FilterPrompt, logger)
	}

	var stickerStore *sticker.Store
	if cfg.Sticker.Enabled && cfg.Models.Sticker.Enabled {
		platform, err := platformFor(platforms, cfg.Models.Sticker.Platform)
		if err != nil {
			return fmt.Errorf("sticker model: %w", err)
		}
		classifier := model.NewStickerModel(profileOf(cfg.Models.Sticker), platform, persona.StickerPrompt, logger)
		stickerStore, err = sticker.NewStore(sticker.Config{
			DBPath:     cfg.Sticker.DBPath,
			ImageDir:   cfg.Sticker.ImageDir,
			Classifier: classifier,
			SendProb:   cfg.Sticker.SendProb,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("sticker store: %w", err)
		}
		defer stickerStore.Close()
	}

	keywordFilter, err := guard.NewFilter(cfg.Chat.Keywords, logger)
	if err != nil {
		return fmt.Errorf("keyword filter: %w", err)
	}

	bank := memory.NewBank(cfg.Memory.ShortTermCapacity, cfg.Memory.DiaryCapacity)
	will := brain.NewWillingness(cfg.Chat.WillingnessThreshold)

	sender, adapterRun, err := buildChannel(cfg)
	if err != nil {
		return err
	}

	dispatcher := talk.NewDispatcher(talk.Config{
		Chat:      chatModel,
		Filter:    filterModel,
		Guard:     keywordFilter,
		Sender:    sender,
		Stickers:  stickerStore,
		Bank:      bank,
		Logger:    logger,
		QueueSize: cfg.Talk.QueueSize,
		IdleAfter: time.Duration(cfg.Talk.IdleAfterSeconds) * time.Second,
		ReapEvery: time.Duration(cfg.Talk.ReapEverySeconds) * time.Second,
		Pace:      time.Duration(cfg.Talk.PaceMillis) * time.Millisecond,
	})
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	svc := gateway.NewService(gateway.Config{
		Persona:    p,
		Chat:       chatModel,
		Bank:       bank,
		Stickers:   stickerStore,
		Will:       will,
		Dispatcher: dispatcher,
		Subscribed: cfg.Chat.Subscribed,
		Logger:     logger,
	})

	logger.Info("gateway started. Press Ctrl+C to stop.")
	err = adapterRun(ctx, svc)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutting down gateway")
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", "err", err)
	}
}

func buildPlatforms(cfg *config.Config) (map[string]provider.Platform, error) {
	platforms := make(map[string]provider.Platform)
	for name, pc := range cfg.Platforms {
		if !pc.Enabled {
			continue
		}
		platforms[name] = provider.NewOpenAICompatible(provider.Config{
			Name:    name,
			APIBase: pc.APIBase,
			APIKey:  pc.APIKey,
			Logger:  logger,
		})
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("no enabled platforms in config")
	}
	return platforms, nil
}

func platformFor(platforms map[string]provider.Platform, name string) (provider.Platform, error) {
	p, ok := platforms[name]
	if !ok {
		return nil, fmt.Errorf("platform %q not configured or disabled", name)
	}
	return p, nil
}

func buildChatModel(cfg *config.Config, p *persona.Persona, platforms map[string]provider.Platform) (*model.ChatModel, error) {
	platform, err := platformFor(platforms, cfg.Models.Chat.Platform)
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}
	chatModel := model.NewChatModel(profileOf(cfg.Models.Chat), platform, persona.ChatPrompt(p.Info()), logger)

	registry, err := builtinTools()
	if err != nil {
		return nil, err
	}
	if err := chatModel.RegisterTools(registry.All(), persona.ToolPrompt); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return chatModel, nil
}

func profileOf(mc config.ModelConfig) model.Profile {
	return model.Profile{
		Name:           mc.Name,
		Temperature:    mc.Temperature,
		TopP:           mc.TopP,
		MaxTokens:      mc.MaxTokens,
		ResponseFormat: mc.ResponseFormat,
		EnableThinking: mc.EnableThinking,
		ThinkingBudget: mc.ThinkingBudget,
	}
}

// buildChannel picks the enabled adapter and returns its sender plus a
// run function that blocks on the adapter's event loop.
func buildChannel(cfg *config.Config) (channel.Sender, func(context.Context, channel.Handler) error, error) {
	switch {
	case cfg.Channels.OneBot.Enabled:
		ob := channel.NewOneBot(channel.OneBotConfig{
			URL:         cfg.Channels.OneBot.URL,
			AccessToken: cfg.Channels.OneBot.AccessToken,
			SelfID:      cfg.Channels.OneBot.SelfID,
			Logger:      logger,
		})
		return ob, ob.Start, nil
	case cfg.Channels.Telegram.Enabled:
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:  cfg.Channels.Telegram.Token,
			Logger: logger,
		})
		return tg, tg.Start, nil
	}
	return nil, nil, fmt.Errorf("no enabled channel in config")
}

type timeArgs struct{}

type diceArgs struct {
	Sides int `json:"sides" description:"骰子的面数，例如6表示六面骰"`
}

func builtinTools() (*tool.Registry, error) {
	registry := tool.NewRegistry(logger)

	now, err := tool.New(
		"get_current_time",
		"获取当前的日期和时间",
		timeArgs{},
		func(args map[string]any) (string, error) {
			return time.Now().Format("2006-01-02 15:04:05 Monday"), nil
		},
	)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(now); err != nil {
		return nil, err
	}

	dice, err := tool.New(
		"roll_dice",
		"掷一个骰子并返回结果",
		diceArgs{},
		func(args map[string]any) (string, error) {
			sides, ok := args["sides"].(float64)
			if !ok || sides < 1 {
				return "", fmt.Errorf("sides must be a positive integer")
			}
			return fmt.Sprintf("%d", 1+rand.IntN(int(sides))), nil
		},
	)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(dice); err != nil {
		return nil, err
	}

	return registry, nil
}
