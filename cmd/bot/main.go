package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/ai"
	"github.com/xaenox/afisha-bot/internal/bot"
	"github.com/xaenox/afisha-bot/internal/catalog"
	"github.com/xaenox/afisha-bot/internal/enrich"
	"github.com/xaenox/afisha-bot/internal/metrics"
	"github.com/xaenox/afisha-bot/internal/storage"
	"github.com/xaenox/afisha-bot/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the AI client used for classification, extraction and decisions
	gpt := ai.NewGPTClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)

	// Initialize enrichment helpers
	fetchTimeout := time.Duration(cfg.Pipeline.FetchTimeoutSeconds) * time.Second
	fetcher := enrich.NewFetcher(fetchTimeout, logger)
	searcher := enrich.NewSearcher(cfg.Search.BraveAPIKey, logger)

	// Initialize catalog client and image uploader
	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Token, logger)
	uploader := catalog.NewUploader(cfg.Catalog.UploadURL, cfg.Catalog.Token, logger)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Metrics.ListenAddr != "" {
		metrics.Serve(cfg.Metrics.ListenAddr, registry, logger)
	}

	// Initialize bot
	b, err := bot.New(
		bot.Config{
			Token:               cfg.Telegram.Token,
			ReviewChatID:        cfg.Telegram.ReviewChatID,
			NotifyChatID:        cfg.Telegram.NotifyChatID,
			ModeratorIDs:        cfg.Telegram.ModeratorIDs,
			AutoMode:            cfg.Pipeline.Mode == config.ModeAuto,
			ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		},
		store, gpt, fetcher, searcher, catalogClient, uploader, m, logger,
	)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
