package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// BotMode selects how agent verdicts are acted on.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Search    SearchConfig    `mapstructure:"search"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type TelegramConfig struct {
	Token          string  `mapstructure:"token"`
	ReviewChatID   int64   `mapstructure:"review_chat_id"`
	NotifyChatID   int64   `mapstructure:"notify_chat_id"`
	ModeratorIDs   []int64 `mapstructure:"moderator_ids"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type PipelineConfig struct {
	Mode                string  `mapstructure:"mode"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	FetchTimeoutSeconds int     `mapstructure:"fetch_timeout_seconds"`
}

type CatalogConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	UploadURL string `mapstructure:"upload_url"`
}

type SearchConfig struct {
	BraveAPIKey string `mapstructure:"brave_api_key"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 800)
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("pipeline.mode", ModeManual)
	v.SetDefault("pipeline.confidence_threshold", 0.8)
	v.SetDefault("pipeline.fetch_timeout_seconds", 20)
	v.SetDefault("metrics.listen_addr", "")

	// Enable environment variable support
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if braveKey := v.GetString("BRAVE_API_KEY"); braveKey != "" {
		config.Search.BraveAPIKey = braveKey
	}
	if catalogToken := v.GetString("CATALOG_TOKEN"); catalogToken != "" {
		config.Catalog.Token = catalogToken
	}

	if config.Pipeline.Mode != ModeAuto && config.Pipeline.Mode != ModeManual {
		return nil, fmt.Errorf("pipeline.mode must be %q or %q, got %q", ModeAuto, ModeManual, config.Pipeline.Mode)
	}

	return &config, nil
}
