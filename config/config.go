package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port"`

	DocsDir       string `mapstructure:"docs_dir"`
	IndexDir      string `mapstructure:"index_dir"`
	LocalIndexDir string `mapstructure:"local_index_dir"`

	AnthropicModel string `mapstructure:"anthropic_model"`
	OpenAIModel    string `mapstructure:"openai_model"`

	ChunkSize               int   `mapstructure:"chunk_size"`
	ChunkOverlap            int   `mapstructure:"chunk_overlap"`
	BatchSize               int   `mapstructure:"batch_size"`
	BatchPauseSeconds       int   `mapstructure:"batch_pause_seconds"`
	RateLimitBackoffSeconds int   `mapstructure:"rate_limit_backoff_seconds"`
	MaxFileSizeBytes        int64 `mapstructure:"max_file_size_bytes"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	OpenAIAPIKey     string `mapstructure:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	AdminPassword    string `mapstructure:"ADMIN_PASSWORD"`
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	MongoDBURI       string `mapstructure:"MONGODB_URI"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("port", "8000")
	v.SetDefault("docs_dir", "./docs")
	v.SetDefault("index_dir", "/data")
	v.SetDefault("local_index_dir", "./index")
	v.SetDefault("anthropic_model", "claude-3-haiku-20240307")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("chunk_size", 4000)
	v.SetDefault("chunk_overlap", 500)
	v.SetDefault("batch_size", 50)
	v.SetDefault("batch_pause_seconds", 10)
	v.SetDefault("rate_limit_backoff_seconds", 60)
	v.SetDefault("max_file_size_bytes", 50*1024*1024)

	// Set up Viper to read from environment variables
	v.AutomaticEnv()

	// The config file is optional, environment variables and defaults are
	// enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Bind environment variables
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("ANTHROPIC_API_KEY")
	v.BindEnv("ADMIN_PASSWORD")
	v.BindEnv("TELEGRAM_BOT_TOKEN")
	v.BindEnv("MONGODB_URI")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
