// package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// database
	DatabaseURL string `validate:"required"`

	// nats (empty disables publishing)
	NatsURL string

	// llm
	LLMBaseURL     string
	LLMModel       string
	LLMAPIKey      string
	LLMMaxTokens   int `validate:"gte=1"`
	LLMTemperature float64
	LLMTimeoutSec  int `validate:"gte=1"`

	// telegram
	TGApiID       int
	TGApiHash     string
	TGSessionName string `validate:"required"`

	// refresh run
	ChannelListFile string `validate:"required"`
	MediaDir        string `validate:"required"`
	Refresh         RefreshConfig

	// server
	HTTPPort  int `validate:"gte=0,lte=65535"`
	StaticDir string

	// logging
	LogLevel string
	LogFile  string
}

// RefreshConfig tunes the channel refresh engine.
type RefreshConfig struct {
	RequestDelay time.Duration `validate:"gte=0"`

	HistoryLimit    int `validate:"gte=0"`
	HistoryPageSize int `validate:"gte=1,lte=100"`

	CommentPageSize   int `validate:"gte=1,lte=100"`
	CommentTarget     int `validate:"gte=0"`
	CommentMinReplies int `validate:"gte=0"`
	CommentMaxAge     time.Duration

	// TTLDays <= 0 disables periodic refresh (fill-only mode).
	TTLDays   int
	Force     bool
	Only      []string
	Skip      []string
	MediaText int `validate:"gte=0"`

	SpeechTimeout    time.Duration
	SpeechRetries    int `validate:"gte=0"`
	SpeechRetryDelay time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", "data/channels.sqlite"),
		NatsURL:         getEnv("NATS_URL", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:        getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", 4096),
		LLMTimeoutSec:   getEnvInt("LLM_TIMEOUT_SECONDS", 120),
		TGApiID:         getEnvInt("TG_API_ID", 0),
		TGApiHash:       getEnv("TG_API_HASH", ""),
		TGSessionName:   getEnv("TG_SESSION_NAME", "default"),
		ChannelListFile: getEnv("CHANNEL_LIST_FILE", "channels.txt"),
		MediaDir:        getEnv("CHANNEL_MEDIA_DIR", "media"),
		HTTPPort:        getEnvInt("HTTP_PORT", 3000),
		StaticDir:       getEnv("STATIC_DIR", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		Refresh: RefreshConfig{
			RequestDelay:      getEnvMillis("TG_REQUEST_DELAY_MS", 1000),
			HistoryLimit:      getEnvInt("CHANNEL_HISTORY_FETCH_LIMIT", 100),
			HistoryPageSize:   getEnvInt("CHANNEL_HISTORY_PAGE_SIZE", 100),
			CommentPageSize:   getEnvInt("CHANNEL_COMMENT_PAGE_SIZE", 100),
			CommentTarget:     getEnvInt("CHANNEL_COMMENT_LIMIT_MAX", 200),
			CommentMinReplies: getEnvInt("CHANNEL_COMMENT_MIN_REPLIES", 30),
			CommentMaxAge:     time.Duration(getEnvInt("CHANNEL_COMMENT_MAX_AGE_SECONDS", 30*24*60*60)) * time.Second,
			TTLDays:           getEnvInt("CHANNEL_REFRESH_DAYS", 30),
			Force:             getEnvBool("CHANNEL_FORCE_REFRESH", false),
			Only:              getEnvList("CHANNEL_REFRESH_ONLY"),
			Skip:              getEnvList("CHANNEL_REFRESH_SKIP"),
			MediaText:         getEnvInt("CHANNEL_MEDIA_TEXT_THRESHOLD", 100),
			SpeechTimeout:     getEnvMillis("SPEECH_TIMEOUT_MS", 10000),
			SpeechRetries:     getEnvInt("SPEECH_RETRY_COUNT", 5),
			SpeechRetryDelay:  getEnvMillis("SPEECH_RETRY_DELAY_MS", 2000),
		},
	}

	cfg.LLMTemperature = getEnvFloat("LLM_TEMPERATURE", 0.2)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges declared in struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// TelegramConfigured reports whether MTProto credentials are present.
func (c *Config) TelegramConfigured() bool {
	return c.TGApiID != 0 && c.TGApiHash != ""
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvBool accepts 1/true/yes/on (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "":
		return defaultVal
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
