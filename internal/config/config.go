package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"

	DefaultSystemInstruction = "You are an expert in understanding invoices. We will upload an image as an invoice " +
		"and you will have to answer any question based on the uploaded invoice image."
	DefaultInstruction = "Extract invoice details"
)

type Config struct {
	HTTPAddr           string        `validate:"required"`
	Provider           string        `validate:"oneof=gemini openai"`
	Model              string        `validate:"required"`
	GoogleAPIKey       string
	OpenAIAPIKey       string
	OpenAIBaseURL      string        `validate:"omitempty,url"`
	GeminiBaseURL      string        `validate:"omitempty,url"`
	SystemInstruction  string        `validate:"required"`
	DefaultInstruction string        `validate:"required"`
	MaxUploadSize      int64         `validate:"gt=0"`
	MaxInstructionLen  int           `validate:"gt=0"`
	SessionStore       string        `validate:"oneof=memory redis"`
	RedisURL           string        `validate:"required_if=SessionStore redis"`
	SessionTTL         time.Duration `validate:"gt=0"`
	RequestTimeout     time.Duration `validate:"gt=0"`
	RateLimitPerMinute int           `validate:"gte=0"`
	CORSOrigins        []string
	LogLevel           string        `validate:"oneof=debug info warn error"`
	LogFormat          string        `validate:"oneof=text json"`
}

// APIKey returns the credential of the selected provider.
func (c Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GoogleAPIKey
}

// Validate checks the loaded values. A missing API key is not an error here:
// it surfaces as an extraction error on the first attempt.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		slog.Warn("bad int env, using default", "key", key, "value", v)
	}
	return def
}

func mustInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
		slog.Warn("bad int64 env, using default", "key", key, "value", v)
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		slog.Warn("bad duration env, using default", "key", key, "value", v)
	}
	return def
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	currentDir, err := os.Getwd()
	if err != nil {
		slog.Debug("failed to get current directory", "error", err)
		return
	}

	// look in current directory and up to 3 parent directories
	searchDirs := []string{currentDir}
	for i := 0; i < 3; i++ {
		parent := filepath.Dir(currentDir)
		if parent == currentDir {
			break
		}
		searchDirs = append(searchDirs, parent)
		currentDir = parent
	}

	loadedAny := false
	for _, dir := range searchDirs {
		for _, envFile := range envFiles {
			envPath := filepath.Join(dir, envFile)
			if _, err := os.Stat(envPath); err == nil {
				if err := godotenv.Load(envPath); err == nil {
					slog.Debug("loaded environment file", "path", envPath)
					loadedAny = true
				} else {
					slog.Debug("failed to load environment file", "path", envPath, "error", err)
				}
			}
		}
		if loadedAny {
			break
		}
	}

	if !loadedAny {
		slog.Debug("no .env files found, using system environment variables only")
	}
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o"
	}
	return "gemini-1.5-flash-latest"
}

func Load() Config {
	loadEnvFiles()
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() Config {
	provider := strings.ToLower(getenv("LLM_PROVIDER", ProviderGemini))
	return Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		Provider:           provider,
		Model:              getenv("LLM_MODEL", defaultModel(provider)),
		GoogleAPIKey:       getenv("GOOGLE_API_KEY", ""),
		OpenAIAPIKey:       getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getenv("OPENAI_BASE_URL", ""),
		GeminiBaseURL:      getenv("GEMINI_BASE_URL", ""),
		SystemInstruction:  getenv("SYSTEM_INSTRUCTION", DefaultSystemInstruction),
		DefaultInstruction: getenv("DEFAULT_INSTRUCTION", DefaultInstruction),
		MaxUploadSize:      mustInt64("MAX_UPLOAD_SIZE", 10<<20),
		MaxInstructionLen:  mustInt("MAX_INSTRUCTION_LENGTH", 4000),
		SessionStore:       strings.ToLower(getenv("SESSION_STORE", SessionStoreMemory)),
		RedisURL:           getenv("REDIS_URL", ""),
		SessionTTL:         mustDuration("SESSION_TTL", 30*time.Minute),
		RequestTimeout:     mustDuration("REQUEST_TIMEOUT", 120*time.Second),
		RateLimitPerMinute: mustInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:        getList("CORS_ORIGINS", []string{"*"}),
		LogLevel:           strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getenv("LOG_FORMAT", "text")),
	}
}
