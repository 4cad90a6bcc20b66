package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("SESSION_STORE", "")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-1.5-flash-latest", cfg.Model)
	assert.Equal(t, DefaultInstruction, cfg.DefaultInstruction)
	assert.Equal(t, DefaultSystemInstruction, cfg.SystemInstruction)
	assert.Equal(t, SessionStoreMemory, cfg.SessionStore)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadSize)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_OpenAIProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := FromEnv()

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "sk-test", cfg.APIKey())
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("MAX_UPLOAD_SIZE", "ten")
	t.Setenv("SESSION_TTL", "forever")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example,")

	cfg := FromEnv()

	assert.Equal(t, int64(10<<20), cfg.MaxUploadSize)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}

func TestValidate(t *testing.T) {
	t.Setenv("SESSION_STORE", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg := FromEnv()
	cfg.Provider = "claude"
	assert.Error(t, cfg.Validate())

	cfg = FromEnv()
	cfg.SessionStore = SessionStoreRedis
	cfg.RedisURL = ""
	assert.Error(t, cfg.Validate(), "redis store needs a URL")

	cfg.RedisURL = "redis://localhost:6379"
	assert.NoError(t, cfg.Validate())

	// a missing API key is reported at attempt time, not at start-up
	cfg.GoogleAPIKey = ""
	assert.NoError(t, cfg.Validate())
}
