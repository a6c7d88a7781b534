package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "DEFAULT_MODEL", "MAX_TOKENS", "TEMPERATURE", "PORT", "ALLOWED_ORIGINS", "MAX_UPLOAD_MB", "POSTGRES_DSN", "NEO4J_URI"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 0.0001)
	assert.Equal(t, "whisper-1", cfg.TranscriptionModel)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(50*1024*1024), cfg.Server.MaxUploadBytes)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Ollama")
	t.Setenv("MAX_TOKENS", "512")
	t.Setenv("TEMPERATURE", "0.2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/archive")

	cfg := Load()

	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 0.0001)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 8000, cfg.Server.Port, "invalid integers fall back to the default")
	assert.True(t, cfg.ArchiveEnabled())
}

func TestValidateRequiresOpenAIKey(t *testing.T) {
	cfg := Config{
		LLM:    LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4o", MaxTokens: 100, Temperature: 0.5},
		Server: ServerConfig{Port: 8000, MaxUploadBytes: 1024},
	}
	require.Error(t, cfg.Validate())

	cfg.OpenAIAPIKey = "sk-test"
	require.NoError(t, cfg.Validate())

	cfg.OpenAIAPIKey = ""
	cfg.LLM.Provider = ProviderOllama
	assert.NoError(t, cfg.Validate(), "ollama does not need an api key")
}

func TestValidateRejectsZeroTemperature(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "DEFAULT_MODEL", "MAX_TOKENS", "PORT", "MAX_UPLOAD_MB"} {
		t.Setenv(key, "")
	}
	t.Setenv("TEMPERATURE", "0")
	cfg := Load()
	cfg.OpenAIAPIKey = "sk-test"
	require.Zero(t, cfg.LLM.Temperature)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be greater than 0")

	cfg.LLM.Temperature = -0.5
	assert.Error(t, cfg.Validate())

	cfg.LLM.Temperature = 0.01
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Config{
		OpenAIAPIKey: "sk-test",
		LLM:          LLMConfig{Provider: "mystery", Model: "m", MaxTokens: 1},
		Server:       ServerConfig{Port: 8000, MaxUploadBytes: 1},
	}
	assert.Error(t, cfg.Validate())
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog()
	require.NoError(t, err)

	require.Len(t, catalog.Models, 3)
	assert.Equal(t, "gpt-4o", catalog.Models[0].ID)
	assert.True(t, catalog.HasModel("gpt-4o-mini"))
	assert.False(t, catalog.HasModel("claude"))
	require.Len(t, catalog.KnowledgeBases, 2)
	assert.Equal(t, "technical", catalog.KnowledgeBases[1].ID)
}

func TestParseCatalogRejectsMissingID(t *testing.T) {
	_, err := ParseCatalog([]byte("models:\n  - name: nameless\n"))
	assert.Error(t, err)
}
