package config

import (
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	LLM           LLMConfig
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaHost    string

	TranscriptionModel string

	Server ServerConfig
	Log    LogConfig
	Media  MediaConfig

	UnstructuredURL    string
	UnstructuredAPIKey string

	// Archive settings. Empty values disable the corresponding recorder.
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string
}

type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float32
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	MaxUploadBytes int64
}

type LogConfig struct {
	Level string
	File  string
}

type MediaConfig struct {
	FFmpegBin   string
	FFprobeBin  string
	PdftoppmBin string
	TempDir     string
}

// Load reads configuration from the environment. Values in a local .env file
// are applied first without overriding variables that are already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			Model:       getEnv("DEFAULT_MODEL", "gpt-4o"),
			MaxTokens:   getEnvInt("MAX_TOKENS", 2048),
			Temperature: getEnvFloat("TEMPERATURE", 0.7),
		},
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		Server: ServerConfig{
			Host:           getEnv("HOST", "localhost"),
			Port:           getEnvInt("PORT", 8000),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
			File:  getEnv("LOG_FILE", "logs/app.log"),
		},
		Media: MediaConfig{
			FFmpegBin:   getEnv("FFMPEG_BIN", "ffmpeg"),
			FFprobeBin:  getEnv("FFPROBE_BIN", "ffprobe"),
			PdftoppmBin: getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TempDir:     getEnv("TMP_DIR", ""),
		},
		UnstructuredURL:    getEnv("UNSTRUCTURED_API_URL", ""),
		UnstructuredAPIKey: getEnv("UNSTRUCTURED_API_KEY", ""),
		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
		Neo4jURI:           getEnv("NEO4J_URI", ""),
		Neo4jUser:          getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:          getEnv("NEO4J_PASSWORD", "password"),
	}
}

// Validate checks the settings required to serve requests.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.OpenAIAPIKey, validation.When(c.LLM.Provider == ProviderOpenAI,
			validation.Required.Error("OPENAI_API_KEY must be set for the openai provider"))),
		validation.Field(&c.LLM),
		validation.Field(&c.Server),
	)
}

func (c LLMConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderOpenAI, ProviderOllama)),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxTokens, validation.Min(1)),
		// go-openai drops a zero temperature from the request body.
		validation.Field(&c.Temperature,
			validation.Required.Error("must be greater than 0"),
			validation.Min(float32(0)).Exclusive(),
			validation.Max(float32(2))),
	)
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxUploadBytes, validation.Min(int64(1))),
	)
}

// ArchiveEnabled reports whether any ingestion archive backend is configured.
func (c Config) ArchiveEnabled() bool {
	return c.PostgresDSN != "" || c.Neo4jURI != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float32) float32 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return fallback
	}
	return float32(value)
}

func getEnvList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
