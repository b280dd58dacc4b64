package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	LogFile  string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CORSAllowedOrigins []string
	AdminJWTSecret     string
	WebhookSecret      string

	LLMProvider           string
	GeminiAPIKey          string
	GeminiModel           string
	GeminiEmbeddingModel  string
	BedrockModelID        string
	BedrockEmbeddingModel string
	LLMMaxTokens          int
	LLMTimeout            time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RetrievalTimeout time.Duration
	RetrievalTopK    int

	ChunkMaxTokens     int
	ChunkMinTokens     int
	ChunkOverlapTokens int
	EmbedBatchSize     int
	EmbedConcurrency   int

	ConversationTTL   time.Duration
	HistoryTurnLimit  int
	BotCacheTTL       time.Duration
	OutboxInterval    time.Duration
	OutboxBatchSize   int
	WebhookTimeout    time.Duration
	BookingSlotLength time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),

		LLMProvider:           strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEmbeddingModel:  getEnv("GEMINI_EMBEDDING_MODEL", "gemini-embedding-001"),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModel: getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		LLMMaxTokens:          getEnvAsInt("LLM_MAX_TOKENS", 600),
		LLMTimeout:            getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),

		RetrievalTimeout: getEnvAsDuration("RETRIEVAL_TIMEOUT", 4*time.Second),
		RetrievalTopK:    getEnvAsInt("RETRIEVAL_TOP_K", 5),

		ChunkMaxTokens:     getEnvAsInt("CHUNK_MAX_TOKENS", 800),
		ChunkMinTokens:     getEnvAsInt("CHUNK_MIN_TOKENS", 200),
		ChunkOverlapTokens: getEnvAsInt("CHUNK_OVERLAP_TOKENS", 200),
		EmbedBatchSize:     getEnvAsInt("EMBED_BATCH_SIZE", 32),
		EmbedConcurrency:   getEnvAsInt("EMBED_CONCURRENCY", 4),

		ConversationTTL:   getEnvAsDuration("CONVERSATION_TTL", 24*time.Hour),
		HistoryTurnLimit:  getEnvAsInt("HISTORY_TURN_LIMIT", 20),
		BotCacheTTL:       getEnvAsDuration("BOT_CACHE_TTL", 5*time.Minute),
		OutboxInterval:    getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:   getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		WebhookTimeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		BookingSlotLength: getEnvAsDuration("BOOKING_SLOT_LENGTH", 30*time.Minute),
	}
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Env))
	return env == "production" || env == "prod"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
