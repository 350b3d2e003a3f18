package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Ai       AIConfig
	Ky       KyConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	StreamLogFilePath  string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
	ServiceToken       string // shared secret between the KY API and the model API
}

type DatabaseConfig struct {
	Connection string
}

type SMTPConfig struct {
	Host            string
	Port            int
	Email           string
	Password        string
	SenderName      string
	SupervisorEmail string
}

type AIConfig struct {
	LLMProvider        string // "ollama" or "huggingface"
	LLMModel           string
	OllamaBaseURL      string
	HuggingFaceKey     string
	HuggingFaceBaseURL string
	RequestTimeout     time.Duration
}

type KyConfig struct {
	ChatAPIBaseURL     string
	RequestTimeout     time.Duration
	RecentDays         int
	PastLimit          int
	NearMissLimit      int
	ContextMaxChars    int
	RetentionCap       int
	SessionTTL         time.Duration
	RateLimitPerMinute int
	CompletionTopic    string
	TimeZone           string // site time zone, IANA name
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	port := getEnv("APP_PORT", "3000")

	return &Config{
		App: AppConfig{
			Port:               port,
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			StreamLogFilePath:  getEnv("STREAM_LOG_FILE_PATH", "logs/session_stream.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			ServiceToken:       getEnv("KY_SERVICE_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:            getEnv("SMTP_HOST", ""),
			Port:            getEnvAsInt("SMTP_PORT", 587),
			Email:           getEnv("SMTP_EMAIL", ""),
			Password:        getEnv("SMTP_PASSWORD", ""),
			SenderName:      getEnv("SMTP_SENDER_NAME", "KY Assistant"),
			SupervisorEmail: getEnv("SUPERVISOR_EMAIL", ""),
		},
		Ai: AIConfig{
			LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:           getEnv("LLM_MODEL", "qwen2.5"),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			HuggingFaceKey:     getEnv("HUGGINGFACE_API_KEY", ""),
			HuggingFaceBaseURL: getEnv("HUGGINGFACE_BASE_URL", ""),
			RequestTimeout:     getEnvAsDuration("LLM_REQUEST_TIMEOUT", 25*time.Second),
		},
		Ky: KyConfig{
			ChatAPIBaseURL:     getEnv("KY_CHAT_API_BASE_URL", "http://localhost:"+port),
			RequestTimeout:     getEnvAsDuration("KY_REQUEST_TIMEOUT", 30*time.Second),
			RecentDays:         getEnvAsInt("KY_RECENT_DAYS", 3),
			PastLimit:          getEnvAsInt("KY_PAST_LIMIT", 5),
			NearMissLimit:      getEnvAsInt("KY_NEAR_MISS_LIMIT", 3),
			ContextMaxChars:    getEnvAsInt("KY_CONTEXT_MAX_CHARS", 1200),
			RetentionCap:       getEnvAsInt("KY_RETENTION_CAP", 100),
			SessionTTL:         getEnvAsDuration("KY_SESSION_TTL", 12*time.Hour),
			RateLimitPerMinute: getEnvAsInt("KY_RATE_LIMIT_PER_MINUTE", 30),
			CompletionTopic:    getEnv("KY_COMPLETION_TOPIC", "KY_SESSION_COMPLETED"),
			TimeZone:           getEnv("KY_TIME_ZONE", "Asia/Tokyo"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// SiteLocation resolves the configured site time zone, falling back to UTC
// when the name is unknown.
func (c KyConfig) SiteLocation() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		log.Printf("[WARN] Unknown KY_TIME_ZONE %q, using UTC", c.TimeZone)
		return time.UTC
	}
	return loc
}

// TracingEnabled reports whether spans should be exported.
func TracingEnabled() bool {
	return getEnvAsBool("OTEL_ENABLED", false)
}
