package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	// Oracle (OpenAI-compatible chat completions; OPENAI_BASE_URL may point at Ollama)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	Temperature   float32
	PromptsFile   string
	// Database
	DatabaseURL   string
	MigrationsDir string
	RunMigrations bool
	// WhatsApp Cloud API
	WebhookSecret         string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppAPIVersion    string
	WhatsAppBaseURL       string
	// Optional Redis for webhook de-duplication; in-memory when empty
	RedisAddr string
	DedupeTTL time.Duration
	// Bounded execution
	OracleTimeout   time.Duration
	QueryTimeout    time.Duration
	PipelineTimeout time.Duration
	// Logging
	LogLevel  string
	LogFormat string
	// Warnings collected while loading, logged once the logger exists
	Warnings []string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:                  getEnvDefault("PORT", "8080"),
		AllowedOrigins:        getEnvListDefault("ALLOWED_ORIGINS", []string{"*"}),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         os.Getenv("OPENAI_BASE_URL"),
		Model:                 getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		Temperature:           getEnvFloatDefault("OPENAI_TEMPERATURE", 0),
		PromptsFile:           os.Getenv("PROMPTS_FILE"),
		DatabaseURL:           os.Getenv("DB_URL"),
		MigrationsDir:         getEnvDefault("MIGRATIONS_DIR", "./migrations"),
		RunMigrations:         getEnvBoolDefault("RUN_MIGRATIONS", true),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		WhatsAppAccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		WhatsAppPhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppAPIVersion:    getEnvDefault("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppBaseURL:       getEnvDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		DedupeTTL:             getEnvDurationDefault("DEDUPE_TTL", 10*time.Minute),
		OracleTimeout:         getEnvDurationDefault("ORACLE_TIMEOUT", 30*time.Second),
		QueryTimeout:          getEnvDurationDefault("QUERY_TIMEOUT", 10*time.Second),
		PipelineTimeout:       getEnvDurationDefault("PIPELINE_TIMEOUT", 60*time.Second),
		LogLevel:              getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvDefault("LOG_FORMAT", "console"),
	}
	if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
		cfg.Warnings = append(cfg.Warnings, "OPENAI_API_KEY is not set; oracle calls will fail until provided")
	}
	if cfg.WebhookSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "WEBHOOK_SECRET is not set; webhook verification will always fail")
	}
	if cfg.WhatsAppAccessToken == "" || cfg.WhatsAppPhoneNumberID == "" {
		cfg.Warnings = append(cfg.Warnings, "WhatsApp credentials are incomplete; replies cannot be delivered")
	}
	return cfg
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getEnvDurationDefault accepts Go duration strings ("30s") or plain seconds ("30").
func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func getEnvFloatDefault(key string, def float32) float32 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}
