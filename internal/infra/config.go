package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	SQLitePath  string
	JWTSecret   string
	GeoIPDBPath string

	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicateModelVersion string
	PollInterval          time.Duration
	PollMaxWait           time.Duration

	SignupCredits  int
	GenerationCost int

	SweepInterval   time.Duration
	SweepStaleAfter time.Duration

	DefaultLocale    string
	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		ReplicateAPIToken:     os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:      getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModelVersion: getEnv("REPLICATE_MODEL_VERSION", "stability-ai/stable-video-diffusion:3f0457e4619daac51203dedb472816fd4af51f3149fa7a9e0b5ffcf1b8172438"),
		PollInterval:          time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 1)),
		PollMaxWait:           time.Second * time.Duration(getEnvInt("POLL_MAX_WAIT_SECONDS", 600)),

		SignupCredits:  getEnvInt("SIGNUP_CREDITS", 5),
		GenerationCost: getEnvInt("GENERATION_COST", 1),

		SweepInterval:   time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)),
		SweepStaleAfter: time.Second * time.Duration(getEnvInt("SWEEP_STALE_AFTER_SECONDS", 1800)),

		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 900)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return nil, fmt.Errorf("one of DATABASE_URL or SQLITE_PATH is required")
	}

	if cfg.ReplicateAPIToken == "" {
		return nil, fmt.Errorf("REPLICATE_API_TOKEN is required")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
