package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// Job store backend: "postgres" (default), "supabase" or "memory".
	JobStoreBackend    string
	DatabaseURL        string
	SupabaseURL        string
	SupabaseServiceKey string
	RedisURL           string

	// Provider credentials and callback registration.
	RunwareAPIKey   string
	WaveSpeedAPIKey string
	FalAPIKey       string
	WebhookBaseURL  string

	// Webhook receiver authentication.
	WebhookToken        string
	FalWebhookSecret    string
	WebhookAuthRequired bool

	// Push notification relay.
	PushEndpoint string
	PushAPIKey   string

	// Media storage.
	StorageBucket string
	StoragePath   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	// Polling fallback tuning.
	PollInterval    time.Duration
	PollMaxAttempts int
	VideoPollDelay  time.Duration

	// Reaper windows, compared against wall-clock created_at.
	StuckTimeout  time.Duration
	OrphanGrace   time.Duration
	RetentionAge  time.Duration
	SweepInterval time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		JobStoreBackend:    getEnv("JOB_STORE_BACKEND", "postgres"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		RedisURL:           os.Getenv("REDIS_URL"),

		RunwareAPIKey:   os.Getenv("RUNWARE_API_KEY"),
		WaveSpeedAPIKey: os.Getenv("WAVESPEED_API_KEY"),
		FalAPIKey:       os.Getenv("FAL_API_KEY"),
		WebhookBaseURL:  os.Getenv("WEBHOOK_BASE_URL"),

		WebhookToken:        os.Getenv("WEBHOOK_TOKEN"),
		FalWebhookSecret:    os.Getenv("FAL_WEBHOOK_SECRET"),
		WebhookAuthRequired: getEnvBool("WEBHOOK_AUTH_REQUIRED", true),

		PushEndpoint: os.Getenv("PUSH_ENDPOINT"),
		PushAPIKey:   os.Getenv("PUSH_API_KEY"),

		StorageBucket: getEnv("STORAGE_BUCKET", "user-media"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		PollInterval:    time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 120),
		VideoPollDelay:  time.Second * time.Duration(getEnvInt("VIDEO_POLL_DELAY_SECONDS", 30)),

		StuckTimeout:  time.Minute * time.Duration(getEnvInt("STUCK_TIMEOUT_MINUTES", 10)),
		OrphanGrace:   time.Minute * time.Duration(getEnvInt("ORPHAN_GRACE_MINUTES", 30)),
		RetentionAge:  time.Hour * time.Duration(getEnvInt("RETENTION_AGE_HOURS", 72)),
		SweepInterval: time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 1)),
	}

	switch cfg.JobStoreBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when JOB_STORE_BACKEND=postgres")
		}
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when JOB_STORE_BACKEND=supabase")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE_BACKEND %q", cfg.JobStoreBackend)
	}

	if cfg.WebhookAuthRequired && cfg.WebhookToken == "" {
		return nil, fmt.Errorf("WEBHOOK_TOKEN is required when WEBHOOK_AUTH_REQUIRED=true")
	}

	return cfg, nil
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
