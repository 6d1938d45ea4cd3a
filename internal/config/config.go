package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking queue
	QueueCapacity      int
	EntryTTL           time.Duration
	MatchTTL           time.Duration
	SweepInterval      time.Duration
	MatchCleanupDelay  time.Duration
	GameTimeTolerance  int
	BetAmountTolerance string

	// Rate limit (per client IP on matchmaking routes)
	RateLimitCapacity int64
	RateLimitRefill   int64

	// Redis (optional): match events + distributed rate limiting
	RedisURL           string
	MatchEventsChannel string

	// Database (optional): match history
	DatabaseURL string

	// Admin token secret for diagnostic routes; empty leaves them open
	AdminJWTSecret string
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		QueueCapacity:      parseInt(getEnv("QUEUE_CAPACITY", "1000"), 1000),
		EntryTTL:           parseDuration(getEnv("QUEUE_ENTRY_TTL", "120s"), 120*time.Second),
		MatchTTL:           parseDuration(getEnv("QUEUE_MATCH_TTL", "180s"), 180*time.Second),
		SweepInterval:      parseDuration(getEnv("QUEUE_SWEEP_INTERVAL", "60s"), 60*time.Second),
		MatchCleanupDelay:  parseDuration(getEnv("QUEUE_MATCH_CLEANUP_DELAY", "1s"), time.Second),
		GameTimeTolerance:  parseInt(getEnv("MATCH_GAME_TIME_TOLERANCE", "60"), 60),
		BetAmountTolerance: getEnv("MATCH_BET_TOLERANCE", "10"),
		RateLimitCapacity:  int64(parseInt(getEnv("RATE_LIMIT_CAPACITY", "20"), 20)),
		RateLimitRefill:    int64(parseInt(getEnv("RATE_LIMIT_REFILL", "10"), 10)),
		RedisURL:           getEnv("REDIS_URL", ""),
		MatchEventsChannel: getEnv("MATCH_EVENTS_CHANNEL", "matchmaking:events"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
