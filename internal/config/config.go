package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Anti-cheat
	MaxSessionDurationSeconds int64
	AnomalyThreshold          float64
	StaleSessionHours         int
	SweepIntervalSeconds      int

	// Leaderboard
	LeaderboardMaxEntries int

	// Analytics retry workers
	AnalyticsWorkers int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),
		MaxSessionDurationSeconds: int64(getEnvAsIntOrDefault("MAX_SESSION_DURATION_SECONDS", 43200)),
		AnomalyThreshold:          getEnvAsFloatOrDefault("ANOMALY_THRESHOLD", 0.7),
		StaleSessionHours:         getEnvAsIntOrDefault("STALE_SESSION_HOURS", 8),
		SweepIntervalSeconds:      getEnvAsIntOrDefault("SWEEP_INTERVAL_SECONDS", 300),
		LeaderboardMaxEntries:     getEnvAsIntOrDefault("LEADERBOARD_MAX_ENTRIES", 50),
		AnalyticsWorkers:          getEnvAsIntOrDefault("ANALYTICS_WORKERS", 2),
		FrontendURL:               getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
