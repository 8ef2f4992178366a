package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database (formation catalog); empty disables it
	DatabaseURL    string
	MigrateOnStart bool
	MigrationsDir  string

	// Redis (session cache, idle tracking, event fan-out); empty disables it
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Formations
	FormationsFile string

	// Simulation loop
	TickRateHz   int
	BroadcastHz  int
	WinningScore int

	// Sessions
	MaxSessions            int
	SessionIdleMinutes     int
	SessionSnapshotTTLMins int
	IdleWorkerPollSeconds  int

	// Security
	JWTSecret              string
	SessionTokenTTLMinutes int
}

// DevJWTSecret signs session tokens when JWT_SECRET is unset. Production
// refuses to start with it.
const DevJWTSecret = "change-me-in-production"

// ErrDevJWTSecret is returned by Validate in production without JWT_SECRET.
var ErrDevJWTSecret = errors.New("JWT_SECRET must be set in production")

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),
		MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Formations
		FormationsFile: getEnv("FORMATIONS_FILE", ""),

		// Simulation loop
		TickRateHz:   getEnvInt("TICK_RATE_HZ", 60),
		BroadcastHz:  getEnvInt("BROADCAST_HZ", 30),
		WinningScore: getEnvInt("WINNING_SCORE", 3),

		// Sessions
		MaxSessions:            getEnvInt("MAX_SESSIONS", 500),
		SessionIdleMinutes:     getEnvInt("SESSION_IDLE_MINUTES", 30),
		SessionSnapshotTTLMins: getEnvInt("SESSION_SNAPSHOT_TTL_MINUTES", 60),
		IdleWorkerPollSeconds:  getEnvInt("IDLE_WORKER_POLL_SECONDS", 30),

		// Security
		JWTSecret:              getEnv("JWT_SECRET", DevJWTSecret),
		SessionTokenTTLMinutes: getEnvInt("SESSION_TOKEN_TTL_MINUTES", 120),
	}
}

// Validate rejects settings that are unsafe for the current environment.
func (c *Config) Validate() error {
	if c.JWTSecret == "" || c.JWTSecret == DevJWTSecret {
		if c.Environment == "production" {
			return ErrDevJWTSecret
		}
		log.Println("[CONFIG] WARNING: JWT_SECRET not set; using the development secret")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}
