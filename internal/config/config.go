package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Escalation   EscalationConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// EscalationConfig tunes the assignment and escalation subsystem.
type EscalationConfig struct {
	SweepIntervalMinutes     int
	SweepConcurrency         int
	CapacityCap              int
	EscalationCooldownHours  int
	ReminderCooldownHours    int
	EmergencyDurationMinutes int
}

// SweepInterval returns the period between escalation sweeps.
func (e EscalationConfig) SweepInterval() time.Duration {
	if e.SweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(e.SweepIntervalMinutes) * time.Minute
}

// EscalationCooldown returns the idempotence window for escalations.
func (e EscalationConfig) EscalationCooldown() time.Duration {
	if e.EscalationCooldownHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.EscalationCooldownHours) * time.Hour
}

// ReminderCooldown returns the idempotence window for reminders.
func (e EscalationConfig) ReminderCooldown() time.Duration {
	if e.ReminderCooldownHours <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(e.ReminderCooldownHours) * time.Hour
}

// EmergencyDuration returns the estimated duration stamped on emergency
// cross-department assignments.
func (e EscalationConfig) EmergencyDuration() time.Duration {
	if e.EmergencyDurationMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(e.EmergencyDurationMinutes) * time.Minute
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "concern-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Escalation: EscalationConfig{
			SweepIntervalMinutes:     getEnvAsInt("ESCALATION_SWEEP_INTERVAL_MINUTES", 15),
			SweepConcurrency:         getEnvAsInt("ESCALATION_SWEEP_CONCURRENCY", 8),
			CapacityCap:              getEnvAsInt("ASSIGNMENT_CAPACITY_CAP", 10),
			EscalationCooldownHours:  getEnvAsInt("ESCALATION_COOLDOWN_HOURS", 24),
			ReminderCooldownHours:    getEnvAsInt("REMINDER_COOLDOWN_HOURS", 12),
			EmergencyDurationMinutes: getEnvAsInt("EMERGENCY_DURATION_MINUTES", 120),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
