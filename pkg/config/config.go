package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// SetupConfig holds family setup and invitation settings
type SetupConfig struct {
	TokenTTL          time.Duration
	DefaultFamilyName string
	DefaultFamilySlug string
}

// AuthConfig holds session and lockout settings
type AuthConfig struct {
	AdminPassword   string // bcrypt hash of the system admin password
	IdleTimeout     time.Duration
	LockoutAttempts int
	LockoutWindow   time.Duration
	LockoutDuration time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// MailConfig holds outbound mail settings
type MailConfig struct {
	Host string
	Port string
	From string
	User string
	Pass string
}

// Config holds all configuration
type Config struct {
	DB      DBConfig
	Server  ServerConfig
	JWT     JWTConfig
	Setup   SetupConfig
	Auth    AuthConfig
	Log     LogConfig
	Metrics MetricsConfig
	Mail    MailConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	// Initialize config struct with values from environment
	config := &Config{
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "sprout_track"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "sprouttracksecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Setup: SetupConfig{
			TokenTTL:          getEnvAsDuration("SETUP_TOKEN_TTL", 7*24*time.Hour),
			DefaultFamilyName: getEnv("DEFAULT_FAMILY_NAME", "My Family"),
			DefaultFamilySlug: getEnv("DEFAULT_FAMILY_SLUG", "my-family"),
		},
		Auth: AuthConfig{
			AdminPassword:   getEnv("ADMIN_PASSWORD_HASH", ""),
			IdleTimeout:     getEnvAsDuration("AUTH_IDLE_TIMEOUT", 30*time.Minute),
			LockoutAttempts: getEnvAsInt("AUTH_LOCKOUT_ATTEMPTS", 5),
			LockoutWindow:   getEnvAsDuration("AUTH_LOCKOUT_WINDOW", 15*time.Minute),
			LockoutDuration: getEnvAsDuration("AUTH_LOCKOUT_DURATION", 5*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "sprouttrack"),
		},
		Mail: MailConfig{
			Host: getEnv("MAIL_HOST", ""),
			Port: getEnv("MAIL_PORT", "587"),
			From: getEnv("MAIL_FROM", "no-reply@sprout-track.local"),
			User: getEnv("MAIL_USER", ""),
			Pass: getEnv("MAIL_PASS", ""),
		},
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Duration("setup_token_ttl", c.Setup.TokenTTL),
		zap.Duration("idle_timeout", c.Auth.IdleTimeout),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
