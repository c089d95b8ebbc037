package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Events     EventsConfig     `mapstructure:"events"`
	Enrollment EnrollmentConfig `mapstructure:"enrollment"`
	Log        LogConfig        `mapstructure:"log"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`
	WriteTimeout   int    `mapstructure:"write_timeout"`
	MaxHeaderBytes int    `mapstructure:"max_header_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	SSLMode       string `mapstructure:"ssl_mode"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl_seconds"`
}

// EventsConfig holds event dispatcher configuration
type EventsConfig struct {
	BufferSize  int  `mapstructure:"buffer_size"`
	Workers     int  `mapstructure:"workers"`
	RedisPubSub bool `mapstructure:"redis_pubsub"`
}

// EnrollmentConfig holds the admission engine tunables
type EnrollmentConfig struct {
	MaxCreditsPerTerm   int `mapstructure:"max_credits_per_term"`
	LockTimeoutMs       int `mapstructure:"lock_timeout_ms"`
	IdempotencyTTLHours int `mapstructure:"idempotency_ttl_hours"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

var config *Config

// Init initializes the configuration
func Init() {
	config = &Config{}

	setDefaults()

	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
}

// Get returns the global configuration
func Get() *Config {
	if config == nil {
		Init()
	}
	return config
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "course-enrollment")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15)
	viper.SetDefault("server.write_timeout", 15)
	viper.SetDefault("server.max_header_bytes", 1048576)

	// Database defaults
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.name", "course_enrollment")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.migrations_dir", "migrations")

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", 6379)
	viper.SetDefault("cache.password", "")
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.ttl_seconds", 30)

	// Events defaults
	viper.SetDefault("events.buffer_size", 256)
	viper.SetDefault("events.workers", 2)
	viper.SetDefault("events.redis_pubsub", true)

	// Enrollment defaults
	viper.SetDefault("enrollment.max_credits_per_term", 21)
	viper.SetDefault("enrollment.lock_timeout_ms", 5000)
	viper.SetDefault("enrollment.idempotency_ttl_hours", 24)

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
}
