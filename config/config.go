package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ChannelConfig holds external channel report API configuration
type ChannelConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PollMaxWall    time.Duration `mapstructure:"poll_max_wall_clock"`
	PollDeadline   time.Duration `mapstructure:"poll_deadline"` // background polling give-up window
	DefaultChannel string        `mapstructure:"default_channel"`
	DefaultMarket  string        `mapstructure:"default_marketplace"`
}

// CatalogConfig holds the internal catalog service configuration
type CatalogConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	CompanyID string `mapstructure:"company_id"`
}

// RateLimitConfig holds outbound rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	MaxRetries        int `mapstructure:"max_retries"`
	InitialBackoffMs  int `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int `mapstructure:"max_backoff_ms"`
}

// WorkerConfig holds background poll worker configuration
type WorkerConfig struct {
	NumWorkers    int           `mapstructure:"num_workers"`
	MaxTasks      int           `mapstructure:"max_tasks"`
	PollDelay     time.Duration `mapstructure:"poll_delay"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxClaimAge   time.Duration `mapstructure:"max_claim_age"`
}

// StorageConfig holds payload archive configuration
type StorageConfig struct {
	Type     string `mapstructure:"type"`
	BasePath string `mapstructure:"base_path"`
}

// AuthConfig holds inbound authentication configuration
type AuthConfig struct {
	InternalAPIKey string `mapstructure:"internal_api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional, log but don't fail
	if err := loadEnvFile(); err != nil {
		log.Warn().Err(err).Msg("Warning: .env file not loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("INVENTORY_SERVICE")

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads a .env file from the usual locations
func loadEnvFile() error {
	envPaths := []string{
		".",
		"./config",
	}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	// Channel
	v.BindEnv("channel.base_url", "CHANNEL_API_URL")
	v.BindEnv("channel.api_key", "CHANNEL_API_KEY")

	// Catalog
	v.BindEnv("catalog.base_url", "CATALOG_API_URL")
	v.BindEnv("catalog.company_id", "CATALOG_COMPANY_ID")

	// Auth
	v.BindEnv("auth.internal_api_key", "INTERNAL_API_KEY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")

	// Storage
	v.BindEnv("storage.base_path", "STORAGE_PATH")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	// Channel defaults
	v.SetDefault("channel.poll_max_wall_clock", 10*time.Minute)
	v.SetDefault("channel.poll_deadline", 2*time.Hour)
	v.SetDefault("channel.default_channel", "amazon-sc")
	v.SetDefault("channel.default_marketplace", "ATVPDKIKX0DER")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_second", 2)
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.initial_backoff_ms", 200)
	v.SetDefault("rate_limit.max_backoff_ms", 30000)

	// Worker defaults
	v.SetDefault("worker.num_workers", 2)
	v.SetDefault("worker.max_tasks", 5)
	v.SetDefault("worker.poll_delay", 2*time.Second)
	v.SetDefault("worker.sweep_interval", 1*time.Minute)
	v.SetDefault("worker.max_claim_age", 5*time.Minute)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/payloads")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
