// Package config provides centralized configuration management
// using Viper for loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AI            AIConfig            `mapstructure:"ai"`
	Kroger        KrogerConfig        `mapstructure:"kroger"`
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	Storage       StorageConfig       `mapstructure:"storage"`
}

// AppConfig contains application-level configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// Addr returns the host:port pair for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AIConfig contains the Gemini API configuration used by the import
// extractor, rule parser and suggestion engine.
type AIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// KrogerConfig contains the grocery integration credentials.
type KrogerConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	StoreID      string `mapstructure:"store_id"`
	StateSecret  string `mapstructure:"state_secret"`
}

// HomeAssistantConfig points at the HA calendar API.
type HomeAssistantConfig struct {
	BaseURL   string   `mapstructure:"base_url"`
	Token     string   `mapstructure:"token"`
	Calendars []string `mapstructure:"calendars"`
}

// StorageConfig controls where recipe images land. When Bucket is empty the
// image service writes to ImageDir on local disk.
type StorageConfig struct {
	ImageDir string `mapstructure:"image_dir"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
}

// Load reads configuration from config.yaml (optional) and FORKCAST_*
// environment variables, applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("FORKCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "forkcast")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "forkcast")
	v.SetDefault("database.username", "forkcast")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-1.5-flash")

	v.SetDefault("kroger.client_id", "")
	v.SetDefault("kroger.client_secret", "")
	v.SetDefault("kroger.redirect_uri", "")
	v.SetDefault("kroger.store_id", "")
	v.SetDefault("kroger.state_secret", "")

	v.SetDefault("homeassistant.base_url", "")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("homeassistant.calendars", []string{})

	v.SetDefault("storage.image_dir", "./data/images")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Storage.ImageDir == "" {
		return fmt.Errorf("storage.image_dir must not be empty")
	}
	return nil
}
