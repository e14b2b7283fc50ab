package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        string `mapstructure:"PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Database configuration
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	DatabaseHost     string `mapstructure:"DB_HOST"`
	DatabasePort     string `mapstructure:"DB_PORT"`
	DatabaseUser     string `mapstructure:"DB_USER"`
	DatabasePassword string `mapstructure:"DB_PASSWORD"`
	DatabaseName     string `mapstructure:"DB_NAME"`
	DatabaseSSLMode  string `mapstructure:"DB_SSL_MODE"`

	// Redis configuration (locks, ephemeral attempt state, progress channel)
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisUsername string `mapstructure:"REDIS_USERNAME"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JWT configuration
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// CORS configuration
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`

	// GitHub configuration (repository sync + Actions CI polling)
	GitHubToken    string `mapstructure:"GITHUB_TOKEN"`
	GitHubOwner    string `mapstructure:"GITHUB_OWNER"`
	GitHubRepoBase string `mapstructure:"GITHUB_REPO_BASE"` // repos are named <base>-<app subdomain>
	WorkflowFile   string `mapstructure:"WORKFLOW_FILE"`
	DefaultBranch  string `mapstructure:"DEFAULT_BRANCH"`

	// Edge preview configuration (instant preview deploys, bypasses CI)
	EdgeEndpoint string `mapstructure:"EDGE_ENDPOINT"`
	EdgeToken    string `mapstructure:"EDGE_TOKEN"`

	// Platform URL derivation
	BaseDomain string `mapstructure:"BASE_DOMAIN"`

	// Deployment policy
	BundleSizeCeilingBytes int64         `mapstructure:"BUNDLE_SIZE_CEILING_BYTES"`
	BundleSizeMarginBytes  int64         `mapstructure:"BUNDLE_SIZE_MARGIN_BYTES"`
	DeployTimeout          time.Duration `mapstructure:"DEPLOY_TIMEOUT"`
	BuildMaxWait           time.Duration `mapstructure:"BUILD_MAX_WAIT"`
	PollInterval           time.Duration `mapstructure:"POLL_INTERVAL"`
	LockTTL                time.Duration `mapstructure:"LOCK_TTL"`
	MaxRetries             uint64        `mapstructure:"MAX_RETRIES"`
	WorkerCount            int           `mapstructure:"WORKER_COUNT"`

	// Feature flags disabled per app (flag name -> app ids), plus global switches
	DisabledFlags map[string][]string `mapstructure:"DISABLED_FLAGS"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.DatabaseURL == "" {
		config.DatabaseURL = buildDatabaseURL(&config)
	}

	// Validate required fields
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("PORT", "7010")
	viper.SetDefault("LOG_LEVEL", "info")

	// Database defaults
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "deploy_orchestrator")
	viper.SetDefault("DB_SSL_MODE", "disable")

	// Redis defaults
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_USERNAME", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	// JWT defaults
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")

	// CORS defaults
	viper.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"})

	// GitHub defaults
	viper.SetDefault("GITHUB_TOKEN", "")
	viper.SetDefault("GITHUB_OWNER", "")
	viper.SetDefault("GITHUB_REPO_BASE", "app")
	viper.SetDefault("WORKFLOW_FILE", "deploy.yml")
	viper.SetDefault("DEFAULT_BRANCH", "main")

	// Edge preview defaults
	viper.SetDefault("EDGE_ENDPOINT", "")
	viper.SetDefault("EDGE_TOKEN", "")

	// URL derivation
	viper.SetDefault("BASE_DOMAIN", "example.dev")

	// Deployment policy defaults: 10 MB ceiling with a 0.5 MB safety margin,
	// 10 minute wall-clock budget, 20s CI poll, 10 minute lock TTL.
	viper.SetDefault("BUNDLE_SIZE_CEILING_BYTES", int64(10*1024*1024))
	viper.SetDefault("BUNDLE_SIZE_MARGIN_BYTES", int64(512*1024))
	viper.SetDefault("DEPLOY_TIMEOUT", 10*time.Minute)
	viper.SetDefault("BUILD_MAX_WAIT", 5*time.Minute)
	viper.SetDefault("POLL_INTERVAL", 20*time.Second)
	viper.SetDefault("LOCK_TTL", 10*time.Minute)
	viper.SetDefault("MAX_RETRIES", 2)
	viper.SetDefault("WORKER_COUNT", 8)

	viper.SetDefault("DISABLED_FLAGS", map[string][]string{})
}

func buildDatabaseURL(config *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		config.DatabaseUser,
		config.DatabasePassword,
		config.DatabaseHost,
		config.DatabasePort,
		config.DatabaseName,
		config.DatabaseSSLMode,
	)
}

func validate(config *Config) error {
	if config.Environment == "production" {
		if config.JWTSecret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	if config.DatabaseName == "" {
		return fmt.Errorf("database name is required")
	}

	if config.BundleSizeMarginBytes >= config.BundleSizeCeilingBytes {
		return fmt.Errorf("bundle size margin must be smaller than the ceiling")
	}

	if config.PollInterval <= 0 || config.DeployTimeout <= 0 || config.LockTTL <= 0 {
		return fmt.Errorf("poll interval, deploy timeout and lock TTL must be positive")
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
