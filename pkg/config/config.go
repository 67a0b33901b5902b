// Package config loads service configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	LogFormat    string `mapstructure:"LOG_FORMAT"`
	// ContributionTarget is the expected monthly contribution per active
	// member, used by the dashboard summary.
	ContributionTarget float64 `mapstructure:"CONTRIBUTION_TARGET"`
}

// Load reads configuration from the environment. A .env file in path is
// merged in if present; real environment variables take precedence.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // best effort, env vars may already be set

	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DATABASE_PATH", "fundbook.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "console")
	viper.SetDefault("CONTRIBUTION_TARGET", 500.0)

	for _, key := range []string{"SERVER_PORT", "DATABASE_PATH", "LOG_LEVEL", "LOG_FORMAT", "CONTRIBUTION_TARGET"} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ContributionTarget < 0 {
		return Config{}, fmt.Errorf("CONTRIBUTION_TARGET must not be negative, got %v", cfg.ContributionTarget)
	}

	return cfg, nil
}
