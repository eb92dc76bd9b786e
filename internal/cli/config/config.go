// Package config loads the CLI configuration from sforce.yml and the
// environment
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the sforce CLI configuration
type Config struct {
	LoginURL   string      `mapstructure:"login_url"`
	APIVersion string      `mapstructure:"api_version"`
	Auth       AuthConfig  `mapstructure:"auth"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// AuthConfig represents JWT bearer flow credentials
type AuthConfig struct {
	ClientID   string `mapstructure:"client_id"`
	Username   string `mapstructure:"username"`
	PrivateKey string `mapstructure:"private_key"`
}

// RedisConfig represents the optional shared token store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// Load loads the configuration from sforce.yml or sforce.yaml
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("login_url", "https://login.salesforce.com")
	v.SetDefault("api_version", "59.0")
	v.SetDefault("redis.key", "sforce:token")

	v.SetConfigName("sforce")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "sforce"))
	}

	v.SetEnvPrefix("SFORCE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// Validate checks that the credentials needed for the JWT bearer flow are set
func (c *Config) Validate() error {
	if c.Auth.ClientID == "" {
		return fmt.Errorf("auth.client_id is required")
	}
	if c.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if c.Auth.PrivateKey == "" {
		return fmt.Errorf("auth.private_key is required")
	}
	if _, err := os.Stat(c.Auth.PrivateKey); err != nil {
		return fmt.Errorf("auth.private_key: %w", err)
	}
	return nil
}
