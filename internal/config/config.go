// Package config loads adpilot's configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Meta   MetaConfig   `mapstructure:"meta"`
	Server ServerConfig `mapstructure:"server"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// MetaConfig holds the Marketing API credentials and tuning.
type MetaConfig struct {
	AccessToken       string        `mapstructure:"access_token"`
	AdAccountID       string        `mapstructure:"ad_account_id"`
	APIVersion        string        `mapstructure:"api_version"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// Load reads configuration from the given file, if any, with ADPILOT_
// environment variables taking precedence (ADPILOT_META_ACCESS_TOKEN maps
// to meta.access_token). A missing file is fine when env vars cover the
// required keys.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.log_level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("meta.timeout", 30*time.Second)
	v.SetDefault("meta.requests_per_second", 5.0)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("adpilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/adpilot")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	// AutomaticEnv does not surface keys through Unmarshal unless they are
	// bound, so bind the known keys explicitly.
	for _, key := range []string{
		"app.log_level",
		"meta.access_token", "meta.ad_account_id", "meta.api_version",
		"meta.base_url", "meta.timeout", "meta.requests_per_second",
		"server.port", "server.api_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	return &cfg, nil
}

// ValidateMeta checks the keys every platform-touching command needs.
func (c *Config) ValidateMeta() error {
	if c.Meta.AccessToken == "" {
		return fmt.Errorf("meta.access_token is required")
	}
	if c.Meta.AdAccountID == "" {
		return fmt.Errorf("meta.ad_account_id is required")
	}
	return nil
}
