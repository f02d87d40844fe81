// Package config loads podnotes settings from an optional YAML file and
// PODNOTES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PODNOTES_POD_URL.
const EnvPrefix = "PODNOTES"

// Config holds the application configuration.
type Config struct {
	Account AccountConfig `mapstructure:"account"`
	Pod     PodConfig     `mapstructure:"pod"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Session SessionConfig `mapstructure:"session"`
	List    ListConfig    `mapstructure:"list"`
	Retry   RetryConfig   `mapstructure:"retry"`
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`
}

// AccountConfig identifies the Solid account.
type AccountConfig struct {
	Username string `mapstructure:"username" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	URL      string `mapstructure:"url"      validate:"required,url"`
}

// PodConfig locates the notes container.
type PodConfig struct {
	URL            string `mapstructure:"url"             validate:"required,url"`
	Container      string `mapstructure:"container"       validate:"required"`
	TokenURL       string `mapstructure:"token_url"       validate:"omitempty,url"`
	DeleteStatuses []int  `mapstructure:"delete_statuses" validate:"dive,gte=200,lte=299"`
	WriteStatuses  []int  `mapstructure:"write_statuses"  validate:"dive,gte=200,lte=299"`
}

// HTTPConfig tunes the HTTP client shared by the account and notes calls.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SessionConfig controls access-token caching. Skew is how long before
// expiry a cached token is replaced.
type SessionConfig struct {
	Cache bool          `mapstructure:"cache"`
	Skew  time.Duration `mapstructure:"skew" validate:"gte=0"`
}

// ListConfig bounds how many note resources are fetched in parallel.
type ListConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gte=1,lte=64"`
}

// RetryConfig controls backoff around token acquisition. One attempt means
// no retry.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"  validate:"gte=1,lte=10"`
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gte=0"`
}

// APIConfig configures the HTTP API served by "podnotes serve".
type APIConfig struct {
	Listen         string   `mapstructure:"listen"          validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins" validate:"dive,url"`
}

// LogConfig sets the slog level.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns a configuration with sensible defaults. Account and
// pod locations have no default.
func DefaultConfig() *Config {
	return &Config{
		Pod: PodConfig{
			Container:      "notes/",
			DeleteStatuses: []int{200, 202, 204, 205},
			WriteStatuses:  []int{201, 205},
		},
		HTTP:    HTTPConfig{Timeout: 30 * time.Second},
		Session: SessionConfig{Cache: true, Skew: 30 * time.Second},
		List:    ListConfig{Concurrency: 4},
		Retry:   RetryConfig{MaxAttempts: 1, InitialDelay: 200 * time.Millisecond},
		API: APIConfig{
			Listen:         "127.0.0.1:8000",
			AllowedOrigins: []string{"http://localhost:8080", "http://localhost:5173"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (optional) and the environment over the defaults and
// validates the result.
func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("podnotes")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()
	setDefaults(vip, DefaultConfig())

	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(vip *viper.Viper, d *Config) {
	vip.SetDefault("account.username", "")
	vip.SetDefault("account.password", "")
	vip.SetDefault("account.url", "")
	vip.SetDefault("pod.url", "")
	vip.SetDefault("pod.container", d.Pod.Container)
	vip.SetDefault("pod.token_url", "")
	vip.SetDefault("pod.delete_statuses", d.Pod.DeleteStatuses)
	vip.SetDefault("pod.write_statuses", d.Pod.WriteStatuses)
	vip.SetDefault("http.timeout", d.HTTP.Timeout)
	vip.SetDefault("session.cache", d.Session.Cache)
	vip.SetDefault("session.skew", d.Session.Skew)
	vip.SetDefault("list.concurrency", d.List.Concurrency)
	vip.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	vip.SetDefault("retry.initial_delay", d.Retry.InitialDelay)
	vip.SetDefault("api.listen", d.API.Listen)
	vip.SetDefault("api.allowed_origins", d.API.AllowedOrigins)
	vip.SetDefault("log.level", d.Log.Level)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if !strings.HasSuffix(c.Pod.URL, "/") {
		return fmt.Errorf("config validation failed: pod.url %q must end with /", c.Pod.URL)
	}
	return nil
}

// SlogLevel maps log.level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
