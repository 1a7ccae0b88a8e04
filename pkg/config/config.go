// Package config loads exporter settings from .env files, a YAML config file,
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides, e.g. SLACK_EXPORT_RATE_LIMIT.
const EnvPrefix = "SLACK_EXPORT"

// TokenEnv is the bare token variable, accepted alongside the prefixed form.
const TokenEnv = "SLACK_BOT_TOKEN"

// DefaultAPIURL is the public Slack Web API.
const DefaultAPIURL = "https://slack.com/api/"

// DateLayout is the format of timeframe bounds.
const DateLayout = "2006-01-02"

// Config holds all exporter settings.
type Config struct {
	SlackBotToken     string        `mapstructure:"slack_bot_token" yaml:"slack_bot_token"`
	APIURL            string        `mapstructure:"api_url" yaml:"api_url"`
	RateLimit         int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	WaitTime          int           `mapstructure:"wait_time" yaml:"wait_time"`
	RetryDelay        int           `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	PageSize          int           `mapstructure:"page_size" yaml:"page_size"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	DataFolder        string        `mapstructure:"data_folder" yaml:"data_folder"`
	UsersFile         string        `mapstructure:"users_file" yaml:"users_file"`
	ConversationTypes string        `mapstructure:"conversation_types" yaml:"conversation_types"`
	Timeframe         Timeframe     `mapstructure:"timeframe" yaml:"timeframe"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	Log               LogConfig     `mapstructure:"log" yaml:"log"`
	Redis             RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Metrics           MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Keyring           KeyringConfig `mapstructure:"keyring" yaml:"keyring"`
}

// Timeframe bounds exported messages by date. Both ends are inclusive.
type Timeframe struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
	File   string `mapstructure:"file" yaml:"file"`
}

// RedisConfig holds the optional shared state settings.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	KeyPrefix    string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	UserCacheTTL time.Duration `mapstructure:"user_cache_ttl" yaml:"user_cache_ttl"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// KeyringConfig controls the OS keyring token fallback.
type KeyringConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SetDefaults registers every option and its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("slack_bot_token", "")
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("rate_limit", 80)
	v.SetDefault("wait_time", 10)
	v.SetDefault("retry_delay", 5)
	v.SetDefault("max_attempts", 0)
	v.SetDefault("page_size", 200)
	v.SetDefault("concurrency", 4)
	v.SetDefault("data_folder", "slack_export")
	v.SetDefault("users_file", "slack_users_list.csv")
	v.SetDefault("conversation_types", "public_channel,private_channel,mpim,im")
	v.SetDefault("timeframe.from", "")
	v.SetDefault("timeframe.to", "")
	v.SetDefault("timezone", "Local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.key_prefix", "")
	v.SetDefault("redis.user_cache_ttl", 24*time.Hour)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("keyring.enabled", false)
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("slack_bot_token", EnvPrefix+"_SLACK_BOT_TOKEN", TokenEnv)

	return v
}

// LoadDotEnv loads the given .env files. Missing files are skipped and
// variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// ReadFile reads the YAML config file into v. An empty path searches the
// working directory for slack-export.yaml and tolerates its absence.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("slack-export")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates the effective configuration.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads .env, the config file and the environment, in that order of
// increasing precedence. Flags bound to v beforehand take precedence over all.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks option ranges and parses the timezone and timeframe.
func (c *Config) Validate() error {
	switch {
	case c.RateLimit <= 0:
		return fmt.Errorf("rate_limit must be positive, got %d", c.RateLimit)
	case c.WaitTime <= 0:
		return fmt.Errorf("wait_time must be positive, got %d", c.WaitTime)
	case c.RetryDelay < 0:
		return fmt.Errorf("retry_delay must not be negative, got %d", c.RetryDelay)
	case c.MaxAttempts < 0:
		return fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts)
	case c.PageSize <= 0 || c.PageSize > 1000:
		return fmt.Errorf("page_size must be between 1 and 1000, got %d", c.PageSize)
	case c.Concurrency <= 0:
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if len(c.Types()) == 0 {
		return errors.New("conversation_types must not be empty")
	}
	if _, _, err := c.Window(); err != nil {
		return err
	}
	return nil
}

// Types splits conversation_types.
func (c *Config) Types() []string {
	var types []string
	for _, t := range strings.Split(c.ConversationTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// Location resolves the timezone. "Local" and "" mean the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Window returns the message time range. A zero bound is open. The upper
// bound is the start of the day after To.
func (c *Config) Window() (oldest, latest time.Time, err error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if c.Timeframe.From != "" {
		if oldest, err = time.ParseInLocation(DateLayout, c.Timeframe.From, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("timeframe.from: %w", err)
		}
	}
	if c.Timeframe.To != "" {
		to, err := time.ParseInLocation(DateLayout, c.Timeframe.To, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("timeframe.to: %w", err)
		}
		latest = to.AddDate(0, 0, 1)
	}
	if !oldest.IsZero() && !latest.IsZero() && !oldest.Before(latest) {
		return time.Time{}, time.Time{}, fmt.Errorf("timeframe.from %s is after timeframe.to %s", c.Timeframe.From, c.Timeframe.To)
	}
	return oldest, latest, nil
}

// Wait is wait_time as a duration.
func (c *Config) Wait() time.Duration {
	return time.Duration(c.WaitTime) * time.Second
}

// Delay is retry_delay as a duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}
