package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	Log       LogConfig
	RateLimit RateLimitConfig

	DefaultDepth           int
	MaxDepth               int
	MetricsMaxLatencies    int
	RequestLoggingDisabled bool
	TradingHalted          bool
	MaxConcurrentRequests  int
}

type LogConfig struct {
	Level  string
	File   string
	Format string
}

type RateLimitConfig struct {
	Disabled bool
	Max      int
	Window   time.Duration
}

var defaults = map[string]any{
	"port":                     "8080",
	"shutdown_timeout":         "10s",
	"log_level":                "info",
	"log_file":                 "",
	"log_format":               "json",
	"rate_limit_disabled":      false,
	"rate_limit_max":           100,
	"rate_limit_window":        "1s",
	"orderbook_default_depth":  10,
	"orderbook_max_depth":      1000,
	"metrics_max_latencies":    10000,
	"request_logging_disabled": false,
	"trading_halted":           false,
	"max_concurrent_requests":  0,
}

// Load reads configuration from the environment and an optional
// orderbook.yaml in the working directory. Keys map to upper-case
// environment variables, e.g. rate_limit_max -> RATE_LIMIT_MAX.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("orderbook")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}
	return FromViper(v), nil
}

// FromViper builds a Config from v, falling back to defaults for missing or
// unusable values.
func FromViper(v *viper.Viper) Config {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Port:            v.GetString("port"),
		ShutdownTimeout: positiveDuration(v, "shutdown_timeout"),
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			File:   v.GetString("log_file"),
			Format: v.GetString("log_format"),
		},
		RateLimit: RateLimitConfig{
			Disabled: v.GetBool("rate_limit_disabled"),
			Max:      positiveInt(v, "rate_limit_max"),
			Window:   positiveDuration(v, "rate_limit_window"),
		},
		DefaultDepth:           positiveInt(v, "orderbook_default_depth"),
		MaxDepth:               positiveInt(v, "orderbook_max_depth"),
		MetricsMaxLatencies:    positiveInt(v, "metrics_max_latencies"),
		RequestLoggingDisabled: v.GetBool("request_logging_disabled"),
		TradingHalted:          v.GetBool("trading_halted"),
		MaxConcurrentRequests:  max(v.GetInt("max_concurrent_requests"), 0),
	}

	if cfg.Port == "" {
		cfg.Port = defaults["port"].(string)
	}
	// edge case: default depth larger than the cap would be silently clipped
	if cfg.DefaultDepth > cfg.MaxDepth {
		cfg.DefaultDepth = cfg.MaxDepth
	}
	return cfg
}

func positiveInt(v *viper.Viper, key string) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return defaults[key].(int)
}

func positiveDuration(v *viper.Viper, key string) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	d, _ := time.ParseDuration(defaults[key].(string))
	return d
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
