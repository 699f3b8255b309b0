/*
Package config loads server settings.

SOURCES (later wins):
  1. Built-in defaults (applyDefaults)
  2. config.toml in ".", "./config" or "/etc/solarpay"
  3. SOLARPAY_* environment variables, e.g. SOLARPAY_DATABASE_PATH,
     SOLARPAY_REDIS_ENABLED, SOLARPAY_SCHEDULER_INTERVAL

cmd/server loads a .env file into the environment before calling Load, so
local overrides live there.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Notify    NotifyConfig
	Scheduler SchedulerConfig
	Log       LogConfig
	CORS      CORSConfig

	// Currency is the default for accounts that do not name one.
	Currency string
}

type AppConfig struct {
	Env  string
	Port string
}

type DatabaseConfig struct {
	Path string // file path or ":memory:"
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type NotifyConfig struct {
	DedupTTL time.Duration
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration. Extra search paths are tried before the
// defaults; a missing config file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/solarpay")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SOLARPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// bools need a registered default so an unset key reads as the default
	// rather than false
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("redis.enabled", false)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		Notify: NotifyConfig{
			DedupTTL: v.GetDuration("notify.dedup_ttl"),
		},
		Scheduler: SchedulerConfig{
			Enabled:  v.GetBool("scheduler.enabled"),
			Interval: v.GetDuration("scheduler.interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
		},
		Currency: v.GetString("currency"),
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "solarpay.db"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "solarpay:overdue:"
	}
	if cfg.Notify.DedupTTL == 0 {
		cfg.Notify.DedupTTL = 30 * 24 * time.Hour
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Currency == "" {
		cfg.Currency = "PHP"
	}
}

func (c *Config) validate() error {
	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler.interval cannot be negative")
	}
	if c.Notify.DedupTTL < 0 {
		return fmt.Errorf("notify.dedup_ttl cannot be negative")
	}
	switch strings.ToUpper(c.Currency) {
	case "PHP", "USD":
		c.Currency = strings.ToUpper(c.Currency)
	default:
		return fmt.Errorf("currency must be PHP or USD, got %q", c.Currency)
	}
	return nil
}

// splitList accepts both a TOML array and a comma separated env value.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// IsProduction reports whether app.env is "production".
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.App.Port
}
