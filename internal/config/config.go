package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	SessionDriverDatabase = "database"
	SessionDriverRedis    = "redis"
	SessionDriverMemory   = "memory"
)

type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTP     struct {
		Addr         string        `mapstructure:"addr"`
		MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
		CORSOrigins  []string      `mapstructure:"cors_origins"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`
	Database struct {
		URL          string        `mapstructure:"url"`
		MaxOpenConns int           `mapstructure:"max_open_conns"`
		MaxIdleConns int           `mapstructure:"max_idle_conns"`
		MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Session struct {
		Driver   string        `mapstructure:"driver"`
		Lifetime time.Duration `mapstructure:"lifetime"`
		Cookie   string        `mapstructure:"cookie"`
		Domain   string        `mapstructure:"domain"`
		Secure   bool          `mapstructure:"secure"`
	} `mapstructure:"session"`
	Token struct {
		TTL         time.Duration `mapstructure:"ttl"`
		RememberTTL time.Duration `mapstructure:"remember_ttl"`
	} `mapstructure:"token"`
	Login struct {
		RateBurst   int           `mapstructure:"rate_burst"`
		RatePerSec  int           `mapstructure:"rate_per_sec"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		Decay       time.Duration `mapstructure:"decay"`
	} `mapstructure:"login"`
	AppKey     string `mapstructure:"app_key"`
	StorageURL string `mapstructure:"storage_url"`
}

var bindings = map[string]string{
	"env":                     "APP_ENV",
	"log_level":               "LOG_LEVEL",
	"app_key":                 "APP_KEY",
	"storage_url":             "STORAGE_URL",
	"http.addr":               "HTTP_ADDR",
	"http.max_body_bytes":     "HTTP_MAX_BODY_BYTES",
	"http.cors_origins":       "CORS_ORIGINS",
	"http.read_timeout":       "HTTP_READ_TIMEOUT",
	"http.write_timeout":      "HTTP_WRITE_TIMEOUT",
	"database.url":            "DATABASE_URL",
	"database.max_open_conns": "DB_MAX_OPEN_CONNS",
	"database.max_idle_conns": "DB_MAX_IDLE_CONNS",
	"database.max_lifetime":   "DB_MAX_LIFETIME",
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"session.driver":          "SESSION_DRIVER",
	"session.lifetime":        "SESSION_LIFETIME",
	"session.cookie":          "SESSION_COOKIE",
	"session.domain":          "SESSION_DOMAIN",
	"session.secure":          "SESSION_SECURE_COOKIE",
	"token.ttl":               "TOKEN_TTL",
	"token.remember_ttl":      "TOKEN_REMEMBER_TTL",
	"login.rate_burst":        "LOGIN_RATE_BURST",
	"login.rate_per_sec":      "LOGIN_RATE_PER_SEC",
	"login.max_attempts":      "LOGIN_MAX_ATTEMPTS",
	"login.decay":             "LOGIN_DECAY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_lifetime", 30*time.Minute)
	v.SetDefault("session.driver", SessionDriverDatabase)
	v.SetDefault("session.lifetime", 120*time.Minute)
	v.SetDefault("session.cookie", "schooladmin_session")
	v.SetDefault("session.secure", true)
	v.SetDefault("token.ttl", 30*24*time.Hour)
	v.SetDefault("token.remember_ttl", 90*24*time.Hour)
	v.SetDefault("login.rate_burst", 10)
	v.SetDefault("login.rate_per_sec", 2)
	v.SetDefault("login.max_attempts", 5)
	v.SetDefault("login.decay", time.Minute)
}

// Load reads an optional dotenv file, then the process environment.
// Variables already present in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.HTTP.CORSOrigins = splitList(c.HTTP.CORSOrigins)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks invariants that defaults cannot guarantee.
func (c Config) Validate() error {
	var problems []string
	if len(c.AppKey) < 32 {
		problems = append(problems, "APP_KEY must be at least 32 characters")
	}
	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	switch c.Session.Driver {
	case SessionDriverDatabase, SessionDriverMemory:
	case SessionDriverRedis:
		if c.Redis.Addr == "" {
			problems = append(problems, "REDIS_ADDR is required for the redis session driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown SESSION_DRIVER %q", c.Session.Driver))
	}
	if c.Session.Lifetime <= 0 {
		problems = append(problems, "SESSION_LIFETIME must be positive")
	}
	if c.Token.TTL <= 0 || c.Token.RememberTTL < c.Token.TTL {
		problems = append(problems, "TOKEN_REMEMBER_TTL must be at least TOKEN_TTL")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Production reports whether the service runs with production logging.
func (c Config) Production() bool {
	return c.Env == "" || c.Env == "production"
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
