// Package config loads runtime configuration from environment variables.
//
// cleanenv reads the `env` struct tags, applies `env-default` values and
// fails fast on `env-required` fields that are missing. Everything the
// server needs lives in one Config value that main.go passes down.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	_ cleanenv.Setter = (*Duration)(nil)
	_ cleanenv.Setter = (*Level)(nil)
)

// Duration parses "10s", "5m" or a bare number of seconds ("10" -> 10s).
type Duration time.Duration

// SetValue implements cleanenv.Setter.
func (d *Duration) SetValue(data string) error {
	v, err := parseDuration(data)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(s string) (time.Duration, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration must be like 10s, 5m or a number of seconds: %w", err)
	}
	return d, nil
}

// Level is a slog level read from LOG_LEVEL ("debug", "info", "warn", "error").
type Level slog.Level

// SetValue implements cleanenv.Setter.
func (l *Level) SetValue(data string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(data))); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	*l = Level(lvl)
	return nil
}

func (l Level) Level() slog.Level { return slog.Level(l) }

type Config struct {
	HTTP     HTTPConfig
	DB       DBConfig
	Media    MediaConfig
	Auth     AuthConfig
	GitHub   GitHubConfig
	Timeline TimelineConfig
	LogLevel Level `env:"LOG_LEVEL" env-default:"info"`
}

type HTTPConfig struct {
	Port         int      `env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout  Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout  Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	// Comma separated; empty disables CORS headers entirely.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:""`
}

type DBConfig struct {
	Path string `env:"DB_PATH" env-default:"data/chirp.db"`
}

type MediaConfig struct {
	Dir string `env:"MEDIA_DIR" env-default:"data/media"`
	// Upper bound for a multipart upload, in bytes.
	MaxUpload int64 `env:"MEDIA_MAX_UPLOAD" env-default:"5242880"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" env-required:"true"`
	// Secure marks the session cookie Secure; turn off only for plain-http local runs.
	SecureCookie bool `env:"COOKIE_SECURE" env-default:"false"`
}

type GitHubConfig struct {
	ClientID     string `env:"GITHUB_CLIENT_ID"`
	ClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	CallbackURL  string `env:"GITHUB_CALLBACK_URL"`
}

// Enabled reports whether GitHub login should be registered.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type TimelineConfig struct {
	PageSize int `env:"TIMELINE_PAGE_SIZE" env-default:"5"`
}

// Load reads the environment into a Config and fills derived defaults.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Timeline.PageSize <= 0 {
		return Config{}, fmt.Errorf("TIMELINE_PAGE_SIZE must be positive, got %d", cfg.Timeline.PageSize)
	}
	if cfg.GitHub.Enabled() && cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.HTTP.Port)
	}
	cfg.HTTP.AllowedOrigins = compact(cfg.HTTP.AllowedOrigins)
	return cfg, nil
}

// compact drops blank entries left by an empty or trailing-comma separator list.
func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
