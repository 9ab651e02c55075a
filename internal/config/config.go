package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string // json | console

	// DBDriver is empty when finished games are not archived.
	DBDriver    string
	DatabaseURL string

	WSRateLimit      float64 // events per second per connection
	WSRateBurst      int
	WSAllowedOrigins []string
	OutboxSize       int
	ReadTimeout      time.Duration

	MetricsEnabled bool
}

// Load reads the environment, after merging in a .env file when one exists.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}

	var errs error
	cfg := Config{
		Addr:             envString("ADDR", ":8080"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		LogFormat:        envString("LOG_FORMAT", "json"),
		DBDriver:         envString("DB_DRIVER", ""),
		DatabaseURL:      envString("DATABASE_URL", ""),
		WSAllowedOrigins: envList("WS_ALLOWED_ORIGINS"),
	}
	cfg.WSRateLimit = parse(&errs, "WS_RATE_LIMIT", 10, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
	cfg.WSRateBurst = parse(&errs, "WS_RATE_BURST", 20, strconv.Atoi)
	cfg.OutboxSize = parse(&errs, "OUTBOX_SIZE", 16, strconv.Atoi)
	cfg.ReadTimeout = parse(&errs, "READ_TIMEOUT", 5*time.Minute, time.ParseDuration)
	cfg.MetricsEnabled = parse(&errs, "METRICS_ENABLED", true, strconv.ParseBool)

	switch cfg.LogFormat {
	case "json", "console":
	default:
		errs = multierr.Append(errs, fmt.Errorf("LOG_FORMAT: unknown format %q", cfg.LogFormat))
	}
	switch cfg.DBDriver {
	case "":
	case "postgres", "sqlite":
		if cfg.DatabaseURL == "" {
			errs = multierr.Append(errs, fmt.Errorf("DATABASE_URL: required with DB_DRIVER=%s", cfg.DBDriver))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("DB_DRIVER: unknown driver %q", cfg.DBDriver))
	}
	if cfg.WSRateLimit <= 0 || cfg.WSRateBurst <= 0 {
		errs = multierr.Append(errs, errors.New("WS_RATE_LIMIT and WS_RATE_BURST must be positive"))
	}
	if cfg.OutboxSize <= 0 {
		errs = multierr.Append(errs, errors.New("OUTBOX_SIZE must be positive"))
	}

	if errs != nil {
		return Config{}, fmt.Errorf("config: %w", errs)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parse[T any](errs *error, key string, def T, fn func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := fn(raw)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
