package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minProdSecret = 32

// JWT holds token signing settings.
type JWT struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Rotate     bool
}

// RateLimit configures the per-IP limiter on credential endpoints.
type RateLimit struct {
	Burst     int
	PerSecond float64
}

// Log configures the zap logger.
type Log struct {
	Level string
	Dev   bool
}

// Config is read once at startup and never mutated.
type Config struct {
	HTTPAddr     string
	GRPCAddr     string
	DatabaseURL  string
	RedisURL     string
	JWT          JWT
	RateLimit    RateLimit
	Log          Log
	MaxBodyBytes int64
	Dev          bool

	// PurgeSchedule is a cron expression for dropping expired blacklist rows.
	PurgeSchedule string
	// TrustedProxies are the peers allowed to set X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// Load reads the environment. A .env file in the working directory is applied
// first when present; real environment variables win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		HTTPAddr:    e.str("HTTP_ADDR", ":8080"),
		GRPCAddr:    e.str("GRPC_ADDR", ":9090"),
		DatabaseURL: e.str("DATABASE_URL", ""),
		RedisURL:    e.str("REDIS_URL", ""),
		JWT: JWT{
			Secret:     e.str("JWT_SECRET", ""),
			Issuer:     e.str("JWT_ISSUER", "campuslink"),
			AccessTTL:  e.duration("JWT_ACCESS_TTL", 60*time.Minute),
			RefreshTTL: e.duration("JWT_REFRESH_TTL", 7*24*time.Hour),
			Rotate:     e.boolean("JWT_ROTATE_REFRESH", true),
		},
		RateLimit: RateLimit{
			Burst:     e.integer("RATE_LIMIT_BURST", 5),
			PerSecond: e.float("RATE_LIMIT_PER_SECOND", 0.2),
		},
		Log: Log{
			Level: e.str("LOG_LEVEL", "info"),
			Dev:   e.boolean("LOG_DEV", false),
		},
		MaxBodyBytes:   int64(e.integer("MAX_BODY_BYTES", 1<<20)),
		PurgeSchedule:  e.str("BLACKLIST_PURGE_SCHEDULE", "@hourly"),
		TrustedProxies: e.prefixes("TRUSTED_PROXIES"),
		Dev:            e.str("APP_ENV", "production") == "dev",
	}
	if err := e.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise fail later at runtime.
func (c Config) Validate() error {
	var problems []string
	secret := strings.TrimSpace(c.JWT.Secret)
	switch {
	case secret == "":
		problems = append(problems, "JWT_SECRET is required")
	case !c.Dev && len(secret) < minProdSecret:
		problems = append(problems, fmt.Sprintf("JWT_SECRET must be at least %d bytes outside dev", minProdSecret))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		problems = append(problems, "token lifetimes must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		problems = append(problems, "JWT_REFRESH_TTL must not be shorter than JWT_ACCESS_TTL")
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		problems = append(problems, "rate limit must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		problems = append(problems, "MAX_BODY_BYTES must be positive")
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

type env struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.get(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

// prefixes parses a comma separated list of CIDRs or bare addresses.
func (e *env) prefixes(key string) []netip.Prefix {
	v, ok := e.get(key)
	if !ok {
		return nil
	}
	var out []netip.Prefix
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
				continue
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func (e *env) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(e.errs, "; "))
}
