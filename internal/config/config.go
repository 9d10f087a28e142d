package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultMaxUploadBytes is the 10 MiB cap shared by the relay and the client.
const DefaultMaxUploadBytes = 10 << 20

// Config holds all configuration for the labubify relay.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Replicate ReplicateConfig
	Poll      PollConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	MaxUploadBytes  int64
	RateLimitPerMin int
	// AdminTokenHash is the bcrypt hash guarding the history endpoints.
	AdminTokenHash string
	// TrustedProxies are the peers whose X-Forwarded-For header is honored.
	TrustedProxies []netip.Prefix
}

// DatabaseConfig is optional; an empty URL disables transformation history.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL disables status caching and rate limiting.
type RedisConfig struct {
	URL string
}

type ReplicateConfig struct {
	APIToken string
	BaseURL  string
	Version  string
	Timeout  time.Duration
}

type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first, without overriding
// variables that are already set.
//
// A missing REPLICATE_API_TOKEN is not a load error: the relay reports it on
// every transform request so the server can still answer health checks.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("LABUBIFY_PORT", 8080),
			Env:             envString("LABUBIFY_ENV", "development"),
			MaxUploadBytes:  int64(envInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MINUTE", 10),
			AdminTokenHash:  os.Getenv("ADMIN_TOKEN_HASH"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Replicate: ReplicateConfig{
			APIToken: strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN")),
			BaseURL:  strings.TrimRight(envString("REPLICATE_BASE_URL", "https://api.replicate.com"), "/"),
			Version:  envString("REPLICATE_MODEL_VERSION", "ac732df83cea7fff18b8472768c88ad041fa750ff7682a21affe81863cbe77e4"),
			Timeout:  envDuration("REPLICATE_TIMEOUT", 30*time.Second),
		},
		Poll: PollConfig{
			Interval:    envDuration("POLL_INTERVAL", 2*time.Second),
			MaxAttempts: envInt("POLL_MAX_ATTEMPTS", 150),
		},
	}

	trusted, err := parseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}
	cfg.Server.TrustedProxies = trusted

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseTrustedProxies reads a comma-separated list of CIDRs or bare IPs.
func parseTrustedProxies(v string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, field := range strings.Split(v, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.Contains(field, "/") {
			p, err := netip.ParsePrefix(field)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES entry %q: %w", field, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(field)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q: %w", field, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("LABUBIFY_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}

	if !strings.HasPrefix(c.Replicate.BaseURL, "http://") && !strings.HasPrefix(c.Replicate.BaseURL, "https://") {
		return fmt.Errorf("REPLICATE_BASE_URL must start with http:// or https://, got %q", c.Replicate.BaseURL)
	}
	if c.Replicate.Version == "" {
		return fmt.Errorf("REPLICATE_MODEL_VERSION must not be empty")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", c.Poll.MaxAttempts)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
