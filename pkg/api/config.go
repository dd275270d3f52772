package api

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/0xmhha/wallet-activity/internal/constants"
)

// Config holds HTTP server settings
type Config struct {
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int

	EnableCORS     bool
	AllowedOrigins []string

	EnableRateLimit    bool
	RateLimitPerSecond float64
	RateLimitBurst     int

	// APIKeys guard cache invalidation; empty leaves it open
	APIKeys []string
}

// DefaultConfig returns a server config with default timeouts
func DefaultConfig() *Config {
	return &Config{
		Host:               constants.DefaultAPIHost,
		Port:               constants.DefaultAPIPort,
		ReadTimeout:        constants.DefaultReadTimeout,
		WriteTimeout:       constants.DefaultWriteTimeout,
		IdleTimeout:        constants.DefaultIdleTimeout,
		ShutdownTimeout:    constants.DefaultShutdownTimeout,
		MaxHeaderBytes:     constants.DefaultMaxHeaderBytes,
		AllowedOrigins:     []string{"*"},
		RateLimitPerSecond: constants.DefaultRateLimitPerSecond,
		RateLimitBurst:     constants.DefaultRateLimitBurst,
	}
}

// Validate checks the config
func (c *Config) Validate() error {
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.EnableRateLimit {
		if c.RateLimitPerSecond <= 0 {
			return fmt.Errorf("rate limit must be positive, got %v", c.RateLimitPerSecond)
		}
		if c.RateLimitBurst <= 0 {
			return fmt.Errorf("rate limit burst must be positive, got %d", c.RateLimitBurst)
		}
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// Address returns host:port
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
