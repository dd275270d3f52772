package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/wallet-activity/internal/constants"
)

// Config holds all configuration for the activity service
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Contract ContractConfig `yaml:"contract"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Retry    RetryConfig    `yaml:"retry"`
	API      APIConfig      `yaml:"api"`
	Price    PriceConfig    `yaml:"price"`
	Log      LogConfig      `yaml:"log"`
}

// RPCConfig holds chain node client configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// RequestsPerSecond paces outbound calls; 0 disables pacing
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ContractConfig holds wallet contract settings
type ContractConfig struct {
	// WarmWallets are refreshed once at startup
	WarmWallets []string `yaml:"warm_wallets"`
}

// DatabaseConfig holds durable storage configuration
type DatabaseConfig struct {
	// Backend is one of "pebble", "redis", "memory"
	Backend  string      `yaml:"backend"`
	Path     string      `yaml:"path"`
	ReadOnly bool        `yaml:"readonly"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis backend configuration
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CacheConfig holds activity cache configuration
type CacheConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	LookbackBlocks uint64        `yaml:"lookback_blocks"`
	Key            string        `yaml:"key"`
	TokenKey       string        `yaml:"token_key"`
}

// RetryConfig holds remote call retry configuration
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      time.Duration `yaml:"jitter"`
}

// APIConfig holds HTTP server configuration
type APIConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableCORS         bool     `yaml:"enable_cors"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	EnableRateLimit    bool     `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	// APIKeys guard cache invalidation; empty leaves it open
	APIKeys []string `yaml:"api_keys"`
}

// PriceConfig holds price cache configuration
type PriceConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewConfig creates a config populated with defaults
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every unset field with its default
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}
	if c.RPC.RequestsPerSecond == 0 {
		c.RPC.RequestsPerSecond = constants.DefaultRPCRequestsPerSecond
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = constants.DefaultRPCBurst
	}

	// Database defaults
	if c.Database.Backend == "" {
		c.Database.Backend = constants.BackendPebble
	}
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Database.Redis.KeyPrefix == "" {
		c.Database.Redis.KeyPrefix = constants.DefaultRedisKeyPrefix
	}

	// Cache defaults
	if c.Cache.TTL == 0 {
		c.Cache.TTL = constants.DefaultCacheTTL
	}
	if c.Cache.LookbackBlocks == 0 {
		c.Cache.LookbackBlocks = constants.DefaultLookbackBlocks
	}
	if c.Cache.Key == "" {
		c.Cache.Key = constants.DefaultActivityCacheKey
	}
	if c.Cache.TokenKey == "" {
		c.Cache.TokenKey = constants.DefaultTokenMetadataKey
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = constants.DefaultRetryMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = constants.DefaultRetryBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = constants.DefaultRetryMaxDelay
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = constants.DefaultRetryJitter
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}

	// Price defaults
	if c.Price.BaseURL == "" {
		c.Price.BaseURL = constants.DefaultCoinGeckoURL
	}
	if c.Price.TTL == 0 {
		c.Price.TTL = constants.DefaultPriceTTL
	}
	if c.Price.Timeout == 0 {
		c.Price.Timeout = constants.DefaultPriceTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// LoadFromEnv overrides configuration from ACTIVITY_* environment variables
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	if endpoint := os.Getenv("ACTIVITY_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if err := envDuration("ACTIVITY_RPC_TIMEOUT", &c.RPC.Timeout); err != nil {
		return err
	}
	if rps := os.Getenv("ACTIVITY_RPC_REQUESTS_PER_SECOND"); rps != "" {
		val, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("invalid ACTIVITY_RPC_REQUESTS_PER_SECOND: %w", err)
		}
		c.RPC.RequestsPerSecond = val
	}
	if err := envInt("ACTIVITY_RPC_BURST", &c.RPC.Burst); err != nil {
		return err
	}

	// Contract configuration
	if wallets := os.Getenv("ACTIVITY_WARM_WALLETS"); wallets != "" {
		c.Contract.WarmWallets = splitList(wallets)
	}

	// Database configuration
	if backend := os.Getenv("ACTIVITY_DB_BACKEND"); backend != "" {
		c.Database.Backend = backend
	}
	if path := os.Getenv("ACTIVITY_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if readonly := os.Getenv("ACTIVITY_DB_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid ACTIVITY_DB_READONLY: %w", err)
		}
		c.Database.ReadOnly = val
	}
	if addr := os.Getenv("ACTIVITY_REDIS_ADDR"); addr != "" {
		c.Database.Redis.Addr = addr
	}
	if password := os.Getenv("ACTIVITY_REDIS_PASSWORD"); password != "" {
		c.Database.Redis.Password = password
	}
	if err := envInt("ACTIVITY_REDIS_DB", &c.Database.Redis.DB); err != nil {
		return err
	}

	// Cache configuration
	if err := envDuration("ACTIVITY_CACHE_TTL", &c.Cache.TTL); err != nil {
		return err
	}
	if lookback := os.Getenv("ACTIVITY_CACHE_LOOKBACK_BLOCKS"); lookback != "" {
		val, err := strconv.ParseUint(lookback, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ACTIVITY_CACHE_LOOKBACK_BLOCKS: %w", err)
		}
		c.Cache.LookbackBlocks = val
	}
	if key := os.Getenv("ACTIVITY_CACHE_KEY"); key != "" {
		c.Cache.Key = key
	}

	// Retry configuration
	if err := envInt("ACTIVITY_RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts); err != nil {
		return err
	}
	if err := envDuration("ACTIVITY_RETRY_BASE_DELAY", &c.Retry.BaseDelay); err != nil {
		return err
	}
	if err := envDuration("ACTIVITY_RETRY_MAX_DELAY", &c.Retry.MaxDelay); err != nil {
		return err
	}

	// API configuration
	if host := os.Getenv("ACTIVITY_API_HOST"); host != "" {
		c.API.Host = host
	}
	if err := envInt("ACTIVITY_API_PORT", &c.API.Port); err != nil {
		return err
	}
	if enableCORS := os.Getenv("ACTIVITY_API_CORS_ENABLED"); enableCORS != "" {
		val, err := strconv.ParseBool(enableCORS)
		if err != nil {
			return fmt.Errorf("invalid ACTIVITY_API_CORS_ENABLED: %w", err)
		}
		c.API.EnableCORS = val
	}
	if allowedOrigins := os.Getenv("ACTIVITY_API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := splitList(allowedOrigins)
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c.API.AllowedOrigins = origins
	}
	if enableRateLimit := os.Getenv("ACTIVITY_API_RATE_LIMIT_ENABLED"); enableRateLimit != "" {
		val, err := strconv.ParseBool(enableRateLimit)
		if err != nil {
			return fmt.Errorf("invalid ACTIVITY_API_RATE_LIMIT_ENABLED: %w", err)
		}
		c.API.EnableRateLimit = val
	}
	if apiKeys := os.Getenv("ACTIVITY_API_KEYS"); apiKeys != "" {
		c.API.APIKeys = splitList(apiKeys)
	}

	// Price configuration
	if enabled := os.Getenv("ACTIVITY_PRICE_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid ACTIVITY_PRICE_ENABLED: %w", err)
		}
		c.Price.Enabled = val
	}
	if baseURL := os.Getenv("ACTIVITY_PRICE_BASE_URL"); baseURL != "" {
		c.Price.BaseURL = baseURL
	}
	if apiKey := os.Getenv("ACTIVITY_PRICE_API_KEY"); apiKey != "" {
		c.Price.APIKey = apiKey
	}

	// Log configuration
	if level := os.Getenv("ACTIVITY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("ACTIVITY_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	return nil
}

func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = val
	return nil
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate RPC configuration
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.RPC.RequestsPerSecond < 0 {
		return fmt.Errorf("RPC requests per second cannot be negative")
	}

	for _, wallet := range c.Contract.WarmWallets {
		if !common.IsHexAddress(wallet) {
			return fmt.Errorf("invalid warm wallet address %q", wallet)
		}
	}

	// Validate database configuration
	switch c.Database.Backend {
	case constants.BackendPebble:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
	case constants.BackendRedis:
		if c.Database.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	case constants.BackendMemory:
	default:
		return fmt.Errorf("invalid database backend %q, must be one of: pebble, redis, memory", c.Database.Backend)
	}

	// Validate cache configuration
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Cache.Key == "" || c.Cache.TokenKey == "" {
		return fmt.Errorf("cache keys cannot be empty")
	}
	if c.Cache.Key == c.Cache.TokenKey {
		return fmt.Errorf("activity and token metadata cache keys must differ")
	}

	// Validate retry configuration
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must be positive with max_delay >= base_delay")
	}
	if c.Retry.Jitter < 0 {
		return fmt.Errorf("retry jitter cannot be negative")
	}

	// Validate API configuration
	if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
		return fmt.Errorf("invalid API port %d", c.API.Port)
	}
	if c.API.EnableRateLimit && (c.API.RateLimitPerSecond <= 0 || c.API.RateLimitBurst <= 0) {
		return fmt.Errorf("rate limit and burst must be positive when rate limiting is enabled")
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
