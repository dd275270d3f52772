package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/wallet-activity/internal/config"
	"github.com/0xmhha/wallet-activity/internal/constants"
	"github.com/0xmhha/wallet-activity/internal/logger"
	"github.com/0xmhha/wallet-activity/pkg/activity"
	"github.com/0xmhha/wallet-activity/pkg/api"
	"github.com/0xmhha/wallet-activity/pkg/client"
	"github.com/0xmhha/wallet-activity/pkg/price"
	"github.com/0xmhha/wallet-activity/pkg/retry"
	"github.com/0xmhha/wallet-activity/pkg/storage"
	"github.com/0xmhha/wallet-activity/pkg/token"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// flags holds command-line overrides; zero values leave the config untouched
type flags struct {
	configFile  string
	showVersion bool
	rpcEndpoint string
	backend     string
	dbPath      string
	apiHost     string
	apiPort     int
	logLevel    string
	logFormat   string
	prices      bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("activityd", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML)")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information and exit")
	fs.StringVar(&f.rpcEndpoint, "rpc", "", "Ethereum RPC endpoint URL")
	fs.StringVar(&f.backend, "backend", "", "Storage backend (pebble, redis, memory)")
	fs.StringVar(&f.dbPath, "db", "", "Pebble database path")
	fs.StringVar(&f.apiHost, "api-host", "", "API server host")
	fs.IntVar(&f.apiPort, "api-port", 0, "API server port")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (json, console)")
	fs.BoolVar(&f.prices, "prices", false, "Enable the token price endpoint")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if f.showVersion {
		fmt.Printf("activityd version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithConfig(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		InitialFields: map[string]interface{}{
			"service": "activityd",
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("activityd stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// run wires the service and blocks until ctx is cancelled or the API server fails
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting activityd",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("backend", cfg.Database.Backend),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Uint64("lookback_blocks", cfg.Cache.LookbackBlocks),
	)

	ethClient, err := client.NewClient(&client.Config{
		Endpoint:          cfg.RPC.Endpoint,
		Timeout:           cfg.RPC.Timeout,
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		Logger:            logger.WithComponent(log, "client"),
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer ethClient.Close()

	blobs, err := storage.Open(ctx, storage.Options{
		Backend:  cfg.Database.Backend,
		Path:     cfg.Database.Path,
		ReadOnly: cfg.Database.ReadOnly,
		Redis: storage.RedisConfig{
			Addr:      cfg.Database.Redis.Addr,
			Password:  cfg.Database.Redis.Password,
			DB:        cfg.Database.Redis.DB,
			KeyPrefix: cfg.Database.Redis.KeyPrefix,
		},
	}, logger.WithComponent(log, "storage"))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	retryCfg := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}

	store := activity.NewStore(blobs, cfg.Cache.Key, logger.WithComponent(log, "store"))
	orchestrator, err := activity.NewOrchestrator(ctx, ethClient, store, activity.Config{
		TTL:            cfg.Cache.TTL,
		LookbackBlocks: cfg.Cache.LookbackBlocks,
		Retry:          retryCfg,
		Metrics:        activity.NewMetrics(prometheus.DefaultRegisterer),
		Logger:         logger.WithComponent(log, "orchestrator"),
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	opts := &api.ServerOptions{
		Tokens: token.NewMetadataCache(ctx, ethClient, blobs, cfg.Cache.TokenKey, retryCfg,
			logger.WithComponent(log, "token")),
		Node:     ethClient,
		Gatherer: prometheus.DefaultGatherer,
	}
	if cfg.Price.Enabled {
		fetcher := price.NewCoinGeckoFetcher(price.CoinGeckoConfig{
			BaseURL: cfg.Price.BaseURL,
			APIKey:  cfg.Price.APIKey,
			Timeout: cfg.Price.Timeout,
			Retry:   retryCfg,
			Logger:  log,
		})
		opts.Prices = price.NewCache(fetcher, price.CacheConfig{
			TTL:    cfg.Price.TTL,
			Logger: logger.WithComponent(log, "price"),
		})
	}

	warm(ctx, orchestrator, cfg.Contract.WarmWallets, log)

	apiServer, err := api.NewServer(apiConfig(cfg), logger.WithComponent(log, "api"), orchestrator, opts)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down gracefully...")
	if err := apiServer.Stop(context.Background()); err != nil {
		log.Error("Failed to stop API server gracefully", zap.Error(err))
	}

	log.Info("activityd stopped")
	return nil
}

// warm refreshes the configured wallets in the background
func warm(ctx context.Context, o *activity.Orchestrator, wallets []string, log *zap.Logger) {
	for _, wallet := range wallets {
		go func(wallet string) {
			items, err := o.Get(ctx, wallet, false)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn("Failed to warm wallet", logger.Wallet(wallet), zap.Error(err))
				}
				return
			}
			log.Info("Warmed wallet", logger.Wallet(wallet), zap.Int("events", len(items)))
		}(wallet)
	}
}

// loadConfig reads .env, then the config file and environment, then flags
func loadConfig(f *flags) (*config.Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if f.configFile != "" {
		if err := cfg.LoadFromFile(f.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// flags override file and environment
	applyFlags(cfg, f)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s exists but is a directory", path)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, f *flags) {
	if f.rpcEndpoint != "" {
		cfg.RPC.Endpoint = f.rpcEndpoint
	}
	if f.backend != "" {
		cfg.Database.Backend = f.backend
	}
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.apiHost != "" {
		cfg.API.Host = f.apiHost
	}
	if f.apiPort > 0 {
		cfg.API.Port = f.apiPort
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.prices {
		cfg.Price.Enabled = true
	}
}

func apiConfig(cfg *config.Config) *api.Config {
	return &api.Config{
		Host:               cfg.API.Host,
		Port:               cfg.API.Port,
		ReadTimeout:        constants.DefaultReadTimeout,
		WriteTimeout:       constants.DefaultWriteTimeout,
		IdleTimeout:        constants.DefaultIdleTimeout,
		ShutdownTimeout:    constants.DefaultShutdownTimeout,
		MaxHeaderBytes:     constants.DefaultMaxHeaderBytes,
		EnableCORS:         cfg.API.EnableCORS,
		AllowedOrigins:     cfg.API.AllowedOrigins,
		EnableRateLimit:    cfg.API.EnableRateLimit,
		RateLimitPerSecond: cfg.API.RateLimitPerSecond,
		RateLimitBurst:     cfg.API.RateLimitBurst,
		APIKeys:            cfg.API.APIKeys,
	}
}
