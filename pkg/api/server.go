// Package api serves wallet activity, token metadata and prices over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/wallet-activity/pkg/api/middleware"
	"github.com/0xmhha/wallet-activity/pkg/token"
	"github.com/0xmhha/wallet-activity/pkg/types"
)

// ActivityService returns and invalidates cached wallet activity
type ActivityService interface {
	Get(ctx context.Context, address string, force bool) ([]types.ActivityItem, error)
	Invalidate(ctx context.Context, address string) error
}

// MetadataService resolves token display metadata
type MetadataService interface {
	GetMetadata(ctx context.Context, token common.Address) token.Metadata
}

// PriceService resolves USD prices
type PriceService interface {
	GetPrice(ctx context.Context, token string) float64
}

// Pinger reports whether the chain node is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerOptions contains optional collaborators. Routes whose service is nil
// are not registered.
type ServerOptions struct {
	Tokens   MetadataService
	Prices   PriceService
	Node     Pinger
	Gatherer prometheus.Gatherer
}

// Server is the HTTP API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	activity ActivityService
	opts     ServerOptions
	router   *chi.Mux
	server   *http.Server
	limiter  *apimiddleware.RateLimiter
}

// NewServer creates a server. Start serves it.
func NewServer(config *Config, logger *zap.Logger, activity ActivityService, opts *ServerOptions) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if activity == nil {
		return nil, errors.New("activity service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		logger:   logger,
		activity: activity,
		router:   chi.NewRouter(),
	}
	if opts != nil {
		s.opts = *opts
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	// Recovery must be outermost
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if s.config.EnableRateLimit {
		s.limiter = apimiddleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst, s.logger)
		s.router.Use(apimiddleware.RateLimit(s.limiter))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(apimiddleware.CORS(s.config.AllowedOrigins))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	metrics := promhttp.Handler()
	if s.opts.Gatherer != nil {
		metrics = promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})
	}
	s.router.Handle("/metrics", metrics)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/wallets/{address}/activity", s.handleGetActivity)
		r.With(apimiddleware.APIKeyAuth(s.config.APIKeys, s.logger)).
			Delete("/wallets/{address}/activity", s.handleInvalidate)

		if s.opts.Tokens != nil {
			r.Get("/tokens/{address}/metadata", s.handleTokenMetadata)
		}
		if s.opts.Prices != nil {
			r.Get("/tokens/{address}/price", s.handleTokenPrice)
		}
	})
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("token_metadata", s.opts.Tokens != nil),
		zap.Bool("prices", s.opts.Prices != nil),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if s.limiter != nil {
		s.limiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
