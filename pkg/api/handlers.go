package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/0xmhha/wallet-activity/pkg/activity"
	"github.com/0xmhha/wallet-activity/pkg/price"
	"github.com/0xmhha/wallet-activity/pkg/retry"
	"github.com/0xmhha/wallet-activity/pkg/types"
)

// ActivityResponse is the body of GET /v1/wallets/{address}/activity
type ActivityResponse struct {
	Address string               `json:"address"`
	Events  []types.ActivityItem `json:"events"`
}

// MetadataResponse is the body of GET /v1/tokens/{address}/metadata
type MetadataResponse struct {
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// PriceResponse is the body of GET /v1/tokens/{address}/price
type PriceResponse struct {
	Token string  `json:"token"`
	USD   float64 `json:"usd"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Node      string `json:"node,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	_, key, err := activity.NormalizeAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid force parameter")
			return
		}
		force = val
	}

	items, err := s.activity.Get(r.Context(), key, force)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []types.ActivityItem{}
	}
	s.writeJSON(w, http.StatusOK, ActivityResponse{
		Address: key,
		Events:  items,
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := s.activity.Invalidate(r.Context(), chi.URLParam(r, "address")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTokenMetadata(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		s.writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	md := s.opts.Tokens.GetMetadata(r.Context(), common.HexToAddress(address))
	s.writeJSON(w, http.StatusOK, MetadataResponse{Name: md.Name, Decimals: md.Decimals})
}

func (s *Server) handleTokenPrice(w http.ResponseWriter, r *http.Request) {
	tokenID := strings.ToLower(chi.URLParam(r, "address"))
	if tokenID != price.NativeToken && !common.IsHexAddress(tokenID) {
		s.writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	s.writeJSON(w, http.StatusOK, PriceResponse{
		Token: tokenID,
		USD:   s.opts.Prices.GetPrice(r.Context(), tokenID),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if s.opts.Node != nil {
		response.Node = "ok"
		if err := s.opts.Node.Ping(r.Context()); err != nil {
			s.logger.Warn("health check: node unreachable", zap.Error(err))
			response.Status = "degraded"
			response.Node = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, response)
}

// writeServiceError maps orchestrator errors onto HTTP status codes
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, activity.ErrInvalidAddress):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, retry.ErrRetryExhausted):
		s.logger.Warn("remote source unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "event source unavailable, retry later")
	case r.Context().Err() != nil:
		// client went away; nothing useful to send
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "upstream request failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}
