package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/0xmhha/wallet-activity/pkg/retry"
)

// JSON-RPC error codes the node uses for throttling
const (
	codeLimitExceeded = -32005
	codeInternal      = -32603
)

var transientMessageTokens = []string{
	"too many requests",
	"rate limit",
	"limit exceeded",
	"request rate exceeded",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"service unavailable",
	"connection reset",
	"connection refused",
}

// Classify marks err transient when the node signals throttling or a
// temporary outage. Other errors are returned unchanged and are permanent.
func Classify(err error) error {
	if err == nil || retry.IsTransient(err) {
		return err
	}
	if isTransient(err) {
		return retry.Transient(err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeLimitExceeded, codeInternal:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, token := range transientMessageTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
