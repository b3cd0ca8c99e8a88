package wallet

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/xmrcheckout/reconciler/pkg/metrics"
)

// TransportError is a wallet RPC failure re-classified at the boundary.
// The Kind is coarse on purpose: callers decide retry policy from it, and
// the underlying error stays available for logs via Unwrap.
type TransportError struct {
	Kind string
	Err  error
}

const (
	// KindUnauthorized means the RPC rejected our credentials.
	KindUnauthorized = "unauthorized"
	// KindTLS means the TLS handshake with the RPC failed.
	KindTLS = "tls"
	// KindTimeout means the call exceeded its deadline.
	KindTimeout = "timeout"
	// KindConnection covers refused/reset/unreachable transport failures.
	KindConnection = "connection"
	// KindRPC covers errors the RPC itself returned.
	KindRPC = "rpc"
)

func (e *TransportError) Error() string {
	return fmt.Sprintf("wallet rpc %s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classifyError wraps an RPC failure into a TransportError with the most
// specific kind we can determine.
func classifyError(err error, statusCode int) *TransportError {
	kind := KindConnection

	var tlsErr *tls.CertificateVerificationError
	var recErr tls.RecordHeaderError
	var netErr net.Error

	switch {
	case statusCode == http.StatusUnauthorized:
		kind = KindUnauthorized
	case errors.As(err, &tlsErr), errors.As(err, &recErr):
		kind = KindTLS
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	metrics.WalletRPCErrors.WithLabelValues(kind).Inc()
	return &TransportError{Kind: kind, Err: err}
}

// rpcError wraps an application-level error the RPC returned.
func rpcError(method string, code int, message string) *TransportError {
	metrics.WalletRPCErrors.WithLabelValues(KindRPC).Inc()
	return &TransportError{
		Kind: KindRPC,
		Err:  fmt.Errorf("%s failed with code %d: %s", method, code, message),
	}
}
