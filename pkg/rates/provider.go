// Package rates provides interchangeable exchange rate providers for the
// fiat/XMR conversion done at checkout time. Providers share one two-method
// contract so the rest of the service stays agnostic of which price feed is
// configured; retry and caching are composable wrappers, not provider
// internals.
package rates

import (
	"context"
)

// Provider returns the current fiat price of one XMR.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Rate returns the current fiat/XMR exchange rate.
	Rate(ctx context.Context) (float64, error)
}
