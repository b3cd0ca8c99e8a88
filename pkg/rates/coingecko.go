package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xmrcheckout/reconciler/pkg/metrics"
)

const defaultCoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price"

// CoinGecko fetches the XMR price from the CoinGecko simple price API.
type CoinGecko struct {
	client   *resty.Client
	url      string
	currency string
}

// NewCoinGecko creates a CoinGecko provider quoting in the given fiat
// currency (lowercase ISO code, e.g. "usd").
func NewCoinGecko(currency string, timeout time.Duration) *CoinGecko {
	return &CoinGecko{
		client:   resty.New().SetTimeout(timeout),
		url:      defaultCoinGeckoURL,
		currency: currency,
	}
}

// NewCoinGeckoWithURL is used by tests to point the provider at a stub server.
func NewCoinGeckoWithURL(url, currency string, timeout time.Duration) *CoinGecko {
	p := NewCoinGecko(currency, timeout)
	p.url = url
	return p
}

func (p *CoinGecko) Name() string { return "coingecko" }

// Rate returns the current fiat price of one XMR.
func (p *CoinGecko) Rate(ctx context.Context) (float64, error) {
	var body map[string]map[string]float64
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           "monero",
			"vs_currencies": p.currency,
		}).
		SetResult(&body).
		Get(p.url)
	if err != nil {
		metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
		return 0, fmt.Errorf("coingecko request failed: %w", err)
	}
	if resp.IsError() {
		metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
		return 0, fmt.Errorf("coingecko returned status %d", resp.StatusCode())
	}

	rate, ok := body["monero"][p.currency]
	if !ok || rate <= 0 {
		metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
		return 0, fmt.Errorf("coingecko response missing monero/%s rate", p.currency)
	}

	metrics.RateFetches.WithLabelValues(p.Name(), "success").Inc()
	metrics.ExchangeRate.WithLabelValues(p.Name()).Set(rate)
	return rate, nil
}
