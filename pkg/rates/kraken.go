package rates

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xmrcheckout/reconciler/pkg/metrics"
)

const defaultKrakenURL = "https://api.kraken.com/0/public/Ticker"

// Kraken fetches the XMR price from the Kraken public ticker API.
type Kraken struct {
	client *resty.Client
	url    string
	pair   string
}

// krakenTicker is the subset of the ticker response we read: "c" holds the
// last trade [price, lot volume].
type krakenTicker struct {
	Error  []string                       `json:"error"`
	Result map[string]struct {
		Close []string `json:"c"`
	} `json:"result"`
}

// NewKraken creates a Kraken provider for the given pair (e.g. "XMRUSD").
func NewKraken(pair string, timeout time.Duration) *Kraken {
	return &Kraken{
		client: resty.New().SetTimeout(timeout),
		url:    defaultKrakenURL,
		pair:   pair,
	}
}

// NewKrakenWithURL is used by tests to point the provider at a stub server.
func NewKrakenWithURL(url, pair string, timeout time.Duration) *Kraken {
	p := NewKraken(pair, timeout)
	p.url = url
	return p
}

func (p *Kraken) Name() string { return "kraken" }

// Rate returns the last trade price for the configured pair.
func (p *Kraken) Rate(ctx context.Context) (float64, error) {
	var body krakenTicker
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("pair", p.pair).
		SetResult(&body).
		Get(p.url)
	if err != nil {
		metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
		return 0, fmt.Errorf("kraken request failed: %w", err)
	}
	if resp.IsError() {
		metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
		return 0, fmt.Errorf("kraken returned status %d", resp.StatusCode())
	}
	if len(body.Error) > 0 {
		metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
		return 0, fmt.Errorf("kraken API error: %v", body.Error)
	}

	// The result is keyed by Kraken's internal pair name, which may differ
	// from the requested pair. There is exactly one entry.
	for _, ticker := range body.Result {
		if len(ticker.Close) == 0 {
			break
		}
		rate, err := strconv.ParseFloat(ticker.Close[0], 64)
		if err != nil || rate <= 0 {
			metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
			return 0, fmt.Errorf("kraken returned invalid price %q", ticker.Close[0])
		}
		metrics.RateFetches.WithLabelValues(p.Name(), "success").Inc()
		metrics.ExchangeRate.WithLabelValues(p.Name()).Set(rate)
		return rate, nil
	}

	metrics.RateFetches.WithLabelValues(p.Name(), "error").Inc()
	return 0, fmt.Errorf("kraken response missing ticker for %s", p.pair)
}
