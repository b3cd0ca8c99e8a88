package rates

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// Retrying wraps a provider with a bounded retry loop. The last error is
// surfaced when all attempts fail.
type Retrying struct {
	inner    Provider
	attempts uint
	delay    time.Duration
}

// WithRetry wraps the provider so each Rate call is attempted up to
// maxTries times.
func WithRetry(inner Provider, maxTries uint, delay time.Duration) *Retrying {
	if maxTries == 0 {
		maxTries = 1
	}
	return &Retrying{inner: inner, attempts: maxTries, delay: delay}
}

func (p *Retrying) Name() string { return p.inner.Name() }

func (p *Retrying) Rate(ctx context.Context) (float64, error) {
	var rate float64
	err := retry.Do(
		func() error {
			var err error
			rate, err = p.inner.Rate(ctx)
			return err
		},
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return 0, err
	}
	return rate, nil
}
