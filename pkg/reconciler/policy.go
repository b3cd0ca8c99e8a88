package reconciler

import (
	"fmt"
	"time"
)

// ReusePolicy decides what a pass does when multiple transfers arrive at
// one destination address. Exactly one policy is active per deployment;
// the two are never mixed within a pass.
type ReusePolicy string

const (
	// ReuseAggregate sums all transfers to the address as one economic
	// event. This is the default.
	ReuseAggregate ReusePolicy = "aggregate"
	// ReuseReject treats a second transfer as address reuse and raises a
	// non-retryable fault for manual reconciliation.
	ReuseReject ReusePolicy = "reject"
)

// ParseReusePolicy validates a configured policy name.
func ParseReusePolicy(s string) (ReusePolicy, error) {
	switch ReusePolicy(s) {
	case ReuseAggregate, ReuseReject:
		return ReusePolicy(s), nil
	case "":
		return ReuseAggregate, nil
	}
	return "", fmt.Errorf("unknown reuse policy %q", s)
}

// Policy holds the decision knobs for the reconciliation procedure.
type Policy struct {
	Reuse ReusePolicy

	// Now is the wall clock used for expiry checks. Overridable in tests.
	Now func() time.Time
}

// DefaultPolicy returns the recommended policy: aggregate reuse handling
// and expiration-based cancellation.
func DefaultPolicy() Policy {
	return Policy{
		Reuse: ReuseAggregate,
		Now:   time.Now,
	}
}

func (p Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
