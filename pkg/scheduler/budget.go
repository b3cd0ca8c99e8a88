package scheduler

import (
	"github.com/xmrcheckout/reconciler/pkg/logger"
)

const (
	// BudgetFloor is the minimum number of reconciliation attempts any
	// intent gets before the polling window closes.
	BudgetFloor = 44

	// BudgetPerConfirmation scales the attempt budget with the configured
	// confirmation requirement: more confirmations means a longer wait on
	// chain, so the job gets more slow passes.
	BudgetPerConfirmation = 25
)

// MaxRetriesFor returns the attempt budget for an intent with the given
// confirmation requirement: max(44, confirmations*25).
func MaxRetriesFor(requiredConfirmations uint64) int {
	budget := int(requiredConfirmations) * BudgetPerConfirmation
	if budget < BudgetFloor {
		return BudgetFloor
	}
	return budget
}

// LaneFor routes zero-confirmation intents to the fast lane, where they are
// polled aggressively over a short absolute window, and everything else to
// the secured lane with a slower interval over a longer window.
func LaneFor(requiredConfirmations uint64) logger.Lane {
	if requiredConfirmations == 0 {
		return logger.Zeroconf
	}
	return logger.Secured
}

func laneName(lane logger.Lane) string {
	if lane == logger.Zeroconf {
		return "zeroconf"
	}
	return "secured"
}
