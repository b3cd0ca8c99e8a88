package reconciler

// Kind tags the result of one reconciliation pass. The scheduler boundary
// translates these into its own retry/no-retry vocabulary; the reconciler
// itself never signals control flow through panics or sentinel errors.
type Kind int

const (
	// KindSuccess means the intent is fully paid and the order confirmed.
	KindSuccess Kind = iota
	// KindRetryLater means nothing conclusive happened; the scheduler
	// should re-invoke the pass later.
	KindRetryLater
	// KindCancel means the intent was canceled during this pass. The
	// cancellation is already fully handled; the outcome is informational.
	KindCancel
	// KindFatal means manual reconciliation is required. The scheduler
	// must not retry.
	KindFatal
	// KindNoop means the intent was already terminal and nothing was done.
	KindNoop
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryLater:
		return "retry_later"
	case KindCancel:
		return "cancel"
	case KindFatal:
		return "fatal"
	case KindNoop:
		return "noop"
	}
	return "unknown"
}

// Reason qualifies an outcome for logs, metrics, and retry policy.
type Reason string

const (
	ReasonPaid                Reason = "paid"
	ReasonNoTransferFound     Reason = "no_transfer_found"
	ReasonConfirmationsNotMet Reason = "confirmations_not_met"
	ReasonUnderpaid           Reason = "underpaid"
	ReasonTransport           Reason = "wallet_transport"
	ReasonAddressReuse        Reason = "address_reuse"
	ReasonExpired             Reason = "expired"
	ReasonBudgetExhausted     Reason = "budget_exhausted"
	ReasonAlreadyTerminal     Reason = "already_terminal"
)

// Outcome is the tagged result of one reconciliation pass.
type Outcome struct {
	Kind    Kind
	Reason  Reason
	Message string
}

// Retryable reports whether the scheduler should re-enqueue the job.
func (o Outcome) Retryable() bool {
	return o.Kind == KindRetryLater
}
