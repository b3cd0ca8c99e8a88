// Package reconciler implements the payment reconciliation procedure:
// matching an intent's expected amount against the wallet's incoming
// transfers, applying the confirmation threshold, and advancing the intent
// state machine.
//
// A Reconcile call is a single synchronous pass with no internal
// concurrency. Invocations for the same intent must be strictly sequential;
// the scheduler owns that serialization, not this package.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/xmrcheckout/reconciler/pkg/logger"
	"github.com/xmrcheckout/reconciler/pkg/metrics"
	"github.com/xmrcheckout/reconciler/pkg/models"
	"github.com/xmrcheckout/reconciler/pkg/wallet"
	"github.com/xmrcheckout/reconciler/pkg/xmr"
)

// IntentStore is the persistence surface the reconciler mutates. Writes
// must enforce terminal-state immutability and AmountPaid monotonicity.
type IntentStore interface {
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error
}

// OrderHooks are the order lifecycle callbacks owned by the host commerce
// system. The reconciler only invokes them; what confirmation or
// cancellation means for the order is not its concern.
type OrderHooks interface {
	ConfirmOrder(ctx context.Context, orderID string) error
	CancelOrder(ctx context.Context, orderID string, reason string) error
	SendConfirmationEmail(ctx context.Context, orderID string) error
}

// Reconciler runs reconciliation passes against one wallet.
type Reconciler struct {
	wallet wallet.Provider
	store  IntentStore
	hooks  OrderHooks
	policy Policy
	logger logger.Logger
}

// New creates a reconciler.
func New(w wallet.Provider, store IntentStore, hooks OrderHooks, policy Policy, log logger.Logger) *Reconciler {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Reconciler{
		wallet: w,
		store:  store,
		hooks:  hooks,
		policy: policy,
		logger: log,
	}
}

// Reconcile runs one pass for the job's intent.
//
// The returned error is reserved for internal failures (store or hook
// errors); every expected condition, including wallet transport faults, is
// expressed through the Outcome so the scheduler can apply retry policy.
func (r *Reconciler) Reconcile(ctx context.Context, job models.ReconcileJob) (Outcome, error) {
	intent, err := r.store.GetIntent(ctx, job.IntentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load intent %s: %w", job.IntentID, err)
	}

	if intent.State.Terminal() {
		return Outcome{
			Kind:    KindNoop,
			Reason:  ReasonAlreadyTerminal,
			Message: fmt.Sprintf("intent %s already %s, nothing to do", intent.ID, intent.State),
		}, nil
	}

	transfers, err := r.wallet.IncomingTransfers(ctx, intent.AccountIndex, intent.SubaddressIndex)
	if err != nil {
		var transport *wallet.TransportError
		if errors.As(err, &transport) {
			// A transient RPC blip inside a multi-hour polling window
			// should not abort the job; retry within its budget.
			r.logger.Error("Wallet RPC %s fault while reconciling intent %s: %v", transport.Kind, intent.ID, err)
			return Outcome{
				Kind:    KindRetryLater,
				Reason:  ReasonTransport,
				Message: fmt.Sprintf("wallet RPC unavailable (%s), will retry", transport.Kind),
			}, nil
		}
		return Outcome{}, fmt.Errorf("list transfers for intent %s: %w", intent.ID, err)
	}

	summary := models.SummarizeTransfers(transfers)
	r.logger.Debug("Intent %s: %d transfer(s), total %s, min confirmations %d",
		intent.ID, summary.Count, xmr.FormatAtomic(summary.TotalAmount), summary.MinConfirmations)

	if summary.Empty() {
		return r.reconcileEmpty(ctx, intent, job)
	}
	return r.reconcilePayment(ctx, intent, summary)
}

// reconcileEmpty handles the no-transfer-observed case: cancel on expiry or
// exhausted budget, otherwise keep polling.
func (r *Reconciler) reconcileEmpty(ctx context.Context, intent *models.PaymentIntent, job models.ReconcileJob) (Outcome, error) {
	expired := intent.Expired(r.policy.now())

	if !intent.FullyPaid() && (expired || job.LastAttempt()) {
		reason := ReasonExpired
		if !expired {
			// Budget backstop: a misconfigured expiry must not produce an
			// unbounded polling job.
			reason = ReasonBudgetExhausted
		}
		msg := fmt.Sprintf(
			"Subaddress: %s Status: No transaction found. Too much time has passed, "+
				"customer has most likely not sent payment. Cancelling order %s. Action: Nothing",
			intent.DestinationAddress, intent.OrderID)
		if err := r.cancel(ctx, intent, string(reason)); err != nil {
			return Outcome{}, err
		}
		r.logger.Notice(msg)
		return Outcome{Kind: KindCancel, Reason: reason, Message: msg}, nil
	}

	// The steady "nothing yet, try again" path. Informational, frequent,
	// and must not touch intent state.
	return Outcome{
		Kind:   KindRetryLater,
		Reason: ReasonNoTransferFound,
		Message: fmt.Sprintf(
			"Subaddress: %s Status: No transaction found. "+
				"TX probably hasn't been added to a block or mem-pool yet. This is fine. "+
				"Another job will execute. Action: Nothing",
			intent.DestinationAddress),
	}, nil
}

// reconcilePayment handles observed transfers: reuse policy, expiry of
// short payments, the confirmation gate, then the amount gate.
func (r *Reconciler) reconcilePayment(ctx context.Context, intent *models.PaymentIntent, summary models.TransferSummary) (Outcome, error) {
	if r.policy.Reuse == ReuseReject && summary.MoreThanOne() {
		return Outcome{
			Kind:   KindFatal,
			Reason: ReasonAddressReuse,
			Message: fmt.Sprintf(
				"Subaddress: %s Status: Address reuse found. The end user most likely sent "+
					"multiple transactions for a single order. Action: Reconcile transactions manually",
				intent.DestinationAddress),
		}, nil
	}

	// An expired intent that has not covered the expected amount is dead
	// no matter how many confirmations its transfers carry. Checked before
	// the confirmation gate so an unconfirmed short payment cannot keep an
	// expired order polling until the retry budget strands it.
	if summary.TotalAmount < intent.ExpectedAmount && intent.Expired(r.policy.now()) {
		msg := fmt.Sprintf(
			"Subaddress: %s Status: Partial payment of %s against %s expected, payment window closed. "+
				"Cancelling order %s. Action: Refund manually",
			intent.DestinationAddress, xmr.FormatAtomic(summary.TotalAmount),
			xmr.FormatAtomic(intent.ExpectedAmount), intent.OrderID)
		intent.AmountPaid = maxUint64(intent.AmountPaid, summary.TotalAmount)
		if err := r.cancel(ctx, intent, string(ReasonExpired)); err != nil {
			return Outcome{}, err
		}
		r.logger.Notice(msg)
		return Outcome{Kind: KindCancel, Reason: ReasonExpired, Message: msg}, nil
	}

	if summary.MinConfirmations < intent.RequiredConfirmations {
		// Record the observed amount for visibility but leave the state
		// machine alone until the confirmation floor is met.
		if err := r.recordAmountPaid(ctx, intent, summary.TotalAmount, intent.State); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Kind:   KindRetryLater,
			Reason: ReasonConfirmationsNotMet,
			Message: fmt.Sprintf(
				"Subaddress: %s Status: Waiting for more confirmations "+
					"Confirmations: current %d, expected %d Action: none",
				intent.DestinationAddress, summary.MinConfirmations, intent.RequiredConfirmations),
		}, nil
	}

	// Amount comparisons happen in integer atomic units only.
	if summary.TotalAmount >= intent.ExpectedAmount {
		if err := r.recordAmountPaid(ctx, intent, summary.TotalAmount, models.StateDone); err != nil {
			return Outcome{}, err
		}
		if err := r.hooks.ConfirmOrder(ctx, intent.OrderID); err != nil {
			return Outcome{}, fmt.Errorf("confirm order %s: %w", intent.OrderID, err)
		}
		if err := r.hooks.SendConfirmationEmail(ctx, intent.OrderID); err != nil {
			// The payment is settled either way; a failed email is not
			// worth unwinding the pass over.
			r.logger.Error("Failed to send confirmation email for order %s: %v", intent.OrderID, err)
		}
		metrics.AmountReceived.Add(float64(summary.TotalAmount))
		msg := fmt.Sprintf("Monero payment recorded for order %s, associated with subaddress %s",
			intent.OrderID, intent.DestinationAddress)
		r.logger.Info(msg)
		return Outcome{Kind: KindSuccess, Reason: ReasonPaid, Message: msg}, nil
	}

	// Underpayment inside the window. The intent keeps polling as
	// partially paid; a short payment is not a dead end, and the remainder
	// may still arrive.
	if err := r.recordAmountPaid(ctx, intent, summary.TotalAmount, models.StatePartiallyPaid); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:   KindRetryLater,
		Reason: ReasonUnderpaid,
		Message: fmt.Sprintf(
			"Subaddress: %s Status: Partial payment, %s still owed Action: none",
			intent.DestinationAddress, xmr.FormatAtomic(intent.AmountRemaining())),
	}, nil
}

// recordAmountPaid persists the observed amount (monotone) and the given
// state. Skips the write when nothing changed so a no-op pass stays a no-op.
func (r *Reconciler) recordAmountPaid(ctx context.Context, intent *models.PaymentIntent, observed uint64, state models.IntentState) error {
	newPaid := maxUint64(intent.AmountPaid, observed)
	if newPaid == intent.AmountPaid && state == intent.State {
		return nil
	}
	intent.AmountPaid = newPaid
	intent.State = state
	if err := r.store.UpdateIntent(ctx, intent); err != nil {
		return fmt.Errorf("update intent %s: %w", intent.ID, err)
	}
	return nil
}

// cancel moves the intent to canceled and fires the order cancel hook.
func (r *Reconciler) cancel(ctx context.Context, intent *models.PaymentIntent, reason string) error {
	intent.State = models.StateCanceled
	if err := r.store.UpdateIntent(ctx, intent); err != nil {
		return fmt.Errorf("cancel intent %s: %w", intent.ID, err)
	}
	if err := r.hooks.CancelOrder(ctx, intent.OrderID, reason); err != nil {
		return fmt.Errorf("cancel order %s: %w", intent.OrderID, err)
	}
	return nil
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
