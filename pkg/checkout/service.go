// Package checkout is the thin HTTP surface of the service: intent
// creation at checkout submission, storefront status polling, the QR
// payment page asset, and the health/metrics endpoints.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xmrcheckout/reconciler/pkg/config"
	"github.com/xmrcheckout/reconciler/pkg/logger"
	"github.com/xmrcheckout/reconciler/pkg/models"
	"github.com/xmrcheckout/reconciler/pkg/rates"
	"github.com/xmrcheckout/reconciler/pkg/scheduler"
	"github.com/xmrcheckout/reconciler/pkg/store"
	"github.com/xmrcheckout/reconciler/pkg/wallet"
	"github.com/xmrcheckout/reconciler/pkg/xmr"
)

// ErrPaymentMethodUnavailable is shown to the shopper when the wallet or
// rate feed is unreachable at checkout time. The underlying detail is
// logged server-side only and never surfaces to the end customer.
var ErrPaymentMethodUnavailable = errors.New("payment method currently unavailable, choose another")

// Service creates payment intents and schedules their reconciliation.
type Service struct {
	wallets  *wallet.Manager
	store    store.Store
	rates    rates.Provider
	sched    *scheduler.Scheduler
	cfg      config.ReconcileConfig
	account  uint64
	currency string
	logger   logger.Logger
}

// NewService creates a checkout service.
func NewService(wallets *wallet.Manager, st store.Store, rateProvider rates.Provider,
	sched *scheduler.Scheduler, cfg config.ReconcileConfig, account uint64, currency string, log logger.Logger) *Service {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Service{
		wallets:  wallets,
		store:    st,
		rates:    rateProvider,
		sched:    sched,
		cfg:      cfg,
		account:  account,
		currency: currency,
		logger:   log,
	}
}

// Submit creates a payment intent for an order total quoted in fiat and
// enqueues the first reconciliation pass.
//
// The exchange rate and the derived expected amount are snapshotted here
// and never recomputed, even if the live rate later changes.
func (s *Service) Submit(ctx context.Context, orderID string, fiatAmount decimal.Decimal) (*models.PaymentIntent, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if !fiatAmount.IsPositive() {
		return nil, fmt.Errorf("order amount must be positive")
	}

	rate, err := s.rates.Rate(ctx)
	if err != nil {
		s.logger.Error("Checkout for order %s failed: rate provider %s: %v", orderID, s.rates.Name(), err)
		return nil, ErrPaymentMethodUnavailable
	}

	expected, err := xmr.FiatToAtomic(fiatAmount, rate)
	if err != nil {
		return nil, fmt.Errorf("convert order total: %w", err)
	}

	w, err := s.wallets.Get(ctx)
	if err != nil {
		s.logger.Error("Checkout for order %s failed: wallet unavailable: %v", orderID, err)
		return nil, ErrPaymentMethodUnavailable
	}

	sub, err := w.CreateSubaddress(ctx, s.account, orderID)
	if err != nil {
		s.logger.Error("Checkout for order %s failed: create subaddress: %v", orderID, err)
		return nil, ErrPaymentMethodUnavailable
	}

	now := time.Now().UTC()
	intent := &models.PaymentIntent{
		ID:                    uuid.NewString(),
		OrderID:               orderID,
		DestinationAddress:    sub.Address,
		AccountIndex:          s.account,
		SubaddressIndex:       sub.Index,
		ExpectedAmount:        expected,
		ExchangeRate:          rate,
		FiatCurrency:          s.currency,
		RequiredConfirmations: s.cfg.RequiredConfirmations,
		State:                 models.StatePending,
		CreatedAt:             now,
		ExpiresAt:             now.Add(s.cfg.PaymentWindow),
	}

	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("create intent for order %s: %w", orderID, err)
	}

	s.sched.Enqueue(models.ReconcileJob{
		OrderID:               orderID,
		IntentID:              intent.ID,
		RequiredConfirmations: intent.RequiredConfirmations,
	})

	s.logger.Info("Created intent %s for order %s: %s XMR to %s, %d confirmation(s) required",
		intent.ID, orderID, xmr.FormatAtomic(expected), sub.Address, intent.RequiredConfirmations)
	return intent, nil
}

// Nudge enqueues an immediate reconciliation pass for an intent, used by
// the externally-pushed confirmation webhook. A no-op when a job for the
// intent is already in flight.
func (s *Service) Nudge(ctx context.Context, intentID string) error {
	intent, err := s.store.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.State.Terminal() {
		return nil
	}
	s.sched.Enqueue(models.ReconcileJob{
		OrderID:               intent.OrderID,
		IntentID:              intent.ID,
		RequiredConfirmations: intent.RequiredConfirmations,
	})
	return nil
}

// Status summarizes an intent for the storefront polling endpoint.
type Status struct {
	IntentID              string `json:"intent_id"`
	OrderID               string `json:"order_id"`
	State                 string `json:"state"`
	Address               string `json:"address"`
	AmountXMR             string `json:"amount_xmr"`
	AmountPaidXMR         string `json:"amount_paid_xmr"`
	AmountRemainingXMR    string `json:"amount_remaining_xmr"`
	RequiredConfirmations uint64 `json:"required_confirmations"`
	ExpiresAt             string `json:"expires_at"`
}

// Status returns the storefront view of an intent.
func (s *Service) Status(ctx context.Context, intentID string) (*Status, error) {
	intent, err := s.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return &Status{
		IntentID:              intent.ID,
		OrderID:               intent.OrderID,
		State:                 string(intent.State),
		Address:               intent.DestinationAddress,
		AmountXMR:             xmr.FormatAtomic(intent.ExpectedAmount),
		AmountPaidXMR:         xmr.FormatAtomic(intent.AmountPaid),
		AmountRemainingXMR:    xmr.FormatAtomic(intent.AmountRemaining()),
		RequiredConfirmations: intent.RequiredConfirmations,
		ExpiresAt:             intent.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}
