// Package store persists payment intents and order state. It stands in for
// the host commerce system's persistence layer: intent rows are the source
// of truth for the reconciler, and the order hooks record lifecycle events
// the host would otherwise handle.
package store

import (
	"context"
	"errors"

	"github.com/xmrcheckout/reconciler/pkg/models"
)

var (
	// ErrNotFound is returned when no intent or order matches.
	ErrNotFound = errors.New("store: not found")
	// ErrAddressInUse is returned when a destination address is already
	// bound to a non-canceled intent.
	ErrAddressInUse = errors.New("store: destination address already in use")
	// ErrTerminalIntent is returned on writes to a terminal-state intent.
	ErrTerminalIntent = errors.New("store: intent is in a terminal state")
	// ErrAmountDecreased is returned when a write would lower amount_paid.
	ErrAmountDecreased = errors.New("store: amount_paid may not decrease")
)

// Store is the persistence surface for intents and orders.
type Store interface {
	// CreateIntent inserts a new intent, enforcing that the destination
	// address is not bound to any other non-canceled intent.
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error

	// GetIntent loads one intent by ID.
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)

	// GetIntentByOrder loads the most recent intent for an order.
	GetIntentByOrder(ctx context.Context, orderID string) (*models.PaymentIntent, error)

	// UpdateIntent persists intent mutations. Terminal intents are
	// immutable and amount_paid is monotone; violating writes fail.
	UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error

	// ListPendingIntents returns intents in a non-terminal state.
	ListPendingIntents(ctx context.Context) ([]*models.PaymentIntent, error)

	// Order lifecycle hooks, recorded on behalf of the host system.
	ConfirmOrder(ctx context.Context, orderID string) error
	CancelOrder(ctx context.Context, orderID string, reason string) error
	SendConfirmationEmail(ctx context.Context, orderID string) error

	// OrderState returns the recorded state of an order.
	OrderState(ctx context.Context, orderID string) (string, error)

	Close() error
}
