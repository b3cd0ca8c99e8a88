package store

import (
	"context"
	"sync"
	"time"

	"github.com/xmrcheckout/reconciler/pkg/models"
)

// Memory is an in-memory Store used in tests. It applies the same guards
// as the SQLite implementation.
type Memory struct {
	mu      sync.Mutex
	intents map[string]models.PaymentIntent
	orders  map[string]string
	events  map[string][]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		intents: make(map[string]models.PaymentIntent),
		orders:  make(map[string]string),
		events:  make(map[string][]string),
	}
}

func (m *Memory) CreateIntent(_ context.Context, intent *models.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.intents {
		if existing.DestinationAddress == intent.DestinationAddress &&
			existing.State != models.StateCanceled && existing.State != models.StateExpired {
			return ErrAddressInUse
		}
	}

	if intent.State == "" {
		intent.State = models.StatePending
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	m.intents[intent.ID] = *intent
	if _, ok := m.orders[intent.OrderID]; !ok {
		m.orders[intent.OrderID] = "pending"
	}
	return nil
}

func (m *Memory) GetIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &intent, nil
}

func (m *Memory) GetIntentByOrder(_ context.Context, orderID string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.PaymentIntent
	for id := range m.intents {
		intent := m.intents[id]
		if intent.OrderID != orderID {
			continue
		}
		if latest == nil || intent.CreatedAt.After(latest.CreatedAt) {
			latest = &intent
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) UpdateIntent(_ context.Context, intent *models.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.intents[intent.ID]
	if !ok {
		return ErrNotFound
	}
	if current.State.Terminal() {
		return ErrTerminalIntent
	}
	if intent.AmountPaid < current.AmountPaid {
		return ErrAmountDecreased
	}

	intent.UpdatedAt = time.Now().UTC()
	m.intents[intent.ID] = *intent
	return nil
}

func (m *Memory) ListPendingIntents(_ context.Context) ([]*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*models.PaymentIntent
	for id := range m.intents {
		intent := m.intents[id]
		if !intent.State.Terminal() {
			pending = append(pending, &intent)
		}
	}
	return pending, nil
}

func (m *Memory) ConfirmOrder(_ context.Context, orderID string) error {
	return m.setOrderState(orderID, "confirmed", "order_confirmed")
}

func (m *Memory) CancelOrder(_ context.Context, orderID string, _ string) error {
	return m.setOrderState(orderID, "canceled", "order_canceled")
}

func (m *Memory) SendConfirmationEmail(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[orderID] = append(m.events[orderID], "confirmation_email")
	return nil
}

func (m *Memory) OrderState(_ context.Context, orderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.orders[orderID]
	if !ok {
		return "", ErrNotFound
	}
	return state, nil
}

// Events returns the recorded events for an order, oldest first.
func (m *Memory) Events(orderID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events[orderID]...)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) setOrderState(orderID, state, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[orderID]; !ok {
		return ErrNotFound
	}
	m.orders[orderID] = state
	m.events[orderID] = append(m.events[orderID], event)
	return nil
}
