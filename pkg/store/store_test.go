package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmrcheckout/reconciler/pkg/models"
)

// openStores builds one of each Store implementation so every guard is
// verified against both.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Store{
		"sqlite": db,
		"memory": NewMemory(),
	}
}

func newIntent(id, orderID, address string) *models.PaymentIntent {
	now := time.Now().UTC()
	return &models.PaymentIntent{
		ID:                    id,
		OrderID:               orderID,
		DestinationAddress:    address,
		AccountIndex:          0,
		SubaddressIndex:       3,
		ExpectedAmount:        2_500_000_000_000,
		ExchangeRate:          150.5,
		FiatCurrency:          "usd",
		RequiredConfirmations: 10,
		State:                 models.StatePending,
		CreatedAt:             now,
		ExpiresAt:             now.Add(90 * time.Minute),
	}
}

func TestStoreCreateAndGetIntent(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			intent := newIntent("i1", "o1", "addr1")
			require.NoError(t, st.CreateIntent(ctx, intent))

			got, err := st.GetIntent(ctx, "i1")
			require.NoError(t, err)
			assert.Equal(t, "o1", got.OrderID)
			assert.Equal(t, uint64(2_500_000_000_000), got.ExpectedAmount)
			assert.Equal(t, models.StatePending, got.State)
			assert.Equal(t, uint64(10), got.RequiredConfirmations)

			byOrder, err := st.GetIntentByOrder(ctx, "o1")
			require.NoError(t, err)
			assert.Equal(t, "i1", byOrder.ID)

			_, err = st.GetIntent(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreActiveAddressIsUnique(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.CreateIntent(ctx, newIntent("i1", "o1", "addr1")))

			err := st.CreateIntent(ctx, newIntent("i2", "o2", "addr1"))
			assert.ErrorIs(t, err, ErrAddressInUse)

			// A canceled intent releases its address
			first, err := st.GetIntent(ctx, "i1")
			require.NoError(t, err)
			first.State = models.StateCanceled
			require.NoError(t, st.UpdateIntent(ctx, first))

			assert.NoError(t, st.CreateIntent(ctx, newIntent("i3", "o3", "addr1")))
		})
	}
}

func TestStoreTerminalIntentIsImmutable(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			intent := newIntent("i1", "o1", "addr1")
			require.NoError(t, st.CreateIntent(ctx, intent))

			intent.State = models.StateDone
			intent.AmountPaid = 2_500_000_000_000
			require.NoError(t, st.UpdateIntent(ctx, intent))

			intent.State = models.StatePending
			err := st.UpdateIntent(ctx, intent)
			assert.ErrorIs(t, err, ErrTerminalIntent)
		})
	}
}

func TestStoreAmountPaidIsMonotone(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			intent := newIntent("i1", "o1", "addr1")
			require.NoError(t, st.CreateIntent(ctx, intent))

			intent.AmountPaid = 1_000_000_000_000
			intent.State = models.StatePartiallyPaid
			require.NoError(t, st.UpdateIntent(ctx, intent))

			intent.AmountPaid = 500_000_000_000
			err := st.UpdateIntent(ctx, intent)
			assert.ErrorIs(t, err, ErrAmountDecreased)
		})
	}
}

func TestStoreListPendingIntents(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.CreateIntent(ctx, newIntent("i1", "o1", "addr1")))
			require.NoError(t, st.CreateIntent(ctx, newIntent("i2", "o2", "addr2")))

			done, err := st.GetIntent(ctx, "i2")
			require.NoError(t, err)
			done.AmountPaid = done.ExpectedAmount
			done.State = models.StateDone
			require.NoError(t, st.UpdateIntent(ctx, done))

			pending, err := st.ListPendingIntents(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "i1", pending[0].ID)
		})
	}
}

func TestStoreOrderLifecycle(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.CreateIntent(ctx, newIntent("i1", "o1", "addr1")))

			state, err := st.OrderState(ctx, "o1")
			require.NoError(t, err)
			assert.Equal(t, "pending", state)

			require.NoError(t, st.ConfirmOrder(ctx, "o1"))
			state, err = st.OrderState(ctx, "o1")
			require.NoError(t, err)
			assert.Equal(t, "confirmed", state)

			require.NoError(t, st.SendConfirmationEmail(ctx, "o1"))
		})
	}
}

func TestStoreCancelUnknownOrder(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := st.CancelOrder(context.Background(), "missing", "expired")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryRecordsEvents(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	require.NoError(t, st.CreateIntent(ctx, newIntent("i1", "o1", "addr1")))
	require.NoError(t, st.ConfirmOrder(ctx, "o1"))
	require.NoError(t, st.SendConfirmationEmail(ctx, "o1"))

	assert.Equal(t, []string{"order_confirmed", "confirmation_email"}, st.Events("o1"))
}

func TestSQLiteOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.CreateIntent(context.Background(), newIntent("i1", "o1", "addr1")))
	require.NoError(t, db.Close())

	// Re-opening applies the schema again and keeps the data
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetIntent(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)
}
