package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmrcheckout/reconciler/pkg/config"
	"github.com/xmrcheckout/reconciler/pkg/models"
	"github.com/xmrcheckout/reconciler/pkg/scheduler"
	"github.com/xmrcheckout/reconciler/pkg/store"
	"github.com/xmrcheckout/reconciler/pkg/wallet"
)

// walletStub answers just enough of the wallet RPC surface for checkout:
// the connectivity probe and subaddress creation.
func walletStub(t *testing.T) *httptest.Server {
	t.Helper()
	counter := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "get_height":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"0","result":{"height":3300000}}`))
		case "create_address":
			counter++
			addr, _ := json.Marshal(map[string]interface{}{
				"address":       "888tNkZrPN6" + strings.Repeat("x", counter),
				"address_index": counter,
			})
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"0","result":` + string(addr) + `}`))
		default:
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"0","error":{"code":-32601,"message":"Method not found"}}`))
		}
	}))
}

// fixedRate is a rate provider pinned to one price
type fixedRate struct {
	rate float64
	err  error
}

func (f fixedRate) Name() string { return "fixed" }

func (f fixedRate) Rate(context.Context) (float64, error) { return f.rate, f.err }

type fixture struct {
	svc    *Service
	server *Server
	store  *store.Memory
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T, rate fixedRate) *fixture {
	t.Helper()
	rpc := walletStub(t)
	t.Cleanup(rpc.Close)

	wallets := wallet.NewManager(wallet.Config{URI: rpc.URL, Timeout: 5 * time.Second})
	st := store.NewMemory()
	sched := scheduler.New(nil, nil, scheduler.Config{
		ZeroconfInterval: time.Second,
		SecuredInterval:  time.Second,
		WorkerCount:      1,
	}, nil)
	// Workers are not started; enqueued jobs stay buffered

	cfg := config.ReconcileConfig{
		RequiredConfirmations: 10,
		PaymentWindow:         90 * time.Minute,
	}
	svc := NewService(wallets, st, rate, sched, cfg, 0, "usd", nil)
	return &fixture{
		svc:    svc,
		server: NewServer("8080", svc, wallets, nil, nil),
		store:  st,
		sched:  sched,
	}
}

func TestServiceSubmit(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})

	// 300 USD at 150 USD/XMR
	intent, err := f.svc.Submit(context.Background(), "order-1", decimal.RequireFromString("300"))
	require.NoError(t, err)

	assert.Equal(t, uint64(2_000_000_000_000), intent.ExpectedAmount)
	assert.Equal(t, 150.0, intent.ExchangeRate)
	assert.Equal(t, "usd", intent.FiatCurrency)
	assert.Equal(t, uint64(10), intent.RequiredConfirmations)
	assert.Equal(t, models.StatePending, intent.State)
	assert.NotEmpty(t, intent.DestinationAddress)
	assert.Equal(t, intent.CreatedAt.Add(90*time.Minute), intent.ExpiresAt)

	stored, err := f.store.GetIntent(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, stored.ID)
}

func TestServiceSubmitValidation(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})

	_, err := f.svc.Submit(context.Background(), "", decimal.RequireFromString("300"))
	assert.Error(t, err)

	_, err = f.svc.Submit(context.Background(), "order-1", decimal.Zero)
	assert.Error(t, err)

	_, err = f.svc.Submit(context.Background(), "order-1", decimal.RequireFromString("-5"))
	assert.Error(t, err)
}

func TestServiceSubmitRateFeedDown(t *testing.T) {
	f := newFixture(t, fixedRate{err: errors.New("rate feed down")})

	_, err := f.svc.Submit(context.Background(), "order-1", decimal.RequireFromString("300"))
	assert.ErrorIs(t, err, ErrPaymentMethodUnavailable,
		"the shopper-facing error hides the provider detail")
}

func TestServiceSubmitWalletDown(t *testing.T) {
	rpc := walletStub(t)
	rpc.Close()

	wallets := wallet.NewManager(wallet.Config{URI: rpc.URL, Timeout: time.Second})
	sched := scheduler.New(nil, nil, scheduler.Config{WorkerCount: 1}, nil)
	svc := NewService(wallets, store.NewMemory(), fixedRate{rate: 150}, sched,
		config.ReconcileConfig{RequiredConfirmations: 10, PaymentWindow: time.Hour}, 0, "usd", nil)

	_, err := svc.Submit(context.Background(), "order-1", decimal.RequireFromString("300"))
	assert.ErrorIs(t, err, ErrPaymentMethodUnavailable)
}

func TestHandleSubmitAndStatus(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})
	handler := f.server.Handler()

	body, _ := json.Marshal(map[string]string{"order_id": "order-1", "amount": "300"})
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "2.000000000000", created.AmountXMR)
	assert.NotEmpty(t, created.IntentID)
	assert.NotEmpty(t, created.Address)

	req = httptest.NewRequest(http.MethodGet, "/checkout/"+created.IntentID+"/status", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "pending", status.State)
	assert.Equal(t, "order-1", status.OrderID)
	assert.Equal(t, "2.000000000000", status.AmountRemainingXMR)
}

func TestHandleSubmitBadRequest(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})
	handler := f.server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ := json.Marshal(map[string]string{"order_id": "order-1", "amount": "lots"})
	req = httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmitServiceUnavailable(t *testing.T) {
	f := newFixture(t, fixedRate{err: errors.New("rate feed down")})
	handler := f.server.Handler()

	body, _ := json.Marshal(map[string]string{"order_id": "order-1", "amount": "300"})
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment method currently unavailable")
	assert.NotContains(t, rec.Body.String(), "rate feed down", "RPC detail must not leak to the shopper")
}

func TestHandleStatusNotFound(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})

	req := httptest.NewRequest(http.MethodGet, "/checkout/nope/status", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQR(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})
	handler := f.server.Handler()

	intent, err := f.svc.Submit(context.Background(), "order-1", decimal.RequireFromString("300"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/checkout/"+intent.ID+"/qr.png", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})
	handler := f.server.Handler()

	intent, err := f.svc.Submit(context.Background(), "order-1", decimal.RequireFromString("300"))
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"intent_id": intent.ID})
	req := httptest.NewRequest(http.MethodPost, "/webhook/confirm", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	body, _ = json.Marshal(map[string]string{"intent_id": "nope"})
	req = httptest.NewRequest(http.MethodPost, "/webhook/confirm", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, fixedRate{rate: 150})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "closed", resp.CircuitBreaker)
}

func TestHandleHealthWalletDown(t *testing.T) {
	rpc := walletStub(t)
	rpc.Close()

	wallets := wallet.NewManager(wallet.Config{URI: rpc.URL, Timeout: time.Second})
	server := NewServer("8080", nil, wallets, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unreachable", resp.Wallet)
}
