package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/xmrcheckout/reconciler/pkg/circuitbreaker"
	"github.com/xmrcheckout/reconciler/pkg/logger"
	"github.com/xmrcheckout/reconciler/pkg/store"
	"github.com/xmrcheckout/reconciler/pkg/wallet"
	"github.com/xmrcheckout/reconciler/pkg/xmr"
)

// Server exposes the checkout, status, webhook, health, and metrics
// endpoints over HTTP.
type Server struct {
	port          string
	svc           *Service
	wallets       *wallet.Manager
	breaker       *circuitbreaker.CircuitBreaker
	logger        logger.Logger
	metricsAPIKey string
}

// NewServer creates a checkout HTTP server.
func NewServer(port string, svc *Service, wallets *wallet.Manager, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		svc:           svc,
		wallets:       wallets,
		breaker:       breaker,
		logger:        log,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", s.handleSubmit)
	mux.HandleFunc("GET /checkout/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /checkout/{id}/qr.png", s.handleQR)
	mux.HandleFunc("POST /webhook/confirm", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metricsAuthMiddleware(promhttp.Handler()))
	return mux
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Checkout server listening on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type submitRequest struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}

type submitResponse struct {
	IntentID  string `json:"intent_id"`
	Address   string `json:"address"`
	AmountXMR string `json:"amount_xmr"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	intent, err := s.svc.Submit(r.Context(), req.OrderID, amount)
	if err != nil {
		if errors.Is(err, ErrPaymentMethodUnavailable) {
			// The shopper sees the generic message only; RPC detail has
			// already been logged server-side.
			http.Error(w, ErrPaymentMethodUnavailable.Error(), http.StatusServiceUnavailable)
			return
		}
		if errors.Is(err, store.ErrAddressInUse) {
			http.Error(w, "payment already in progress for this order", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		IntentID:  intent.ID,
		Address:   intent.DestinationAddress,
		AmountXMR: xmr.FormatAtomic(intent.ExpectedAmount),
		ExpiresAt: intent.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "intent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "intent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	uri := fmt.Sprintf("monero:%s?tx_amount=%s", status.Address, status.AmountXMR)
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type webhookRequest struct {
	IntentID string `json:"intent_id"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.svc.Nudge(r.Context(), req.IntentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "intent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type healthResponse struct {
	Status         string `json:"status"`
	Wallet         string `json:"wallet"`
	CircuitBreaker string `json:"circuit_breaker"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Wallet: "ok", CircuitBreaker: "closed"}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := s.wallets.Get(ctx); err != nil {
		resp.Status = "degraded"
		resp.Wallet = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if s.breaker != nil && s.breaker.IsOpen() {
		resp.Status = "degraded"
		resp.CircuitBreaker = "open"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
