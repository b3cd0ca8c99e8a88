package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/xmrcheckout/reconciler/pkg/checkout"
	"github.com/xmrcheckout/reconciler/pkg/circuitbreaker"
	"github.com/xmrcheckout/reconciler/pkg/config"
	"github.com/xmrcheckout/reconciler/pkg/logger"
	"github.com/xmrcheckout/reconciler/pkg/models"
	"github.com/xmrcheckout/reconciler/pkg/rates"
	"github.com/xmrcheckout/reconciler/pkg/reconciler"
	"github.com/xmrcheckout/reconciler/pkg/scheduler"
	"github.com/xmrcheckout/reconciler/pkg/store"
	"github.com/xmrcheckout/reconciler/pkg/wallet"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		appLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open store at %s: %v", cfg.StorePath, err)
	}
	defer db.Close()

	wallets := wallet.NewManager(wallet.Config{
		URI:      cfg.Wallet.RPCURI,
		Username: cfg.Wallet.RPCUsername,
		Password: cfg.Wallet.RPCPassword,
		Timeout:  cfg.Wallet.Timeout,
	})

	rateProvider := buildRateProvider(cfg.Rates)

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
	)

	policy := reconciler.DefaultPolicy()
	policy.Reuse = cfg.Reconcile.ReusePolicy

	rec := reconciler.New(wallets, db, db, policy, appLogger)

	sched := scheduler.New(rec, breaker, scheduler.Config{
		ZeroconfInterval: cfg.Scheduler.ZeroconfInterval,
		SecuredInterval:  cfg.Scheduler.SecuredInterval,
		WorkerCount:      cfg.Scheduler.WorkerCount,
	}, appLogger)
	sched.Start(ctx)

	// Re-enqueue intents that were mid-flight when the process last
	// stopped, so a restart does not orphan open payment windows.
	pending, err := db.ListPendingIntents(ctx)
	if err != nil {
		log.Fatalf("Failed to list pending intents: %v", err)
	}
	for _, intent := range pending {
		sched.Enqueue(models.ReconcileJob{
			OrderID:               intent.OrderID,
			IntentID:              intent.ID,
			RequiredConfirmations: intent.RequiredConfirmations,
		})
	}
	if len(pending) > 0 {
		appLogger.Info("Re-enqueued %d pending intent(s) after restart", len(pending))
	}

	svc := checkout.NewService(wallets, db, rateProvider, sched, cfg.Reconcile,
		cfg.Wallet.AccountIndex, cfg.Rates.FiatCurrency, appLogger)
	server := checkout.NewServer(cfg.ServerPort, svc, wallets, breaker, appLogger)

	appLogger.Notice("Starting the reconciler service...")
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Checkout server failed: %v", err)
	}

	sched.Wait()
}

// buildRateProvider assembles the configured provider with its retry and
// cache wrappers.
func buildRateProvider(cfg config.RatesConfig) rates.Provider {
	var provider rates.Provider
	switch cfg.Provider {
	case "coingecko":
		provider = rates.NewCoinGecko(cfg.FiatCurrency, cfg.Timeout)
	default:
		provider = rates.NewKraken("XMR"+strings.ToUpper(cfg.FiatCurrency), cfg.Timeout)
	}
	return rates.WithCache(rates.WithRetry(provider, cfg.MaxTries, cfg.Timeout/5), cfg.CacheTTL)
}
