package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/xmrcheckout/reconciler/pkg/logger"
	"github.com/xmrcheckout/reconciler/pkg/reconciler"
)

// Config holds the configuration for the reconciler service
type Config struct {
	Wallet         WalletConfig
	Rates          RatesConfig
	Reconcile      ReconcileConfig
	Scheduler      SchedulerConfig
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
	StorePath      string
	ServerPort     string
}

// WalletConfig holds the monero-wallet-rpc connection parameters
type WalletConfig struct {
	RPCURI       string
	RPCUsername  string
	RPCPassword  string
	AccountIndex uint64
	Timeout      time.Duration
}

// RatesConfig holds exchange rate provider configuration
type RatesConfig struct {
	Provider     string
	FiatCurrency string
	CacheTTL     time.Duration
	MaxTries     uint
	Timeout      time.Duration
}

// ReconcileConfig holds the payment reconciliation policy
type ReconcileConfig struct {
	RequiredConfirmations uint64
	PaymentWindow         time.Duration
	ReusePolicy           reconciler.ReusePolicy
}

// SchedulerConfig holds the polling lane configuration
type SchedulerConfig struct {
	ZeroconfInterval time.Duration
	SecuredInterval  time.Duration
	WorkerCount      int
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	walletCfg, err := GetEnvWalletConfig()
	if err != nil {
		return nil, err
	}

	ratesCfg, err := GetEnvRatesConfig()
	if err != nil {
		return nil, err
	}

	reconcileCfg, err := GetEnvReconcileConfig()
	if err != nil {
		return nil, err
	}

	schedulerCfg, err := GetEnvSchedulerConfig()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	storePath, err := GetEnvStorePath()
	if err != nil {
		return nil, err
	}

	serverPort, err := GetEnvServerPort()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Wallet:    walletCfg,
		Rates:     ratesCfg,
		Reconcile: reconcileCfg,
		Scheduler: schedulerCfg,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
		StorePath:  storePath,
		ServerPort: serverPort,
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Wallet.RPCURI == "" {
		return fmt.Errorf("WALLET_RPC_URI environment variable is required")
	}
	if cfg.Rates.FiatCurrency == "" {
		return fmt.Errorf("a fiat currency is required")
	}
	if cfg.Reconcile.PaymentWindow <= 0 {
		return fmt.Errorf("payment window must be positive")
	}
	return nil
}
