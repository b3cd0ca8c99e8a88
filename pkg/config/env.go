package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/xmrcheckout/reconciler/pkg/logger"
	"github.com/xmrcheckout/reconciler/pkg/reconciler"
	"github.com/xmrcheckout/reconciler/pkg/wallet"
)

const (
	// DefaultWalletAccountIndex is the wallet account subaddresses are
	// generated under
	DefaultWalletAccountIndex = 0

	// DefaultWalletTimeoutSeconds bounds a single wallet RPC call
	DefaultWalletTimeoutSeconds = 30

	// DefaultRateProvider is the exchange rate feed used at checkout
	DefaultRateProvider = "kraken"

	// DefaultFiatCurrency is the currency order totals are quoted in
	DefaultFiatCurrency = "usd"

	// DefaultRateCacheTTLMinutes is the staleness window for cached rates
	DefaultRateCacheTTLMinutes = 5

	// DefaultRateMaxTries is the number of attempts per rate fetch
	DefaultRateMaxTries = 3

	// DefaultRateTimeoutSeconds bounds a single rate API call
	DefaultRateTimeoutSeconds = 10

	// DefaultRequiredConfirmations is the confirmation floor for new intents
	DefaultRequiredConfirmations = 10

	// DefaultPaymentWindowMinutes is how long a customer has to pay
	DefaultPaymentWindowMinutes = 90

	// DefaultZeroconfIntervalSeconds is the fast lane polling interval
	DefaultZeroconfIntervalSeconds = 15

	// DefaultSecuredIntervalSeconds is the slow lane polling interval
	DefaultSecuredIntervalSeconds = 120

	// DefaultWorkerCount defines the default number of workers per lane
	DefaultWorkerCount = 5

	// DefaultServerPort defines the default port for the HTTP server
	DefaultServerPort = "8080"

	// DefaultStorePath is the SQLite database location
	DefaultStorePath = "reconciler.db"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in minutes
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in minutes
	DefaultCircuitBreakerReset = 15
)

// GetEnvWalletConfig reads the wallet RPC connection parameters
func GetEnvWalletConfig() (WalletConfig, error) {
	uri := os.Getenv("WALLET_RPC_URI")
	if uri != "" {
		if _, err := url.Parse(uri); err != nil {
			return WalletConfig{}, fmt.Errorf("invalid WALLET_RPC_URI: %v", err)
		}
	}

	account, err := getEnvUint("WALLET_ACCOUNT_INDEX", DefaultWalletAccountIndex)
	if err != nil {
		return WalletConfig{}, err
	}

	timeoutSec, err := getEnvInt("WALLET_RPC_TIMEOUT_SECONDS", DefaultWalletTimeoutSeconds)
	if err != nil {
		return WalletConfig{}, err
	}
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = wallet.DefaultRequestTimeout
	}

	return WalletConfig{
		RPCURI:       uri,
		RPCUsername:  os.Getenv("WALLET_RPC_USERNAME"),
		RPCPassword:  os.Getenv("WALLET_RPC_PASSWORD"),
		AccountIndex: account,
		Timeout:      timeout,
	}, nil
}

// GetEnvRatesConfig reads the exchange rate provider configuration
func GetEnvRatesConfig() (RatesConfig, error) {
	provider := os.Getenv("RATE_PROVIDER")
	if provider == "" {
		provider = DefaultRateProvider
	}
	switch provider {
	case "kraken", "coingecko":
	default:
		return RatesConfig{}, fmt.Errorf("unknown RATE_PROVIDER %q, expected kraken or coingecko", provider)
	}

	currency := os.Getenv("FIAT_CURRENCY")
	if currency == "" {
		currency = DefaultFiatCurrency
	}

	ttlMin, err := getEnvInt("RATE_CACHE_TTL_MINUTES", DefaultRateCacheTTLMinutes)
	if err != nil {
		return RatesConfig{}, err
	}

	maxTries, err := getEnvInt("RATE_MAX_TRIES", DefaultRateMaxTries)
	if err != nil {
		return RatesConfig{}, err
	}
	if maxTries < 1 {
		maxTries = 1
	}

	timeoutSec, err := getEnvInt("RATE_TIMEOUT_SECONDS", DefaultRateTimeoutSeconds)
	if err != nil {
		return RatesConfig{}, err
	}

	return RatesConfig{
		Provider:     provider,
		FiatCurrency: currency,
		CacheTTL:     time.Duration(ttlMin) * time.Minute,
		MaxTries:     uint(maxTries),
		Timeout:      time.Duration(timeoutSec) * time.Second,
	}, nil
}

// GetEnvReconcileConfig reads the reconciliation policy
func GetEnvReconcileConfig() (ReconcileConfig, error) {
	confirmations, err := getEnvUint("REQUIRED_CONFIRMATIONS", DefaultRequiredConfirmations)
	if err != nil {
		return ReconcileConfig{}, err
	}

	windowMin, err := getEnvInt("PAYMENT_WINDOW_MINUTES", DefaultPaymentWindowMinutes)
	if err != nil {
		return ReconcileConfig{}, err
	}

	reuse, err := reconciler.ParseReusePolicy(os.Getenv("RECONCILE_REUSE_POLICY"))
	if err != nil {
		return ReconcileConfig{}, err
	}

	return ReconcileConfig{
		RequiredConfirmations: confirmations,
		PaymentWindow:         time.Duration(windowMin) * time.Minute,
		ReusePolicy:           reuse,
	}, nil
}

// GetEnvSchedulerConfig reads the polling lane configuration
func GetEnvSchedulerConfig() (SchedulerConfig, error) {
	zeroconfSec, err := getEnvInt("ZEROCONF_INTERVAL_SECONDS", DefaultZeroconfIntervalSeconds)
	if err != nil {
		return SchedulerConfig{}, err
	}

	securedSec, err := getEnvInt("SECURED_INTERVAL_SECONDS", DefaultSecuredIntervalSeconds)
	if err != nil {
		return SchedulerConfig{}, err
	}

	workerCount, err := getEnvInt("WORKER_COUNT", DefaultWorkerCount)
	if err != nil {
		return SchedulerConfig{}, err
	}
	if workerCount < 1 {
		return SchedulerConfig{}, fmt.Errorf("WORKER_COUNT must be at least 1")
	}

	return SchedulerConfig{
		ZeroconfInterval: time.Duration(zeroconfSec) * time.Second,
		SecuredInterval:  time.Duration(securedSec) * time.Second,
		WorkerCount:      workerCount,
	}, nil
}

// GetEnvCircuitBreakerEnabled reads whether the circuit breaker is enabled
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold reads the failure threshold
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow reads the failure window
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	minutes, err := getEnvInt("CIRCUIT_BREAKER_WINDOW_MINUTES", DefaultCircuitBreakerWindow)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

// GetEnvCircuitBreakerReset reads the reset timeout
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	minutes, err := getEnvInt("CIRCUIT_BREAKER_RESET_MINUTES", DefaultCircuitBreakerReset)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

// GetEnvStorePath reads the SQLite database path
func GetEnvStorePath() (string, error) {
	path := os.Getenv("STORE_PATH")
	if path == "" {
		path = DefaultStorePath
	}
	return path, nil
}

// GetEnvServerPort reads the HTTP server port
func GetEnvServerPort() (string, error) {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		return DefaultServerPort, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid SERVER_PORT value: %s", port)
	}
	return port, nil
}

// GetEnvLogLevel reads the log level
func GetEnvLogLevel() (logger.Level, error) {
	switch os.Getenv("LOG_LEVEL") {
	case "", "info":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s", os.Getenv("LOG_LEVEL"))
}

// GetEnvLogColoring reads whether log coloring is enabled
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

func getEnvInt(name string, defaultValue int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", name, raw)
	}
	return value, nil
}

func getEnvUint(name string, defaultValue uint64) (uint64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", name, raw)
	}
	return value, nil
}

func getEnvBool(name string, defaultValue bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %s", name, raw)
	}
	return value, nil
}
