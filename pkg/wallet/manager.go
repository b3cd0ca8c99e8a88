package wallet

import (
	"context"
	"sync"

	"github.com/xmrcheckout/reconciler/pkg/models"
)

// Manager owns the process-wide wallet client. The client is cached across
// reconciliation passes; when the RPC configuration changes the cached
// client is discarded and rebuilt, and connectivity is re-checked before
// the new client is handed out.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	client *Client
}

// NewManager creates a manager for the given RPC configuration.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Get returns the cached client, building it on first use.
func (m *Manager) Get(ctx context.Context) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		client := NewClient(m.cfg)
		if err := client.CheckConnection(ctx); err != nil {
			return nil, err
		}
		m.client = client
	}
	return m.client, nil
}

// Reload swaps in a new configuration. The cached client is dropped only if
// the connection parameters actually changed.
func (m *Manager) Reload(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.cfg == cfg {
		return nil
	}

	client := NewClient(cfg)
	if err := client.CheckConnection(ctx); err != nil {
		return err
	}

	m.cfg = cfg
	m.client = client
	return nil
}

// The manager itself satisfies Provider by delegating to the cached
// client, so callers need not distinguish first use from steady state.
var _ Provider = (*Manager)(nil)

func (m *Manager) CreateSubaddress(ctx context.Context, account uint64, label string) (Subaddress, error) {
	client, err := m.Get(ctx)
	if err != nil {
		return Subaddress{}, err
	}
	return client.CreateSubaddress(ctx, account, label)
}

func (m *Manager) GetAddressIndex(ctx context.Context, address string) (AddressIndex, error) {
	client, err := m.Get(ctx)
	if err != nil {
		return AddressIndex{}, err
	}
	return client.GetAddressIndex(ctx, address)
}

func (m *Manager) IncomingTransfers(ctx context.Context, account uint64, subaddressIndex uint64) ([]models.IncomingTransfer, error) {
	client, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return client.IncomingTransfers(ctx, account, subaddressIndex)
}

func (m *Manager) Height(ctx context.Context) (uint64, error) {
	client, err := m.Get(ctx)
	if err != nil {
		return 0, err
	}
	return client.Height(ctx)
}
