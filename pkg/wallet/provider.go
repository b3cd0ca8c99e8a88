// Package wallet talks to a monero-wallet-rpc instance. It owns the
// JSON-RPC transport, digest authentication, and the re-classification of
// RPC failures into the transport error taxonomy the reconciler consumes.
package wallet

import (
	"context"

	"github.com/xmrcheckout/reconciler/pkg/models"
)

// Subaddress is a one-time destination address generated for an intent.
type Subaddress struct {
	Address string
	Index   uint64
}

// AddressIndex locates an address within the wallet's account tree.
type AddressIndex struct {
	Account uint64
	Index   uint64
}

// Provider is the wallet surface the service depends on. The production
// implementation is Client; tests substitute their own.
type Provider interface {
	// CreateSubaddress generates a fresh subaddress under the account.
	CreateSubaddress(ctx context.Context, account uint64, label string) (Subaddress, error)

	// GetAddressIndex resolves an address back to its account/subaddress indices.
	GetAddressIndex(ctx context.Context, address string) (AddressIndex, error)

	// IncomingTransfers lists incoming transfers to one subaddress,
	// including unconfirmed mempool transactions.
	IncomingTransfers(ctx context.Context, account uint64, subaddressIndex uint64) ([]models.IncomingTransfer, error)

	// Height returns the wallet's current blockchain height.
	Height(ctx context.Context) (uint64, error)
}
