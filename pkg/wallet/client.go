package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/icholy/digest"

	"github.com/xmrcheckout/reconciler/pkg/models"
)

// DefaultRequestTimeout bounds a single wallet RPC call.
const DefaultRequestTimeout = 30 * time.Second

// Config holds the connection parameters for a monero-wallet-rpc instance.
type Config struct {
	// URI is the wallet RPC endpoint, e.g. "http://127.0.0.1:18083/json_rpc".
	URI      string
	Username string
	Password string
	Timeout  time.Duration
}

// Client is a monero-wallet-rpc JSON-RPC client.
type Client struct {
	http *resty.Client
	uri  string
}

// rpcRequest is the JSON-RPC 2.0 envelope monero-wallet-rpc expects.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ Provider = (*Client)(nil)

// NewClient creates a wallet RPC client. monero-wallet-rpc authenticates
// with HTTP digest when started with --rpc-login, so credentials install a
// digest round tripper.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	httpClient := resty.New().SetTimeout(timeout)
	if cfg.Username != "" {
		httpClient.SetTransport(&digest.Transport{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	return &Client{
		http: httpClient,
		uri:  cfg.URI,
	}
}

// call performs one JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	var body rpcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rpcRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params}).
		SetResult(&body).
		Post(c.uri)
	if err != nil {
		return classifyError(err, 0)
	}
	if resp.StatusCode() != http.StatusOK {
		return classifyError(fmt.Errorf("%s returned status %d", method, resp.StatusCode()), resp.StatusCode())
	}
	if body.Error != nil {
		return rpcError(method, body.Error.Code, body.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(body.Result, out); err != nil {
			return rpcError(method, 0, fmt.Sprintf("malformed result: %v", err))
		}
	}
	return nil
}

// CreateSubaddress generates a fresh subaddress under the account.
func (c *Client) CreateSubaddress(ctx context.Context, account uint64, label string) (Subaddress, error) {
	var result struct {
		Address      string `json:"address"`
		AddressIndex uint64 `json:"address_index"`
	}
	params := map[string]interface{}{
		"account_index": account,
		"label":         label,
	}
	if err := c.call(ctx, "create_address", params, &result); err != nil {
		return Subaddress{}, err
	}
	return Subaddress{Address: result.Address, Index: result.AddressIndex}, nil
}

// GetAddressIndex resolves an address back to its account/subaddress indices.
func (c *Client) GetAddressIndex(ctx context.Context, address string) (AddressIndex, error) {
	var result struct {
		Index struct {
			Major uint64 `json:"major"`
			Minor uint64 `json:"minor"`
		} `json:"index"`
	}
	params := map[string]interface{}{"address": address}
	if err := c.call(ctx, "get_address_index", params, &result); err != nil {
		return AddressIndex{}, err
	}
	return AddressIndex{Account: result.Index.Major, Index: result.Index.Minor}, nil
}

// IncomingTransfers lists incoming transfers to one subaddress. Mempool
// transactions are included; they carry no confirmation count.
func (c *Client) IncomingTransfers(ctx context.Context, account uint64, subaddressIndex uint64) ([]models.IncomingTransfer, error) {
	var result struct {
		In   []models.IncomingTransfer `json:"in"`
		Pool []models.IncomingTransfer `json:"pool"`
	}
	params := map[string]interface{}{
		"in":               true,
		"pool":             true,
		"account_index":    account,
		"subaddr_indices":  []uint64{subaddressIndex},
		"filter_by_height": false,
	}
	if err := c.call(ctx, "get_transfers", params, &result); err != nil {
		return nil, err
	}

	transfers := make([]models.IncomingTransfer, 0, len(result.In)+len(result.Pool))
	transfers = append(transfers, result.In...)
	for _, t := range result.Pool {
		// A pool transaction is not in any block yet; drop any count the
		// RPC reports so it stays unconfirmed.
		t.Confirmations = nil
		transfers = append(transfers, t)
	}
	return transfers, nil
}

// Height returns the wallet's current blockchain height.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := c.call(ctx, "get_height", nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

// CheckConnection verifies the RPC is reachable and our credentials work.
func (c *Client) CheckConnection(ctx context.Context) error {
	_, err := c.Height(ctx)
	return err
}
