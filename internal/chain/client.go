// Package chain wraps the raw JSON-RPC transport with the typed endpoint
// calls the submission pipeline needs, and resolves per-session chain
// parameters (chain id, fee mode) at most once each.
package chain

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/maxibitcat/aisignals/internal/rpc"
)

// Client issues typed calls against one configured endpoint.
type Client struct {
	rpc *rpc.Client

	session session
}

// NewClient wraps the transport. cfg carries the operator overrides the
// session resolver honors.
func NewClient(transport *rpc.Client, cfg SessionConfig) *Client {
	return &Client{rpc: transport, session: session{cfg: cfg}}
}

// Transport exposes the underlying transport for diagnostics.
func (c *Client) Transport() *rpc.Client { return c.rpc }

// ChainID queries eth_chainId directly, bypassing the session cache.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var out hexutil.Big
	if err := c.rpc.Call(ctx, &out, "eth_chainId"); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

// BlockNumber returns the endpoint's latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var out hexutil.Uint64
	if err := c.rpc.Call(ctx, &out, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// SuggestGasPrice returns the endpoint's suggested legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out hexutil.Big
	if err := c.rpc.Call(ctx, &out, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

type feeHistory struct {
	BaseFeePerGas []*hexutil.Big `json:"baseFeePerGas"`
}

// LatestBaseFee returns the next block's base fee via a one-block fee
// history query. Failure of this call on a legacy-only endpoint is how the
// session resolver detects the fee mode.
func (c *Client) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	var out feeHistory
	if err := c.rpc.Call(ctx, &out, "eth_feeHistory", hexutil.Uint64(1), "latest", []float64{}); err != nil {
		return nil, err
	}
	if len(out.BaseFeePerGas) == 0 || out.BaseFeePerGas[len(out.BaseFeePerGas)-1] == nil {
		return nil, &rpc.RPCError{Code: -32602, Message: "feeHistory returned no base fees", Method: "eth_feeHistory"}
	}
	return out.BaseFeePerGas[len(out.BaseFeePerGas)-1].ToInt(), nil
}

// EstimateGas asks the endpoint for a gas estimate.
func (c *Client) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	var out hexutil.Uint64
	if err := c.rpc.Call(ctx, &out, "eth_estimateGas", toCallArg(msg)); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// SendRawTransaction broadcasts a signed payload and returns the hash the
// endpoint reports. A returned hash means "accepted for broadcast", not
// "mined", and on some endpoints not even "retained".
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var out common.Hash
	if err := c.rpc.Call(ctx, &out, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, err
	}
	return out, nil
}

type rpcTransaction struct {
	Hash        common.Hash  `json:"hash"`
	BlockNumber *hexutil.Big `json:"blockNumber"`
}

// TransactionStatus looks a transaction up by hash and reports whether the
// endpoint knows it at all, and if so whether it has been mined.
func (c *Client) TransactionStatus(ctx context.Context, hash common.Hash) (TxStatus, error) {
	var raw json.RawMessage
	if err := c.rpc.Call(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return TxStatus{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return TxStatus{}, nil
	}
	var tx rpcTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return TxStatus{}, err
	}
	return TxStatus{Found: true, Mined: tx.BlockNumber != nil}, nil
}

// TransactionReceipt returns the receipt for a mined transaction, or
// ErrNotFound while it is still pending or unknown.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var raw json.RawMessage
	if err := c.rpc.Call(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotFound
	}
	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r.toReceipt(), nil
}

// BalanceAt returns the account's latest balance in wei.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var out hexutil.Big
	if err := c.rpc.Call(ctx, &out, "eth_getBalance", account, "latest"); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

// CallContract executes a read-only contract call at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	call := map[string]string{
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}
	var out hexutil.Bytes
	if err := c.rpc.Call(ctx, &out, "eth_call", call, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// TransactionCount queries eth_getTransactionCount. blockArg may be a tag
// string ("pending", "latest"), an explicit block number, or nil to omit
// the argument entirely; the nonce allocator's fallback ladder walks these
// shapes because endpoints disagree on which they accept.
func (c *Client) TransactionCount(ctx context.Context, account common.Address, blockArg interface{}) (uint64, error) {
	var out hexutil.Uint64
	var err error
	if blockArg == nil {
		err = c.rpc.Call(ctx, &out, "eth_getTransactionCount", account)
	} else {
		err = c.rpc.Call(ctx, &out, "eth_getTransactionCount", account, blockArg)
	}
	if err != nil {
		return 0, err
	}
	return uint64(out), nil
}
