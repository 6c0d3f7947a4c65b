// Package ledger encodes calls against the on-chain signal registry and
// caches decoded entries for feedback queries. The registry exposes exactly
// four functions: post a signal, read the posting fee, list an author's
// signal ids, and resolve one signal by id.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/maxibitcat/aisignals/internal/signal"
)

const registryABIJSON = `[
 {"type":"function","name":"postSignal","stateMutability":"payable","inputs":[{"name":"strategy","type":"string"},{"name":"asset","type":"string"},{"name":"message","type":"string"},{"name":"direction","type":"uint8"},{"name":"leverage","type":"uint8"},{"name":"weight","type":"uint8"}],"outputs":[{"name":"id","type":"uint256"}]},
 {"type":"function","name":"postingFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"signalIdsByAuthor","stateMutability":"view","inputs":[{"name":"author","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
 {"type":"function","name":"getSignal","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"author","type":"address"},{"name":"strategy","type":"string"},{"name":"asset","type":"string"},{"name":"message","type":"string"},{"name":"direction","type":"uint8"},{"name":"leverage","type":"uint8"},{"name":"weight","type":"uint8"},{"name":"timestamp","type":"uint64"}]}
]`

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Entry is one immutable signal record as mined on the ledger.
type Entry struct {
	ID        *big.Int
	Author    common.Address
	Record    signal.Record
	Timestamp time.Time
}

// CallBackend executes read-only contract calls.
type CallBackend interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Contract binds the registry at one address.
type Contract struct {
	addr   common.Address
	caller CallBackend
}

// NewContract binds the registry.
func NewContract(addr common.Address, caller CallBackend) (*Contract, error) {
	if caller == nil {
		return nil, errors.New("call backend is required")
	}
	if addr == (common.Address{}) {
		return nil, errors.New("contract address is required")
	}
	return &Contract{addr: addr, caller: caller}, nil
}

// Address returns the bound registry address.
func (c *Contract) Address() common.Address { return c.addr }

// PostCalldata encodes the post-entry call for an already-validated record.
func (c *Contract) PostCalldata(rec signal.Record) ([]byte, error) {
	data, err := registryABI.Pack("postSignal",
		rec.Strategy, rec.Asset, rec.Message,
		uint8(rec.Direction), rec.Leverage, rec.Weight)
	if err != nil {
		return nil, fmt.Errorf("encode postSignal: %w", err)
	}
	return data, nil
}

// PostingFee reads the fee the registry charges per posted signal, in wei.
func (c *Contract) PostingFee(ctx context.Context) (*big.Int, error) {
	data, err := registryABI.Pack("postingFee")
	if err != nil {
		return nil, err
	}
	out, err := c.caller.CallContract(ctx, c.addr, data)
	if err != nil {
		return nil, fmt.Errorf("postingFee call: %w", err)
	}
	vals, err := registryABI.Unpack("postingFee", out)
	if err != nil {
		return nil, fmt.Errorf("decode postingFee: %w", err)
	}
	fee, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("postingFee returned unexpected type")
	}
	return fee, nil
}

// IDsByAuthor returns every signal id the account has posted, in posting
// order (oldest first).
func (c *Contract) IDsByAuthor(ctx context.Context, author common.Address) ([]*big.Int, error) {
	data, err := registryABI.Pack("signalIdsByAuthor", author)
	if err != nil {
		return nil, err
	}
	out, err := c.caller.CallContract(ctx, c.addr, data)
	if err != nil {
		return nil, fmt.Errorf("signalIdsByAuthor call: %w", err)
	}
	vals, err := registryABI.Unpack("signalIdsByAuthor", out)
	if err != nil {
		return nil, fmt.Errorf("decode signalIdsByAuthor: %w", err)
	}
	ids, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, errors.New("signalIdsByAuthor returned unexpected type")
	}
	return ids, nil
}

// EntryByID resolves one signal record.
func (c *Contract) EntryByID(ctx context.Context, id *big.Int) (*Entry, error) {
	if id == nil {
		return nil, errors.New("id is required")
	}
	data, err := registryABI.Pack("getSignal", id)
	if err != nil {
		return nil, err
	}
	out, err := c.caller.CallContract(ctx, c.addr, data)
	if err != nil {
		return nil, fmt.Errorf("getSignal(%s) call: %w", id, err)
	}
	vals, err := registryABI.Unpack("getSignal", out)
	if err != nil {
		return nil, fmt.Errorf("decode getSignal(%s): %w", id, err)
	}
	if len(vals) != 8 {
		return nil, fmt.Errorf("getSignal(%s) returned %d values", id, len(vals))
	}
	entry := &Entry{ID: new(big.Int).Set(id)}
	var ok bool
	if entry.Author, ok = vals[0].(common.Address); !ok {
		return nil, errors.New("getSignal: bad author field")
	}
	strategy, ok1 := vals[1].(string)
	asset, ok2 := vals[2].(string)
	message, ok3 := vals[3].(string)
	direction, ok4 := vals[4].(uint8)
	leverage, ok5 := vals[5].(uint8)
	weight, ok6 := vals[6].(uint8)
	ts, ok7 := vals[7].(uint64)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return nil, errors.New("getSignal: bad field types")
	}
	entry.Record = signal.Record{
		Strategy:  strategy,
		Asset:     asset,
		Message:   message,
		Direction: signal.Direction(direction),
		Leverage:  leverage,
		Weight:    weight,
	}
	entry.Timestamp = time.Unix(int64(ts), 0).UTC()
	return entry, nil
}
