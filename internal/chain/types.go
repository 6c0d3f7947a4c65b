package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNotFound is returned for lookups the endpoint answered with null.
var ErrNotFound = errors.New("not found")

// CallMsg describes a contract call or gas estimation request.
type CallMsg struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Data     []byte
	GasPrice *big.Int
	// Fee-market fields, used only when GasPrice is nil.
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Receipt is the subset of a transaction receipt the tracker needs.
type Receipt struct {
	TxHash      common.Hash `json:"transactionHash"`
	Status      uint64      `json:"-"`
	BlockNumber uint64      `json:"-"`
	GasUsed     uint64      `json:"-"`
}

type rpcReceipt struct {
	TxHash      common.Hash     `json:"transactionHash"`
	Status      hexutil.Uint64  `json:"status"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	GasUsed     hexutil.Uint64  `json:"gasUsed"`
}

func (r *rpcReceipt) toReceipt() *Receipt {
	out := &Receipt{
		TxHash:  r.TxHash,
		Status:  uint64(r.Status),
		GasUsed: uint64(r.GasUsed),
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.ToInt().Uint64()
	}
	return out
}

// TxStatus is the endpoint's current view of a broadcast transaction.
type TxStatus struct {
	Found bool
	Mined bool
}

func toCallArg(msg CallMsg) map[string]interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
	}
	if msg.To != nil {
		arg["to"] = *msg.To
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	} else {
		if msg.GasFeeCap != nil {
			arg["maxFeePerGas"] = (*hexutil.Big)(msg.GasFeeCap)
		}
		if msg.GasTipCap != nil {
			arg["maxPriorityFeePerGas"] = (*hexutil.Big)(msg.GasTipCap)
		}
	}
	return arg
}
