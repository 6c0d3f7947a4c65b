// Package keys holds the single signing key this client custodies. The key
// never leaves the process: signing is local and only signed payloads go
// over the wire.
package keys

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key is a loaded secp256k1 private key and its derived account address.
type Key struct {
	priv *ecdsa.PrivateKey
	addr common.Address
}

// FromHex parses a hex-encoded private key, with or without a 0x prefix.
func FromHex(hexKey string) (*Key, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, errors.New("private key is empty")
	}
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.New("invalid private key")
	}
	return &Key{priv: priv, addr: crypto.PubkeyToAddress(priv.PublicKey)}, nil
}

// Address returns the account address derived from the key.
func (k *Key) Address() common.Address { return k.addr }

// SignTx signs tx for the given chain id.
func (k *Key) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if tx == nil {
		return nil, errors.New("transaction is nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required for signing")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), k.priv)
}
