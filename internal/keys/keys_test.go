package keys

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known development key; never funded on a real network.
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestFromHexDerivesAddress(t *testing.T) {
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	for _, in := range []string{devKey, "0x" + devKey, "  " + devKey + "\n"} {
		key, err := FromHex(in)
		if err != nil {
			t.Fatalf("FromHex(%q) error: %v", in[:8], err)
		}
		if key.Address() != want {
			t.Fatalf("expected %s, got %s", want.Hex(), key.Address().Hex())
		}
	}
}

func TestFromHexDoesNotEchoKeyMaterial(t *testing.T) {
	bad := "deadbeef"
	_, err := FromHex(bad)
	if err == nil {
		t.Fatalf("expected error for short key")
	}
	if strings.Contains(err.Error(), bad) {
		t.Fatalf("error message echoes key material: %v", err)
	}
	if _, err := FromHex(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestSignTx(t *testing.T) {
	key, err := FromHex(devKey)
	if err != nil {
		t.Fatalf("FromHex error: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      21_000,
		To:       &to,
		Value:    big.NewInt(1),
	})
	chainID := big.NewInt(1337)
	signed, err := key.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("SignTx error: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != key.Address() {
		t.Fatalf("expected sender %s, got %s", key.Address().Hex(), sender.Hex())
	}
}

func TestSignTxRejectsMissingChainID(t *testing.T) {
	key, _ := FromHex(devKey)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := types.NewTx(&types.LegacyTx{To: &to, GasPrice: big.NewInt(1), Gas: 21_000, Value: big.NewInt(0)})
	if _, err := key.SignTx(tx, nil); err == nil {
		t.Fatalf("expected error for nil chain id")
	}
	if _, err := key.SignTx(nil, big.NewInt(1)); err == nil {
		t.Fatalf("expected error for nil transaction")
	}
}
