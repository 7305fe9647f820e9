// Package chain reads swap outcomes straight from an EVM JSON-RPC node.
// It never signs or sends transactions.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

const (
	StatusSuccess  = "success"
	StatusReverted = "reverted"
	StatusPending  = "pending"
)

var explorers = map[string]string{
	"base":     "https://basescan.org/tx/",
	"ethereum": "https://etherscan.io/tx/",
	"polygon":  "https://polygonscan.com/tx/",
	"arbitrum": "https://arbiscan.io/tx/",
}

type rpcReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Receipt is the on-chain outcome of a transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

type Verifier struct {
	rpc      rpcReader
	closer   func()
	explorer string
}

func Dial(ctx context.Context, rpcURL, chainName string) (*Verifier, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	return &Verifier{rpc: c, closer: c.Close, explorer: explorers[chainName]}, nil
}

func (v *Verifier) Close() {
	if v.closer != nil {
		v.closer()
	}
}

// Verify looks up the receipt for txHash. A transaction the node does not
// know yet reports StatusPending.
func (v *Verifier) Verify(ctx context.Context, txHash string) (Receipt, error) {
	if !validHash(txHash) {
		return Receipt{}, fmt.Errorf("invalid tx hash %q", txHash)
	}
	h := common.HexToHash(txHash)
	out := Receipt{TxHash: h.Hex()}
	if v.explorer != "" {
		out.ExplorerURL = v.explorer + h.Hex()
	}

	r, err := v.rpc.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		out.Status = StatusPending
		return out, nil
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt %s: %w", h.Hex(), err)
	}

	out.Status = StatusReverted
	if r.Status == types.ReceiptStatusSuccessful {
		out.Status = StatusSuccess
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	out.GasUsed = r.GasUsed
	return out, nil
}

// NativeBalance returns the address's native coin balance in whole units.
func (v *Verifier) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address %q", address)
	}
	wei, err := v.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", address, err)
	}
	return decimal.NewFromBigInt(wei, 0).Div(decimal.NewFromInt(params.Ether)), nil
}

func validHash(s string) bool {
	if len(s) != 2+2*common.HashLength || (s[:2] != "0x" && s[:2] != "0X") {
		return false
	}
	for _, c := range s[2:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
