package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Waiter polls the node until a submitted transaction is mined.
type Waiter struct {
	rpc      *ethclient.Client
	interval time.Duration
}

func NewWaiter(rpc *ethclient.Client) *Waiter {
	return &Waiter{
		rpc:      rpc,
		interval: time.Second,
	}
}

func (w *Waiter) WaitMined(ctx context.Context, txHash string) (bool, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			receipt, err := w.rpc.TransactionReceipt(ctx, hash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					continue
				}
				return false, fmt.Errorf("failed to get receipt: %w", err)
			}
			return receipt.Status == ethtypes.ReceiptStatusSuccessful, nil
		}
	}
}
