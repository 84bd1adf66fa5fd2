package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vultisig/earn/types"
)

// Vault reads the native venue: an ERC-4626-style savings vault. Supply
// quotes come from previewDeposit, withdraw conversions from previewWithdraw;
// capacity/liquidity from maxDeposit/maxWithdraw. Redemption is 1:1 against
// the vault's own rate, so price impact is always zero.
type Vault struct {
	rpc     *ethclient.Client
	address common.Address
	account common.Address
}

func NewVault(rpc *ethclient.Client, address, account common.Address) *Vault {
	return &Vault{
		rpc:     rpc,
		address: address,
		account: account,
	}
}

func (v *Vault) callView(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := vaultABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := v.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &v.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	return unpackBigInt(vaultABI, method, output)
}

func (v *Vault) Quote(ctx context.Context, direction types.Direction, amount *big.Int) (*types.Quote, error) {
	if direction == types.Supply {
		shares, err := v.callView(ctx, "previewDeposit", amount)
		if err != nil {
			return nil, fmt.Errorf("failed to preview deposit: %w", err)
		}
		return &types.Quote{
			OutputAmount:   shares,
			PriceImpactBps: 0,
		}, nil
	}

	shares, err := v.callView(ctx, "previewWithdraw", amount)
	if err != nil {
		return nil, fmt.Errorf("failed to preview withdraw: %w", err)
	}
	return &types.Quote{
		// Exact-asset redemption: the user receives what they asked for
		// and burns the implied shares.
		OutputAmount:    new(big.Int).Set(amount),
		PriceImpactBps:  0,
		AuxiliaryAmount: shares,
	}, nil
}

func (v *Vault) State(ctx context.Context, direction types.Direction) (types.VenueState, error) {
	if direction == types.Supply {
		capacity, err := v.callView(ctx, "maxDeposit", v.account)
		if err != nil {
			return types.VenueState{}, fmt.Errorf("failed to read deposit capacity: %w", err)
		}
		if capacity.Sign() == 0 {
			return types.VenueState{
				Available:     false,
				MaxAmount:     capacity,
				BlockedReason: types.BlockedCapacityReached,
			}, nil
		}
		return types.VenueState{Available: true, MaxAmount: capacity}, nil
	}

	liquidity, err := v.callView(ctx, "maxWithdraw", v.account)
	if err != nil {
		return types.VenueState{}, fmt.Errorf("failed to read withdraw liquidity: %w", err)
	}
	if liquidity.Sign() == 0 {
		return types.VenueState{
			Available:     false,
			MaxAmount:     liquidity,
			BlockedReason: types.BlockedLiquidityExhausted,
		}, nil
	}
	return types.VenueState{Available: true, MaxAmount: liquidity}, nil
}
