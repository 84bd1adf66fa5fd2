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

// Accounts reads the user's token balances and ERC-20 allowances for the
// venue contracts.
type Accounts struct {
	rpc     *ethclient.Client
	account common.Address
	asset   common.Address
	share   common.Address
	vault   common.Address
	router  common.Address
}

func NewAccounts(rpc *ethclient.Client, account, asset, share, vault, router common.Address) *Accounts {
	return &Accounts{
		rpc:     rpc,
		account: account,
		asset:   asset,
		share:   share,
		vault:   vault,
		router:  router,
	}
}

func (a *Accounts) callERC20(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := a.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	return unpackBigInt(erc20ABI, method, output)
}

// SpendTarget resolves which token is spent and who must be approved for a
// venue and direction. ok is false when no approval path exists (a native
// withdraw burns vault shares directly).
func (a *Accounts) SpendTarget(direction types.Direction, venue types.Venue) (token, spender common.Address, ok bool) {
	if direction == types.Supply {
		if venue == types.Native {
			return a.asset, a.vault, true
		}
		return a.asset, a.router, true
	}
	if venue == types.Pool {
		return a.share, a.router, true
	}
	return common.Address{}, common.Address{}, false
}

// Allowance returns the current allowance for the spend path of (direction,
// venue). Nil means no approval is ever required on that path.
func (a *Accounts) Allowance(ctx context.Context, direction types.Direction, venue types.Venue) (*big.Int, error) {
	token, spender, ok := a.SpendTarget(direction, venue)
	if !ok {
		return nil, nil
	}

	allowance, err := a.callERC20(ctx, token, "allowance", a.account, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}
	return allowance, nil
}

// AssetBalance returns the user's underlying-asset balance.
func (a *Accounts) AssetBalance(ctx context.Context) (*big.Int, error) {
	balance, err := a.callERC20(ctx, a.asset, "balanceOf", a.account)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset balance: %w", err)
	}
	return balance, nil
}
