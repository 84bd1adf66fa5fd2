package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vultisig/earn/orchestrator"
	"github.com/vultisig/earn/routing"
	"github.com/vultisig/earn/types"
)

const (
	slippageBips = 50
	txDeadline   = 20 * time.Minute
)

// Builder turns plan steps into concrete contract calls.
type Builder struct {
	accounts *Accounts
	now      func() time.Time
}

func NewBuilder(accounts *Accounts) *Builder {
	return &Builder{
		accounts: accounts,
		now:      time.Now,
	}
}

// BuildApprove builds the ERC-20 approve for the spend path of (direction,
// venue). The approval is exact-amount, not unlimited.
func (b *Builder) BuildApprove(direction types.Direction, venue types.Venue, amount *big.Int) (orchestrator.Call, error) {
	token, spender, ok := b.accounts.SpendTarget(direction, venue)
	if !ok {
		return orchestrator.Call{}, fmt.Errorf("no approval path for %s via %s", direction, venue)
	}

	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return orchestrator.Call{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return orchestrator.Call{
		To:    token,
		Value: big.NewInt(0),
		Data:  data,
	}, nil
}

// BuildAction builds the supply/withdraw call for the selected venue.
func (b *Builder) BuildAction(direction types.Direction, sel routing.Selection, amount *big.Int) (orchestrator.Call, error) {
	if !sel.Executable() {
		return orchestrator.Call{}, fmt.Errorf("selection is not executable")
	}

	if sel.Provider == types.Native {
		return b.buildVaultCall(direction, amount)
	}
	return b.buildPoolCall(direction, sel.Quote, amount)
}

func (b *Builder) buildVaultCall(direction types.Direction, amount *big.Int) (orchestrator.Call, error) {
	var data []byte
	var err error
	if direction == types.Supply {
		data, err = vaultABI.Pack("deposit", amount, b.accounts.account)
	} else {
		data, err = vaultABI.Pack("withdraw", amount, b.accounts.account, b.accounts.account)
	}
	if err != nil {
		return orchestrator.Call{}, fmt.Errorf("failed to pack vault call: %w", err)
	}
	return orchestrator.Call{
		To:    b.accounts.vault,
		Value: big.NewInt(0),
		Data:  data,
	}, nil
}

func (b *Builder) buildPoolCall(direction types.Direction, quote *types.Quote, amount *big.Int) (orchestrator.Call, error) {
	if quote == nil || quote.OutputAmount == nil {
		return orchestrator.Call{}, fmt.Errorf("pool action requires a quote")
	}

	var amountIn *big.Int
	var path []common.Address
	if direction == types.Supply {
		amountIn = amount
		path = []common.Address{b.accounts.asset, b.accounts.share}
	} else {
		if quote.AuxiliaryAmount == nil {
			return orchestrator.Call{}, fmt.Errorf("pool withdraw requires the share amount from the quote")
		}
		amountIn = quote.AuxiliaryAmount
		path = []common.Address{b.accounts.share, b.accounts.asset}
	}

	amountOutMin := deductSlippage(quote.OutputAmount, slippageBips)
	deadline := big.NewInt(b.now().Add(txDeadline).Unix())

	data, err := routerABI.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, b.accounts.account, deadline)
	if err != nil {
		return orchestrator.Call{}, fmt.Errorf("failed to pack swap: %w", err)
	}
	return orchestrator.Call{
		To:    b.accounts.router,
		Value: big.NewInt(0),
		Data:  data,
	}, nil
}

func deductSlippage(amount *big.Int, bips uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}

	bipsTotal := big.NewInt(10000)
	result := new(big.Int).Sub(bipsTotal, new(big.Int).SetUint64(bips))
	result.Mul(result, amount)
	result.Div(result, bipsTotal)
	return result
}
