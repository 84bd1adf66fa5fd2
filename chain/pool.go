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

// Pool reads the external venue: a V2-style AMM pool trading the underlying
// asset against the vault's share token. Outputs come from the router's
// getAmountsOut; price impact is measured against the pair's spot rate.
type Pool struct {
	rpc    *ethclient.Client
	router common.Address
	pair   common.Address
	asset  common.Address
	share  common.Address

	// The vault still owns the asset<->share conversion rate: a withdraw
	// request arrives denominated in assets and is turned into the share
	// amount the pool must sell.
	vault *Vault
}

func NewPool(rpc *ethclient.Client, router, pair, asset, share common.Address, vault *Vault) *Pool {
	return &Pool{
		rpc:    rpc,
		router: router,
		pair:   pair,
		asset:  asset,
		share:  share,
		vault:  vault,
	}
}

func (p *Pool) Quote(ctx context.Context, direction types.Direction, amount *big.Int) (*types.Quote, error) {
	if direction == types.Supply {
		out, err := p.amountOut(ctx, amount, []common.Address{p.asset, p.share})
		if err != nil {
			return nil, err
		}
		impact, err := p.impactBps(ctx, p.asset, amount, out)
		if err != nil {
			return nil, err
		}
		return &types.Quote{
			OutputAmount:   out,
			PriceImpactBps: impact,
		}, nil
	}

	shares, err := p.vault.callView(ctx, "previewWithdraw", amount)
	if err != nil {
		return nil, fmt.Errorf("failed to convert withdraw amount to shares: %w", err)
	}

	out, err := p.amountOut(ctx, shares, []common.Address{p.share, p.asset})
	if err != nil {
		return nil, err
	}
	impact, err := p.impactBps(ctx, p.share, shares, out)
	if err != nil {
		return nil, err
	}
	return &types.Quote{
		OutputAmount:    out,
		PriceImpactBps:  impact,
		AuxiliaryAmount: shares,
	}, nil
}

func (p *Pool) State(ctx context.Context, direction types.Direction) (types.VenueState, error) {
	if direction == types.Supply {
		// The AMM absorbs any supply size, at a price.
		return types.VenueState{Available: true}, nil
	}

	assetReserve, _, err := p.reserves(ctx)
	if err != nil {
		return types.VenueState{}, err
	}
	if assetReserve.Sign() == 0 {
		return types.VenueState{
			Available:     false,
			MaxAmount:     assetReserve,
			BlockedReason: types.BlockedLiquidityExhausted,
		}, nil
	}
	return types.VenueState{Available: true, MaxAmount: assetReserve}, nil
}

func (p *Pool) amountOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}

	output, err := p.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &p.router,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getAmountsOut: %w", err)
	}

	values, err := routerABI.Unpack("getAmountsOut", output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getAmountsOut: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unexpected empty getAmountsOut output")
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("unexpected getAmountsOut output shape")
	}
	return amounts[len(amounts)-1], nil
}

// reserves returns the pair's reserves ordered (asset, share).
func (p *Pool) reserves(ctx context.Context) (*big.Int, *big.Int, error) {
	data, err := pairABI.Pack("token0")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack token0: %w", err)
	}
	output, err := p.rpc.CallContract(ctx, ethereum.CallMsg{To: &p.pair, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call token0: %w", err)
	}
	values, err := pairABI.Unpack("token0", output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack token0: %w", err)
	}
	token0, ok := values[0].(common.Address)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected token0 output type")
	}

	data, err = pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack getReserves: %w", err)
	}
	output, err = p.rpc.CallContract(ctx, ethereum.CallMsg{To: &p.pair, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call getReserves: %w", err)
	}
	values, err = pairABI.Unpack("getReserves", output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack getReserves: %w", err)
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("unexpected getReserves output shape")
	}
	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("unexpected getReserves output types")
	}

	if token0 == p.asset {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

// impactBps measures how far the execution rate moved against the user
// relative to the pair's spot rate for the input token.
func (p *Pool) impactBps(ctx context.Context, tokenIn common.Address, amountIn, amountOut *big.Int) (int64, error) {
	assetReserve, shareReserve, err := p.reserves(ctx)
	if err != nil {
		return 0, err
	}

	reserveIn, reserveOut := assetReserve, shareReserve
	if tokenIn == p.share {
		reserveIn, reserveOut = shareReserve, assetReserve
	}

	return ImpactBps(amountIn, amountOut, reserveIn, reserveOut), nil
}

// ImpactBps computes basis points of slippage between the spot output
// (amountIn * reserveOut / reserveIn) and the actual output. Never negative.
func ImpactBps(amountIn, amountOut, reserveIn, reserveOut *big.Int) int64 {
	if amountIn == nil || amountOut == nil || reserveIn == nil || reserveOut == nil {
		return 0
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 || amountIn.Sign() == 0 {
		return 0
	}

	spotOut := new(big.Int).Mul(amountIn, reserveOut)
	spotOut.Div(spotOut, reserveIn)
	if spotOut.Sign() == 0 {
		return 0
	}
	if amountOut.Cmp(spotOut) >= 0 {
		return 0
	}

	diff := new(big.Int).Sub(spotOut, amountOut)
	diff.Mul(diff, big.NewInt(10000))
	diff.Div(diff, spotOut)
	return diff.Int64()
}
