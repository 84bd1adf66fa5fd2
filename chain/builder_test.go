package chain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/earn/routing"
	"github.com/vultisig/earn/types"
)

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testAsset   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	testShare   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	testVault   = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	testRouter  = common.HexToAddress("0x00000000000000000000000000000000000000a5")
)

func testBuilder() *Builder {
	accounts := NewAccounts(nil, testAccount, testAsset, testShare, testVault, testRouter)
	builder := NewBuilder(accounts)
	builder.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return builder
}

func poolSelection(out, shares int64) routing.Selection {
	quote := &types.Quote{OutputAmount: big.NewInt(out)}
	if shares > 0 {
		quote.AuxiliaryAmount = big.NewInt(shares)
	}
	return routing.Selection{Provider: types.Pool, Reason: types.PoolBetterRate, Quote: quote}
}

func nativeSelection(out int64) routing.Selection {
	return routing.Selection{
		Provider: types.Native,
		Reason:   types.NativeDefault,
		Quote:    &types.Quote{OutputAmount: big.NewInt(out)},
	}
}

func TestBuildApprove(t *testing.T) {
	builder := testBuilder()
	amount := big.NewInt(1_000)

	call, err := builder.BuildApprove(types.Supply, types.Native, amount)
	require.NoError(t, err)
	assert.Equal(t, testAsset, call.To, "supply spends the asset token")

	expected, err := erc20ABI.Pack("approve", testVault, amount)
	require.NoError(t, err)
	assert.Equal(t, expected, call.Data)

	call, err = builder.BuildApprove(types.Supply, types.Pool, amount)
	require.NoError(t, err)
	assert.Equal(t, testAsset, call.To)
	expected, err = erc20ABI.Pack("approve", testRouter, amount)
	require.NoError(t, err)
	assert.Equal(t, expected, call.Data)

	call, err = builder.BuildApprove(types.Withdraw, types.Pool, amount)
	require.NoError(t, err)
	assert.Equal(t, testShare, call.To, "pool withdraw sells receipt tokens")

	_, err = builder.BuildApprove(types.Withdraw, types.Native, amount)
	assert.Error(t, err, "native withdraw has no approval path")
}

func TestBuildAction_Vault(t *testing.T) {
	builder := testBuilder()
	amount := big.NewInt(1_000)

	call, err := builder.BuildAction(types.Supply, nativeSelection(1_000), amount)
	require.NoError(t, err)
	assert.Equal(t, testVault, call.To)
	expected, err := vaultABI.Pack("deposit", amount, testAccount)
	require.NoError(t, err)
	assert.Equal(t, expected, call.Data)

	call, err = builder.BuildAction(types.Withdraw, nativeSelection(1_000), amount)
	require.NoError(t, err)
	expected, err = vaultABI.Pack("withdraw", amount, testAccount, testAccount)
	require.NoError(t, err)
	assert.Equal(t, expected, call.Data)
}

func TestBuildAction_PoolSupply(t *testing.T) {
	builder := testBuilder()
	amount := big.NewInt(1_000)

	call, err := builder.BuildAction(types.Supply, poolSelection(990, 0), amount)
	require.NoError(t, err)
	assert.Equal(t, testRouter, call.To)

	minOut := deductSlippage(big.NewInt(990), slippageBips)
	deadline := big.NewInt(time.Unix(1_700_000_000, 0).Add(txDeadline).Unix())
	expected, err := routerABI.Pack(
		"swapExactTokensForTokens",
		amount, minOut, []common.Address{testAsset, testShare}, testAccount, deadline,
	)
	require.NoError(t, err)
	assert.Equal(t, expected, call.Data)
}

func TestBuildAction_PoolWithdrawSellsQuotedShares(t *testing.T) {
	builder := testBuilder()

	call, err := builder.BuildAction(types.Withdraw, poolSelection(1_000, 950), big.NewInt(1_000))
	require.NoError(t, err)

	minOut := deductSlippage(big.NewInt(1_000), slippageBips)
	deadline := big.NewInt(time.Unix(1_700_000_000, 0).Add(txDeadline).Unix())
	expected, err := routerABI.Pack(
		"swapExactTokensForTokens",
		big.NewInt(950), minOut, []common.Address{testShare, testAsset}, testAccount, deadline,
	)
	require.NoError(t, err)
	assert.Equal(t, expected, call.Data)
}

func TestBuildAction_Rejections(t *testing.T) {
	builder := testBuilder()

	blocked := routing.Selection{Provider: types.Native, AllProvidersBlocked: true}
	_, err := builder.BuildAction(types.Supply, blocked, big.NewInt(1))
	assert.Error(t, err)

	noShares := poolSelection(1_000, 0)
	_, err = builder.BuildAction(types.Withdraw, noShares, big.NewInt(1_000))
	assert.Error(t, err, "pool withdraw needs the share amount from the quote")
}

func TestDeductSlippage(t *testing.T) {
	assert.Equal(t, big.NewInt(9_950), deductSlippage(big.NewInt(10_000), 50))
	assert.Equal(t, big.NewInt(995), deductSlippage(big.NewInt(1_000), 50))
	assert.Zero(t, deductSlippage(nil, 50).Sign())
	assert.Zero(t, deductSlippage(big.NewInt(0), 50).Sign())
}

func TestImpactBps(t *testing.T) {
	// Balanced reserves, spot output equals input.
	assert.Equal(t, int64(40), ImpactBps(big.NewInt(1_000), big.NewInt(996), big.NewInt(1_000_000), big.NewInt(1_000_000)))
	assert.Equal(t, int64(0), ImpactBps(big.NewInt(1_000), big.NewInt(1_000), big.NewInt(1_000_000), big.NewInt(1_000_000)))

	// Better than spot clamps to zero.
	assert.Equal(t, int64(0), ImpactBps(big.NewInt(1_000), big.NewInt(1_100), big.NewInt(1_000_000), big.NewInt(1_000_000)))

	// Degenerate inputs.
	assert.Equal(t, int64(0), ImpactBps(nil, big.NewInt(1), big.NewInt(1), big.NewInt(1)))
	assert.Equal(t, int64(0), ImpactBps(big.NewInt(1), big.NewInt(1), big.NewInt(0), big.NewInt(1)))
}

func TestSpendTarget(t *testing.T) {
	accounts := NewAccounts(nil, testAccount, testAsset, testShare, testVault, testRouter)

	token, spender, ok := accounts.SpendTarget(types.Supply, types.Native)
	require.True(t, ok)
	assert.Equal(t, testAsset, token)
	assert.Equal(t, testVault, spender)

	token, spender, ok = accounts.SpendTarget(types.Withdraw, types.Pool)
	require.True(t, ok)
	assert.Equal(t, testShare, token)
	assert.Equal(t, testRouter, spender)

	_, _, ok = accounts.SpendTarget(types.Withdraw, types.Native)
	assert.False(t, ok)
}
