package allowance

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/earn/routing"
	"github.com/vultisig/earn/types"
)

func nativeSelection(out int64) routing.Selection {
	return routing.Selection{
		Provider: types.Native,
		Reason:   types.NativeDefault,
		Quote:    &types.Quote{OutputAmount: big.NewInt(out)},
	}
}

func poolWithdrawSelection(out, shares int64) routing.Selection {
	return routing.Selection{
		Provider: types.Pool,
		Reason:   types.PoolBetterRate,
		Quote: &types.Quote{
			OutputAmount:    big.NewInt(out),
			AuxiliaryAmount: big.NewInt(shares),
		},
	}
}

func TestRequiredApproval_SupplySpendsInputAmount(t *testing.T) {
	amount := big.NewInt(1_000)
	required := RequiredApproval(nativeSelection(1_000), types.Supply, amount)
	assert.Equal(t, amount, required)
	assert.NotSame(t, amount, required, "caller's amount must not be aliased")
}

func TestRequiredApproval_NativeWithdrawNeedsNone(t *testing.T) {
	required := RequiredApproval(nativeSelection(1_000), types.Withdraw, big.NewInt(1_000))
	assert.Zero(t, required.Sign())
}

func TestRequiredApproval_PoolWithdrawSpendsReceiptTokens(t *testing.T) {
	required := RequiredApproval(poolWithdrawSelection(1_000, 950), types.Withdraw, big.NewInt(1_000))
	assert.Equal(t, big.NewInt(950), required)
}

func TestRequiredApproval_BlockedSelectionNeedsNone(t *testing.T) {
	blocked := routing.Selection{Provider: types.Native, Reason: types.AllBlocked, AllProvidersBlocked: true}
	required := RequiredApproval(blocked, types.Supply, big.NewInt(1_000))
	assert.Zero(t, required.Sign())
}

func TestCompute_SufficientAllowanceSingleStep(t *testing.T) {
	plan := Compute(nativeSelection(1_000), types.Supply, big.NewInt(1_000), big.NewInt(5_000), true, true)

	require.Equal(t, []StepKind{StepAction}, plan.Steps)
	assert.False(t, plan.NeedsApproval())
	assert.False(t, plan.Batched, "a single step has nothing to batch")
}

func TestCompute_ShortAllowanceTwoSteps(t *testing.T) {
	plan := Compute(nativeSelection(1_000), types.Supply, big.NewInt(1_000), big.NewInt(999), false, true)

	require.Equal(t, []StepKind{StepApprove, StepAction}, plan.Steps)
	assert.True(t, plan.NeedsApproval())
	assert.False(t, plan.Batched)
}

func TestCompute_ExactAllowanceIsSufficient(t *testing.T) {
	plan := Compute(nativeSelection(1_000), types.Supply, big.NewInt(1_000), big.NewInt(1_000), true, true)
	assert.Equal(t, []StepKind{StepAction}, plan.Steps)
}

func TestCompute_BatchingNeedsSupportAndOptIn(t *testing.T) {
	selection := nativeSelection(1_000)
	amount := big.NewInt(1_000)
	none := big.NewInt(0)

	assert.True(t, Compute(selection, types.Supply, amount, none, true, true).Batched)
	assert.False(t, Compute(selection, types.Supply, amount, none, true, false).Batched)
	assert.False(t, Compute(selection, types.Supply, amount, none, false, true).Batched)
}

func TestCompute_NilAllowanceTreatedAsUnknown(t *testing.T) {
	// Native withdraws carry a nil allowance because there is no spend path.
	plan := Compute(nativeSelection(1_000), types.Withdraw, big.NewInt(1_000), nil, true, true)
	assert.Equal(t, []StepKind{StepAction}, plan.Steps)

	// A supply with an unknown allowance must assume an approval is needed.
	plan = Compute(nativeSelection(1_000), types.Supply, big.NewInt(1_000), nil, false, false)
	assert.Equal(t, []StepKind{StepApprove, StepAction}, plan.Steps)
}

func TestCompute_PoolWithdrawChecksReceiptTokenAllowance(t *testing.T) {
	selection := poolWithdrawSelection(1_000, 950)

	plan := Compute(selection, types.Withdraw, big.NewInt(1_000), big.NewInt(900), true, true)
	require.True(t, plan.NeedsApproval())
	assert.True(t, plan.Batched)

	plan = Compute(selection, types.Withdraw, big.NewInt(1_000), big.NewInt(950), true, true)
	assert.False(t, plan.NeedsApproval())
}
