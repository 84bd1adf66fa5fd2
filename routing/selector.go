package routing

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/vultisig/earn/types"
)

// rateEpsilonPercent is the minimum pool advantage, in percent, before the
// selector abandons the native default. Ties and noise-level differences
// stay on native to avoid pool fees and slippage.
var rateEpsilonPercent = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// Select picks a venue for (direction, amount) from the supplied venue states
// and quotes. It is a pure function: same inputs, same decision. A nil quote
// means the venue's quote source failed or timed out and marks the venue
// unavailable; Select itself never fails.
//
// When amount is zero the decision is evaluated against referenceAmount
// (typically one unit of the asset) so callers can show routing before the
// user types. Such a selection must not authorize
// execution; callers gate on a zero amount.
func Select(
	direction types.Direction,
	amount *big.Int,
	referenceAmount *big.Int,
	nativeState types.VenueState,
	poolState types.VenueState,
	nativeQuote *types.Quote,
	poolQuote *types.Quote,
) Selection {
	evalAmount := amount
	if evalAmount == nil || evalAmount.Sign() == 0 {
		evalAmount = referenceAmount
	}

	nativeBlocked, nativeReason, nativeMax := venueBlocked(direction, nativeState, nativeQuote, evalAmount)
	poolBlocked, _, _ := venueBlocked(direction, poolState, poolQuote, evalAmount)

	rateDiff := rateDifference(nativeQuote, poolQuote)

	switch {
	case nativeBlocked && poolBlocked:
		return selectAllBlocked(nativeReason, nativeMax)
	case nativeBlocked:
		return selectPoolOnly(rateDiff, poolQuote, nativeReason, nativeMax)
	case poolBlocked:
		return selectNativeOnly(nativeQuote)
	}

	if rateDiff.GreaterThan(rateEpsilonPercent) {
		return selectPoolBetterRate(rateDiff, poolQuote)
	}
	if rateDiff.LessThan(rateEpsilonPercent.Neg()) {
		return selectNative(types.NativeBetterRate, rateDiff, nativeQuote)
	}
	return selectNative(types.NativeDefault, rateDiff, nativeQuote)
}

// venueBlocked resolves whether a venue can serve evalAmount, and with which
// reason. A venue with some room but less than the amount reports
// AmountExceeds* and its exact remaining room, so guidance text can name the
// amount the user should reduce to.
func venueBlocked(
	direction types.Direction,
	state types.VenueState,
	quote *types.Quote,
	evalAmount *big.Int,
) (bool, types.BlockedReason, *big.Int) {
	if quote == nil {
		return true, types.BlockedUnavailable, nil
	}
	if state.CanServe(evalAmount) {
		return false, types.BlockedNone, nil
	}

	if !state.Available {
		reason := state.BlockedReason
		if reason == types.BlockedNone {
			reason = exhaustedReason(direction)
		}
		return true, reason, nil
	}

	// Available but short: MaxAmount is set and below the amount.
	if state.MaxAmount.Sign() == 0 {
		return true, exhaustedReason(direction), nil
	}
	return true, exceedsReason(direction), new(big.Int).Set(state.MaxAmount)
}

func exhaustedReason(direction types.Direction) types.BlockedReason {
	if direction == types.Supply {
		return types.BlockedCapacityReached
	}
	return types.BlockedLiquidityExhausted
}

func exceedsReason(direction types.Direction) types.BlockedReason {
	if direction == types.Supply {
		return types.BlockedAmountExceedsCapacity
	}
	return types.BlockedAmountExceedsLiquidity
}

// rateDifference compares the two venues' outputs for the same input amount.
// Positive means the pool is more favorable to the user.
func rateDifference(nativeQuote, poolQuote *types.Quote) decimal.Decimal {
	if nativeQuote == nil || poolQuote == nil {
		return decimal.Zero
	}
	if nativeQuote.OutputAmount == nil || nativeQuote.OutputAmount.Sign() == 0 {
		return decimal.Zero
	}
	if poolQuote.OutputAmount == nil {
		return decimal.Zero
	}

	nativeOut := decimal.NewFromBigInt(nativeQuote.OutputAmount, 0)
	poolOut := decimal.NewFromBigInt(poolQuote.OutputAmount, 0)

	return poolOut.Sub(nativeOut).Div(nativeOut).Mul(hundred)
}

// IsWithdrawBalanceError reports whether a withdraw amount exceeds what every
// venue together can release, i.e. the user cannot exit this much at all.
// Callers route it to the sink as an insufficient-balance condition, not a
// generic error.
func IsWithdrawBalanceError(amount *big.Int, nativeState, poolState types.VenueState) bool {
	if amount == nil || amount.Sign() == 0 {
		return false
	}

	max := big.NewInt(0)
	unbounded := false
	for _, state := range []types.VenueState{nativeState, poolState} {
		if !state.Available {
			continue
		}
		if state.MaxAmount == nil {
			unbounded = true
			continue
		}
		if state.MaxAmount.Cmp(max) > 0 {
			max = state.MaxAmount
		}
	}

	if unbounded {
		return false
	}
	return amount.Cmp(max) > 0
}
