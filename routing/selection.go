package routing

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/vultisig/earn/types"
)

// Selection is the routing decision record: one provider, one reason, plus
// the fields valid for that reason. Construct through the helpers below so
// provider and reason cannot drift apart.
type Selection struct {
	Provider types.Venue
	Reason   types.SelectionReason

	// RateDifferencePercent is positive when the pool offers the user a
	// better effective rate than the native vault.
	RateDifferencePercent decimal.Decimal

	// NativeBlockedReason/NativeMaxAmount are set only when native could
	// not serve the amount, so callers can render "reduce amount to X"
	// guidance. NativeMaxAmount is the venue's exact remaining room.
	NativeBlockedReason types.BlockedReason
	NativeMaxAmount     *big.Int

	// Quote is the selected venue's quote. Nil only when all blocked.
	Quote *types.Quote

	AllProvidersBlocked bool
}

// Executable reports whether this selection may back a submission. An
// all-blocked decision defaults the provider to native but authorizes nothing.
func (s Selection) Executable() bool {
	return !s.AllProvidersBlocked && s.Quote != nil
}

func selectNative(reason types.SelectionReason, rateDiff decimal.Decimal, quote *types.Quote) Selection {
	return Selection{
		Provider:              types.Native,
		Reason:                reason,
		RateDifferencePercent: rateDiff,
		Quote:                 quote,
	}
}

func selectPoolBetterRate(rateDiff decimal.Decimal, quote *types.Quote) Selection {
	return Selection{
		Provider:              types.Pool,
		Reason:                types.PoolBetterRate,
		RateDifferencePercent: rateDiff,
		Quote:                 quote,
	}
}

func selectPoolOnly(rateDiff decimal.Decimal, quote *types.Quote, nativeReason types.BlockedReason, nativeMax *big.Int) Selection {
	return Selection{
		Provider:              types.Pool,
		Reason:                types.PoolOnlyAvailable,
		RateDifferencePercent: rateDiff,
		Quote:                 quote,
		NativeBlockedReason:   nativeReason,
		NativeMaxAmount:       nativeMax,
	}
}

func selectNativeOnly(quote *types.Quote) Selection {
	return Selection{
		Provider: types.Native,
		Reason:   types.NativeOnlyAvailable,
		Quote:    quote,
	}
}

func selectAllBlocked(nativeReason types.BlockedReason, nativeMax *big.Int) Selection {
	return Selection{
		Provider:            types.Native,
		Reason:              types.AllBlocked,
		NativeBlockedReason: nativeReason,
		NativeMaxAmount:     nativeMax,
		AllProvidersBlocked: true,
	}
}
