package types

import (
	"math/big"
)

// Direction is the economic action the user is performing.
type Direction int

const (
	Supply Direction = iota
	Withdraw
)

func (d Direction) String() string {
	switch d {
	case Supply:
		return "supply"
	case Withdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// Venue identifies one of the two execution paths for a supply/withdraw.
type Venue int

const (
	// Native is the on-chain savings vault. 1:1 economics, capacity-limited.
	Native Venue = iota
	// Pool is the external AMM pool trading the asset against the receipt token.
	Pool
)

func (v Venue) String() string {
	switch v {
	case Native:
		return "native"
	case Pool:
		return "pool"
	default:
		return "unknown"
	}
}

// BlockedReason explains why a venue cannot serve the requested amount.
type BlockedReason string

const (
	BlockedNone                   BlockedReason = ""
	BlockedCapacityReached        BlockedReason = "capacity_reached"
	BlockedAmountExceedsCapacity  BlockedReason = "amount_exceeds_capacity"
	BlockedLiquidityExhausted     BlockedReason = "liquidity_exhausted"
	BlockedAmountExceedsLiquidity BlockedReason = "amount_exceeds_liquidity"
	BlockedUnavailable            BlockedReason = "unavailable"
)

// SelectionReason is the machine-readable outcome of a routing decision.
type SelectionReason string

const (
	NativeDefault       SelectionReason = "native_default"
	NativeBetterRate    SelectionReason = "native_better_rate"
	NativeOnlyAvailable SelectionReason = "native_only_available"
	PoolBetterRate      SelectionReason = "pool_better_rate"
	PoolOnlyAvailable   SelectionReason = "pool_only_available"
	AllBlocked          SelectionReason = "all_blocked"
)

// Quote is a venue's answer for a given (direction, amount). Ephemeral:
// recomputed whenever the debounced input changes, never persisted.
type Quote struct {
	// OutputAmount is what the user receives, in the underlying asset's
	// smallest unit for withdraws and in receipt tokens for supplies.
	OutputAmount *big.Int

	// PriceImpactBps is how far the execution rate moved against the user,
	// in basis points. Zero for the native vault.
	PriceImpactBps int64

	// AuxiliaryAmount carries the receipt-token amount a withdraw spends
	// (pool) or burns (native). Nil for supplies.
	AuxiliaryAmount *big.Int
}

// VenueState is a venue's serviceability for one direction, derived from
// on-chain capacity/liquidity reads.
type VenueState struct {
	Available     bool
	MaxAmount     *big.Int // remaining room, nil when unbounded
	BlockedReason BlockedReason
}

// CanServe reports whether the venue can serve the full amount.
func (s VenueState) CanServe(amount *big.Int) bool {
	if !s.Available {
		return false
	}
	if s.MaxAmount == nil {
		return true
	}
	return amount.Cmp(s.MaxAmount) <= 0
}

// TxRecord is one entry of the recent-transaction log.
type TxRecord struct {
	Hash        string
	Description string
	Timestamp   int64
}
