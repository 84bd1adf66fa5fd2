package routing

import "github.com/vultisig/earn/types"

const (
	// PriceImpactWarnBps blocks submission until the user explicitly
	// acknowledges the shown impact.
	PriceImpactWarnBps = 200

	// PriceImpactErrorBps marks the impact as error severity for display.
	// It does not change the gating decision.
	PriceImpactErrorBps = 3000
)

// EvaluatePriceImpact gates execution on a quote's price impact. Pure: it
// must be re-evaluated on every quote change. An acknowledgement granted for
// one amount does not carry over to another; the caller resets acknowledged
// whenever the debounced amount or direction changes.
func EvaluatePriceImpact(quote *types.Quote, acknowledged bool) bool {
	if quote == nil {
		return false
	}
	return quote.PriceImpactBps >= PriceImpactWarnBps && !acknowledged
}

// PriceImpactSeverity distinguishes warning from error display for an
// impact value. Display concern only.
type PriceImpactSeverity string

const (
	SeverityNone    PriceImpactSeverity = "none"
	SeverityWarning PriceImpactSeverity = "warning"
	SeverityError   PriceImpactSeverity = "error"
)

func ImpactSeverity(priceImpactBps int64) PriceImpactSeverity {
	switch {
	case priceImpactBps >= PriceImpactErrorBps:
		return SeverityError
	case priceImpactBps >= PriceImpactWarnBps:
		return SeverityWarning
	default:
		return SeverityNone
	}
}
