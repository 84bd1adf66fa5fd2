package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vultisig/earn/types"
)

func TestEvaluatePriceImpact(t *testing.T) {
	low := &types.Quote{PriceImpactBps: 199}
	warn := &types.Quote{PriceImpactBps: 200}
	severe := &types.Quote{PriceImpactBps: 3500}

	assert.False(t, EvaluatePriceImpact(nil, false))
	assert.False(t, EvaluatePriceImpact(low, false))
	assert.True(t, EvaluatePriceImpact(warn, false))
	assert.True(t, EvaluatePriceImpact(severe, false))

	// Acknowledgement unblocks any impact level, severe included.
	assert.False(t, EvaluatePriceImpact(warn, true))
	assert.False(t, EvaluatePriceImpact(severe, true))
}

func TestImpactSeverity(t *testing.T) {
	assert.Equal(t, SeverityNone, ImpactSeverity(0))
	assert.Equal(t, SeverityNone, ImpactSeverity(199))
	assert.Equal(t, SeverityWarning, ImpactSeverity(200))
	assert.Equal(t, SeverityWarning, ImpactSeverity(2999))
	assert.Equal(t, SeverityError, ImpactSeverity(3000))
}
