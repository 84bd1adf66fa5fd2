// Package allowance decides how many on-chain steps a supply/withdraw needs
// and whether they can be bundled into one wallet submission. It performs no
// I/O: the current allowance is read elsewhere and passed in, which keeps the
// decision deterministic and unit-testable.
package allowance

import (
	"math/big"

	"github.com/vultisig/earn/routing"
	"github.com/vultisig/earn/types"
)

// StepKind is what a single wallet submission does.
type StepKind string

const (
	StepApprove StepKind = "approve"
	StepAction  StepKind = "action"
)

// Plan is the step list for one supply/withdraw. Either [Action] or
// [Approve, Action]; Batched is derived and only ever true for the two-step
// shape, so a batched single-step plan cannot be built.
type Plan struct {
	Steps   []StepKind
	Batched bool
}

func (p Plan) NeedsApproval() bool {
	return len(p.Steps) == 2
}

func singleStepPlan() Plan {
	return Plan{Steps: []StepKind{StepAction}}
}

func twoStepPlan(batched bool) Plan {
	return Plan{Steps: []StepKind{StepApprove, StepAction}, Batched: batched}
}

// RequiredApproval returns the amount that must be approved before the action
// can run, in the spent token's smallest unit. Supplies spend the input asset.
// A pool withdraw spends the receipt tokens implied by the quote's auxiliary
// amount. A native withdraw burns shares the vault itself issued and needs no
// allowance.
func RequiredApproval(selection routing.Selection, direction types.Direction, amount *big.Int) *big.Int {
	if !selection.Executable() {
		return big.NewInt(0)
	}

	if direction == types.Supply {
		if amount == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Set(amount)
	}

	if selection.Provider == types.Pool && selection.Quote != nil && selection.Quote.AuxiliaryAmount != nil {
		return new(big.Int).Set(selection.Quote.AuxiliaryAmount)
	}
	return big.NewInt(0)
}

// Compute builds the plan for the selected venue. batchSupported comes from
// the wallet's capability report, batchOptIn from the user; both must hold,
// and there must actually be an approval to bundle, before Batched is set.
func Compute(
	selection routing.Selection,
	direction types.Direction,
	amount *big.Int,
	currentAllowance *big.Int,
	batchSupported bool,
	batchOptIn bool,
) Plan {
	required := RequiredApproval(selection, direction, amount)
	if required.Sign() == 0 {
		return singleStepPlan()
	}

	if currentAllowance != nil && currentAllowance.Cmp(required) >= 0 {
		return singleStepPlan()
	}

	return twoStepPlan(batchSupported && batchOptIn)
}
