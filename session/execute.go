package session

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vultisig/earn/allowance"
	"github.com/vultisig/earn/internal/util"
	"github.com/vultisig/earn/metrics"
	"github.com/vultisig/earn/orchestrator"
	"github.com/vultisig/earn/routing"
	"github.com/vultisig/earn/types"
)

// Submit triggers execution of the current step. Gated on the aggregate
// ready flag, the guard acknowledgement, and balance/blocked classification;
// the latter two are routed to the sink distinctly from generic errors.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.pending > 0 || !c.view.HasSelection {
		c.mu.Unlock()
		return types.ErrNotReady
	}
	if c.debounced.Sign() == 0 {
		c.mu.Unlock()
		return types.ErrNotReady
	}
	view := c.view
	c.mu.Unlock()

	if view.Selection.AllProvidersBlocked {
		c.notifyBlocked(types.FailureAllBlocked, "No provider can serve this amount right now")
		return types.ErrAllProvidersBlocked
	}
	if view.InsufficientBalance {
		c.notifyBlocked(types.FailureInsufficientBalance, "Balance is lower than the entered amount")
		return types.ErrInsufficientBalance
	}
	if view.GuardBlocked {
		return types.ErrPriceImpactBlocked
	}

	return c.orch.Submit(ctx)
}

// Retry re-submits the failed step with its original snapshot.
func (c *Controller) Retry(ctx context.Context) error {
	return c.orch.Retry(ctx)
}

// Acknowledge returns the orchestrator to idle from a terminal state
// (success, error or a dismissed prompt) and re-derives selection and plan so
// the next action can be prepared. No-op while a submission is in flight.
func (c *Controller) Acknowledge(ctx context.Context) error {
	c.orch.AcknowledgeTerminal()
	return c.Refresh(ctx)
}

// State exposes the orchestrator's live record.
func (c *Controller) State() orchestrator.State {
	return c.orch.State()
}

func (c *Controller) notifyBlocked(kind types.FailureKind, description string) {
	if c.sink == nil {
		return
	}
	c.sink.Notify(orchestrator.Notification{
		Title:       "Cannot submit",
		Description: description,
		Status:      "error",
		Kind:        kind,
	})
}

// loadExecution materializes the plan into concrete calls and hands it to
// the orchestrator. The request key is re-checked under the lock right before
// the load, so a slow derivation for an older amount can never replace a
// newer plan. A non-idle orchestrator keeps its frozen execution; the next
// return to idle picks the newest derivation up.
func (c *Controller) loadExecution(
	key requestKey,
	direction types.Direction,
	selection routing.Selection,
	plan allowance.Plan,
	amount *big.Int,
) error {
	actionCall, err := c.builder.BuildAction(direction, selection, amount)
	if err != nil {
		return fmt.Errorf("failed to build action call: %w", err)
	}
	actionDesc := c.describeAction(direction, selection, amount)

	var steps []orchestrator.Step
	if plan.NeedsApproval() {
		required := allowance.RequiredApproval(selection, direction, amount)
		approveCall, er := c.builder.BuildApprove(direction, selection.Provider, required)
		if er != nil {
			return fmt.Errorf("failed to build approve call: %w", er)
		}

		if plan.Batched {
			steps = []orchestrator.Step{{
				Calls:       []orchestrator.Call{approveCall, actionCall},
				Description: actionDesc,
			}}
		} else {
			steps = []orchestrator.Step{
				{
					Calls:       []orchestrator.Call{approveCall},
					Description: fmt.Sprintf("Approve %s %s", c.formatAmount(required), c.spendSymbol(direction, selection.Provider)),
				},
				{
					Calls:       []orchestrator.Call{actionCall},
					Description: actionDesc,
				},
			}
		}
	} else {
		steps = []orchestrator.Step{{
			Calls:       []orchestrator.Call{actionCall},
			Description: actionDesc,
		}}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if key != c.key {
		metrics.RecordStaleResponse()
		return nil
	}

	err = c.orch.Load(&orchestrator.Execution{
		Direction: direction,
		Provider:  selection.Provider,
		Amount:    new(big.Int).Set(amount),
		Steps:     steps,
		Batched:   plan.Batched,
	})
	if err != nil {
		// In-flight or terminal submission: keep its frozen plan.
		return nil
	}
	return nil
}

// OnStepSuccess re-reads allowance, balances and capacity so the next plan
// derivation reflects the mutated on-chain state.
func (c *Controller) OnStepSuccess(ctx context.Context) {
	c.mu.Lock()
	key := c.key
	c.pending++
	c.mu.Unlock()

	if err := c.refresh(ctx, key); err != nil {
		c.logger.WithError(err).Warn("failed to refresh after step success")
	}
}

// OnStepError re-reads the allowance only: balances did not change, but an
// approval that landed before the failure must be visible to the next plan.
func (c *Controller) OnStepError(ctx context.Context) {
	if err := c.refreshAllowance(ctx); err != nil {
		c.logger.WithError(err).Warn("failed to refresh allowance after step error")
	}
}

func (c *Controller) describeAction(direction types.Direction, selection routing.Selection, amount *big.Int) string {
	verb := "Supply"
	if direction == types.Withdraw {
		verb = "Withdraw"
	}
	via := "savings vault"
	if selection.Provider == types.Pool {
		via = "liquidity pool"
	}
	return fmt.Sprintf("%s %s %s via %s", verb, c.formatAmount(amount), c.cfg.AssetSymbol, via)
}

func (c *Controller) formatAmount(amount *big.Int) string {
	return util.FromBaseUnits(amount, c.cfg.AssetDecimals)
}

func (c *Controller) spendSymbol(direction types.Direction, venue types.Venue) string {
	if direction == types.Withdraw && venue == types.Pool {
		return c.cfg.AssetSymbol + " shares"
	}
	return c.cfg.AssetSymbol
}

// guidance renders the "reduce amount to X" hint when native has room, just
// not enough. The shown maximum is the venue's exact remaining room.
func (c *Controller) guidance(selection routing.Selection) string {
	switch selection.NativeBlockedReason {
	case types.BlockedAmountExceedsCapacity:
		return fmt.Sprintf(
			"Reduce the amount to %s %s to supply through the savings vault",
			c.formatAmount(selection.NativeMaxAmount), c.cfg.AssetSymbol,
		)
	case types.BlockedAmountExceedsLiquidity:
		return fmt.Sprintf(
			"Reduce the amount to %s %s to withdraw through the savings vault",
			c.formatAmount(selection.NativeMaxAmount), c.cfg.AssetSymbol,
		)
	case types.BlockedCapacityReached:
		return "The savings vault has reached its deposit capacity"
	case types.BlockedLiquidityExhausted:
		return "The savings vault has no withdrawable liquidity right now"
	default:
		return ""
	}
}
