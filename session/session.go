// Package session owns the live editing loop: it debounces raw input, keys
// every asynchronous read with the (chainID, direction, amount) tuple that
// produced it, discards stale responses, and gates submission on an aggregate
// ready flag. Selection and plan are immutable snapshots recomputed top-down;
// only the orchestrator's own state is mutable.
package session

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/earn/allowance"
	"github.com/vultisig/earn/metrics"
	"github.com/vultisig/earn/orchestrator"
	"github.com/vultisig/earn/routing"
	"github.com/vultisig/earn/types"
)

// VenueReader is one venue's quote source and capacity oracle.
type VenueReader interface {
	Quote(ctx context.Context, direction types.Direction, amount *big.Int) (*types.Quote, error)
	State(ctx context.Context, direction types.Direction) (types.VenueState, error)
}

// AllowanceReader reads the current allowance for a venue's spend path.
// Nil with no error means the path never needs approval.
type AllowanceReader interface {
	Allowance(ctx context.Context, direction types.Direction, venue types.Venue) (*big.Int, error)
}

// BalanceReader reads the user's underlying-asset balance.
type BalanceReader interface {
	AssetBalance(ctx context.Context) (*big.Int, error)
}

// CallBuilder materializes plan steps into contract calls.
type CallBuilder interface {
	BuildApprove(direction types.Direction, venue types.Venue, amount *big.Int) (orchestrator.Call, error)
	BuildAction(direction types.Direction, sel routing.Selection, amount *big.Int) (orchestrator.Call, error)
}

// Params configures a controller.
type Params struct {
	ChainID         uint64
	Debounce        time.Duration
	RefreshTimeout  time.Duration
	ReferenceAmount *big.Int
	AssetSymbol     string
	AssetDecimals   int
	BatchOptIn      bool
}

// View is the immutable snapshot the shell renders from.
type View struct {
	Selection           routing.Selection
	HasSelection        bool
	Plan                allowance.Plan
	GuardBlocked        bool
	ImpactSeverity      routing.PriceImpactSeverity
	InsufficientBalance bool
	Guidance            string
	Pending             bool
}

type requestKey struct {
	chainID   uint64
	direction types.Direction
	amount    string
}

type Controller struct {
	mu     sync.Mutex
	logger logrus.FieldLogger

	cfg        Params
	native     VenueReader
	pool       VenueReader
	allowances AllowanceReader
	balances   BalanceReader
	builder    CallBuilder
	orch       *orchestrator.Orchestrator
	backend    orchestrator.ExecutionBackend
	sink       orchestrator.NotificationSink

	rootCtx context.Context

	direction    types.Direction
	rawAmount    *big.Int
	debounced    *big.Int
	key          requestKey
	timer        *time.Timer
	pending      int
	acknowledged bool
	batchOptIn   bool

	view View

	// cached venue states backing the error-only allowance refresh
	nativeState types.VenueState
	poolState   types.VenueState
}

func New(
	ctx context.Context,
	logger *logrus.Logger,
	cfg Params,
	native VenueReader,
	pool VenueReader,
	allowances AllowanceReader,
	balances BalanceReader,
	builder CallBuilder,
	orch *orchestrator.Orchestrator,
	backend orchestrator.ExecutionBackend,
	sink orchestrator.NotificationSink,
) *Controller {
	if cfg.Debounce == 0 {
		cfg.Debounce = 400 * time.Millisecond
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	if cfg.ReferenceAmount == nil {
		cfg.ReferenceAmount = big.NewInt(1)
	}
	c := &Controller{
		logger:     logger.WithField("pkg", "session"),
		cfg:        cfg,
		native:     native,
		pool:       pool,
		allowances: allowances,
		balances:   balances,
		builder:    builder,
		orch:       orch,
		backend:    backend,
		sink:       sink,
		rootCtx:    ctx,
		rawAmount:  big.NewInt(0),
		debounced:  big.NewInt(0),
		batchOptIn: cfg.BatchOptIn,
	}
	c.key = c.makeKey(cfg.ChainID, types.Supply, c.debounced)
	return c
}

func (c *Controller) makeKey(chainID uint64, direction types.Direction, amount *big.Int) requestKey {
	return requestKey{
		chainID:   chainID,
		direction: direction,
		amount:    amount.String(),
	}
}

// SetAmount records raw input and schedules a debounced refresh. Quotes are
// never fetched for raw keystrokes, only for the coalesced value.
func (c *Controller) SetAmount(amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rawAmount = new(big.Int).Set(amount)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.Debounce, c.fireDebounce)
}

func (c *Controller) fireDebounce() {
	c.mu.Lock()
	next := c.makeKey(c.key.chainID, c.direction, c.rawAmount)
	if next == c.key {
		c.mu.Unlock()
		return
	}
	c.debounced = new(big.Int).Set(c.rawAmount)
	c.key = next
	// An acknowledgement granted for one amount does not carry over to a
	// materially different one.
	c.acknowledged = false
	c.pending++
	c.mu.Unlock()

	go func() {
		if err := c.refresh(c.rootCtx, next); err != nil {
			c.logger.WithError(err).Warn("failed to refresh after input change")
		}
	}()
}

// SetDirection switches the flow. Hard reset: in-flight work is invalidated,
// acknowledgement cleared, selection and plan re-derived.
func (c *Controller) SetDirection(direction types.Direction) {
	c.mu.Lock()
	if direction == c.direction {
		c.mu.Unlock()
		return
	}
	c.direction = direction
	c.hardResetLocked()
	key := c.key
	c.mu.Unlock()

	go func() {
		if err := c.refresh(c.rootCtx, key); err != nil {
			c.logger.WithError(err).Warn("failed to refresh after direction change")
		}
	}()
}

// SetChain switches the active network. Hard reset, same as a flow change.
func (c *Controller) SetChain(chainID uint64) {
	c.mu.Lock()
	if chainID == c.key.chainID {
		c.mu.Unlock()
		return
	}
	c.cfg.ChainID = chainID
	c.hardResetLocked()
	c.key = c.makeKey(chainID, c.direction, c.debounced)
	key := c.key
	c.mu.Unlock()

	go func() {
		if err := c.refresh(c.rootCtx, key); err != nil {
			c.logger.WithError(err).Warn("failed to refresh after chain change")
		}
	}()
}

func (c *Controller) hardResetLocked() {
	c.orch.Reset()
	c.acknowledged = false
	c.view = View{}
	c.key = c.makeKey(c.cfg.ChainID, c.direction, c.debounced)
	c.pending++
}

// SetBatchOptIn toggles the user's batching preference and re-derives the
// plan from the cached selection.
func (c *Controller) SetBatchOptIn(optIn bool) {
	c.mu.Lock()
	c.batchOptIn = optIn
	c.mu.Unlock()

	if err := c.refreshAllowance(c.rootCtx); err != nil {
		c.logger.WithError(err).Warn("failed to re-derive plan after batch toggle")
	}
}

// AcknowledgePriceImpact records the user's explicit confirmation of the
// currently shown impact. Valid only for the current debounced amount.
func (c *Controller) AcknowledgePriceImpact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acknowledged = true
	c.view.GuardBlocked = routing.EvaluatePriceImpact(c.view.Selection.Quote, true)
}

// Ready reports whether all reads behind the active step have settled.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending == 0 && c.view.HasSelection
}

// View returns the current render snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := c.view
	view.Pending = c.pending > 0
	return view
}

// Refresh synchronously re-derives selection and plan for the current input.
// Call once after construction to surface the reference-amount routing
// before the user has typed anything.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.debounced = new(big.Int).Set(c.rawAmount)
	c.key = c.makeKey(c.cfg.ChainID, c.direction, c.debounced)
	key := c.key
	c.pending++
	c.mu.Unlock()

	return c.refresh(ctx, key)
}

func (c *Controller) refresh(ctx context.Context, key requestKey) error {
	start := time.Now()
	defer func() {
		metrics.RecordRefresh(time.Since(start))
		c.mu.Lock()
		c.pending--
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RefreshTimeout)
	defer cancel()

	amount, ok := new(big.Int).SetString(key.amount, 10)
	if !ok {
		return fmt.Errorf("failed to parse key amount: %s", key.amount)
	}
	evalAmount := amount
	if evalAmount.Sign() == 0 {
		evalAmount = c.cfg.ReferenceAmount
	}

	var (
		nativeQuote *types.Quote
		poolQuote   *types.Quote
		nativeState types.VenueState
		poolState   types.VenueState
		balance     *big.Int
	)

	// Venue-level failures are absorbed: a failed quote or capacity read
	// marks the venue unavailable, it never fails the refresh.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quote, err := c.native.Quote(gctx, key.direction, evalAmount)
		if err != nil {
			c.logger.WithError(err).Warn("native quote unavailable")
			return nil
		}
		nativeQuote = quote
		return nil
	})
	g.Go(func() error {
		quote, err := c.pool.Quote(gctx, key.direction, evalAmount)
		if err != nil {
			c.logger.WithError(err).Warn("pool quote unavailable")
			return nil
		}
		poolQuote = quote
		return nil
	})
	g.Go(func() error {
		state, err := c.native.State(gctx, key.direction)
		if err != nil {
			c.logger.WithError(err).Warn("native state unavailable")
			nativeState = types.VenueState{BlockedReason: types.BlockedUnavailable}
			return nil
		}
		nativeState = state
		return nil
	})
	g.Go(func() error {
		state, err := c.pool.State(gctx, key.direction)
		if err != nil {
			c.logger.WithError(err).Warn("pool state unavailable")
			poolState = types.VenueState{BlockedReason: types.BlockedUnavailable}
			return nil
		}
		poolState = state
		return nil
	})
	g.Go(func() error {
		bal, err := c.balances.AssetBalance(gctx)
		if err != nil {
			c.logger.WithError(err).Warn("balance unavailable")
			return nil
		}
		balance = bal
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("errgroup failed: %w", err)
	}

	selection := routing.Select(
		key.direction, amount, c.cfg.ReferenceAmount,
		nativeState, poolState, nativeQuote, poolQuote,
	)

	var currentAllowance *big.Int
	if selection.Executable() {
		al, err := c.allowances.Allowance(ctx, key.direction, selection.Provider)
		if err != nil {
			c.logger.WithError(err).Warn("failed to read allowance")
		} else {
			currentAllowance = al
		}
	}

	batchSupported := c.backend.BatchSupported(ctx)

	c.mu.Lock()
	if key != c.key {
		c.mu.Unlock()
		metrics.RecordStaleResponse()
		return nil
	}

	plan := allowance.Compute(selection, key.direction, amount, currentAllowance, batchSupported, c.batchOptIn)
	c.nativeState = nativeState
	c.poolState = poolState
	c.view = View{
		Selection:           selection,
		HasSelection:        true,
		Plan:                plan,
		GuardBlocked:        routing.EvaluatePriceImpact(selection.Quote, c.acknowledged),
		ImpactSeverity:      impactSeverity(selection.Quote),
		InsufficientBalance: c.insufficientLocked(key.direction, amount, balance, nativeState, poolState),
		Guidance:            c.guidance(selection),
	}
	direction := key.direction
	c.mu.Unlock()

	metrics.RecordSelection(selection.Provider.String(), string(selection.Reason), direction.String())

	if selection.Executable() && amount.Sign() > 0 {
		if err := c.loadExecution(key, direction, selection, plan, amount); err != nil {
			c.logger.WithError(err).Warn("failed to load execution")
		}
	}
	return nil
}

// refreshAllowance re-reads only the allowance and re-derives the plan from
// the cached selection. Used after a failed step: balances are assumed
// unchanged, but an already-landed approval must not leave a stale "needs
// approval" prompt.
func (c *Controller) refreshAllowance(ctx context.Context) error {
	c.mu.Lock()
	if !c.view.HasSelection {
		c.mu.Unlock()
		return nil
	}
	selection := c.view.Selection
	direction := c.direction
	amount := new(big.Int).Set(c.debounced)
	key := c.key
	c.mu.Unlock()

	var currentAllowance *big.Int
	if selection.Executable() {
		al, err := c.allowances.Allowance(ctx, direction, selection.Provider)
		if err != nil {
			return fmt.Errorf("failed to read allowance: %w", err)
		}
		currentAllowance = al
	}

	batchSupported := c.backend.BatchSupported(ctx)

	c.mu.Lock()
	if key != c.key {
		c.mu.Unlock()
		metrics.RecordStaleResponse()
		return nil
	}
	plan := allowance.Compute(selection, direction, amount, currentAllowance, batchSupported, c.batchOptIn)
	c.view.Plan = plan
	c.mu.Unlock()

	if selection.Executable() && amount.Sign() > 0 {
		if err := c.loadExecution(key, direction, selection, plan, amount); err != nil {
			c.logger.WithError(err).Warn("failed to load execution")
		}
	}
	return nil
}

func (c *Controller) insufficientLocked(
	direction types.Direction,
	amount *big.Int,
	balance *big.Int,
	nativeState, poolState types.VenueState,
) bool {
	if amount.Sign() == 0 {
		return false
	}
	if direction == types.Supply {
		return balance != nil && amount.Cmp(balance) > 0
	}
	return routing.IsWithdrawBalanceError(amount, nativeState, poolState)
}

func impactSeverity(quote *types.Quote) routing.PriceImpactSeverity {
	if quote == nil {
		return routing.SeverityNone
	}
	return routing.ImpactSeverity(quote.PriceImpactBps)
}
