// Package orchestrator sequences the steps of a transaction plan through the
// wallet backend: approve first when needed, then the supply/withdraw action,
// or both bundled into one atomic submission. It owns the only mutable state
// in the pipeline and mutates it exclusively through the transitions below.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/earn/metrics"
	"github.com/vultisig/earn/types"
)

// ExecutionBackend is the wallet/RPC boundary: simulate a submission, then
// hand it to the user's wallet.
type ExecutionBackend interface {
	Prepare(ctx context.Context, calls []Call) (Prepared, error)
	BatchSupported(ctx context.Context) bool
}

// Prepared is a simulated submission ready for the wallet prompt. Execute
// returns types.ErrUserCancelled when the user dismisses the prompt.
type Prepared interface {
	Execute(ctx context.Context) (string, error)
}

// ReceiptWaiter blocks until a submitted transaction is mined and reports
// whether it succeeded on chain.
type ReceiptWaiter interface {
	WaitMined(ctx context.Context, hash string) (bool, error)
}

// Notification is what the sink receives on step success or failure.
type Notification struct {
	Title       string
	Description string
	Status      string
	Kind        types.FailureKind
}

type NotificationSink interface {
	Notify(n Notification)
}

// RefreshHooks lets the caller re-read on-chain state after a step resolves.
// After success both allowance and balances changed; after an error only the
// allowance is re-read, so a failed-but-already-approved step does not leave
// a stale "needs approval" prompt behind.
type RefreshHooks interface {
	OnStepSuccess(ctx context.Context)
	OnStepError(ctx context.Context)
}

type Orchestrator struct {
	mu      sync.Mutex
	logger  logrus.FieldLogger
	backend ExecutionBackend
	waiter  ReceiptWaiter
	sink    NotificationSink
	hooks   RefreshHooks
	history *History

	state State
	exec  *Execution

	// gen invalidates in-flight submissions across hard resets: a wait
	// that resolves after a flow/chain switch must not touch the state.
	gen uint64
}

func New(
	logger *logrus.Logger,
	backend ExecutionBackend,
	waiter ReceiptWaiter,
	sink NotificationSink,
	hooks RefreshHooks,
	history *History,
) *Orchestrator {
	return &Orchestrator{
		logger:  logger.WithField("pkg", "orchestrator"),
		backend: backend,
		waiter:  waiter,
		sink:    sink,
		hooks:   hooks,
		history: history,
		state:   State{Status: StatusIdle, CurrentStep: 1},
	}
}

// SetHooks attaches the post-step refresh hooks. The session implements
// them, and the session needs the orchestrator first; set once during wiring.
func (o *Orchestrator) SetHooks(hooks RefreshHooks) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = hooks
}

// State returns a copy of the live record.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Load replaces the execution while idle. A fresh execution restarts the
// step sequence; loading is rejected once a submission is in flight or
// terminal so the frozen plan cannot be swapped out from under it.
func (o *Orchestrator) Load(exec *Execution) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Status != StatusIdle {
		return types.ErrNotIdle
	}
	if exec == nil || len(exec.Steps) == 0 {
		return types.ErrNoPlan
	}
	o.exec = exec
	o.state.CurrentStep = 1
	o.state.Hash = ""
	o.state.Err = nil
	o.state.FailureKind = ""
	o.state.SnapshotAmount = nil
	return nil
}

// Submit initiates the current step. The snapshot amount is fixed at this
// transition and survives any later input edits until the submission
// resolves.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.exec == nil {
		o.mu.Unlock()
		return types.ErrNoPlan
	}
	if o.state.Status != StatusIdle {
		o.mu.Unlock()
		return types.ErrNotIdle
	}
	if o.exec.Amount == nil || o.exec.Amount.Sign() == 0 {
		o.mu.Unlock()
		return types.ErrNotReady
	}

	o.state.Status = StatusInitialized
	o.state.SnapshotAmount = new(big.Int).Set(o.exec.Amount)
	o.state.Err = nil
	o.state.FailureKind = ""
	o.state.Hash = ""
	exec := o.exec
	step := exec.Steps[o.state.CurrentStep-1]
	gen := o.gen
	o.mu.Unlock()

	return o.runStep(ctx, exec, step, gen)
}

// Retry re-submits the same step with the same snapshot after a failure. It
// does not re-derive the plan.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Status != StatusError {
		o.mu.Unlock()
		return types.ErrNotRetryable
	}
	o.state.Status = StatusInitialized
	o.state.Err = nil
	o.state.FailureKind = ""
	o.state.Hash = ""
	exec := o.exec
	step := exec.Steps[o.state.CurrentStep-1]
	gen := o.gen
	o.mu.Unlock()

	return o.runStep(ctx, exec, step, gen)
}

// Reset hard-resets to idle: flow change, network switch, unmount, or the
// caller acknowledging a terminal state. Any in-flight submission outcome is
// discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.exec = nil
	o.state = State{Status: StatusIdle, CurrentStep: 1}
}

func (o *Orchestrator) runStep(ctx context.Context, exec *Execution, step Step, gen uint64) error {
	l := o.logger.WithFields(logrus.Fields{
		"direction": exec.Direction.String(),
		"provider":  exec.Provider.String(),
		"batched":   exec.Batched,
		"calls":     len(step.Calls),
	})

	prepared, err := o.backend.Prepare(ctx, step.Calls)
	if err != nil {
		l.WithError(err).Error("failed to prepare submission")
		o.fail(ctx, gen, exec, types.FailurePrepare, fmt.Errorf("failed to prepare submission: %w", err), step)
		return err
	}

	hash, err := prepared.Execute(ctx)
	if err != nil {
		if errors.Is(err, types.ErrUserCancelled) {
			l.Info("wallet prompt dismissed")
			o.cancel(gen)
			return err
		}
		l.WithError(err).Error("failed to execute submission")
		o.fail(ctx, gen, exec, types.FailureExecution, fmt.Errorf("failed to execute submission: %w", err), step)
		return err
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return nil
	}
	o.state.Status = StatusLoading
	o.state.Hash = hash
	o.mu.Unlock()

	l = l.WithField("hash", hash)
	l.Info("submission broadcast, waiting for receipt")

	ok, err := o.waiter.WaitMined(ctx, hash)
	if err != nil {
		l.WithError(err).Error("failed to wait for receipt")
		o.fail(ctx, gen, exec, types.FailureExecution, fmt.Errorf("failed to wait for receipt: %w", err), step)
		return err
	}
	if !ok {
		err = fmt.Errorf("transaction reverted: %s", hash)
		l.Error("transaction reverted")
		o.fail(ctx, gen, exec, types.FailureExecution, err, step)
		return err
	}

	o.succeed(ctx, gen, exec, step, hash)
	l.Info("step confirmed")
	return nil
}

func (o *Orchestrator) succeed(ctx context.Context, gen uint64, exec *Execution, step Step, hash string) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	last := o.state.CurrentStep >= len(exec.Steps)
	if last {
		o.state.Status = StatusSuccess
	} else {
		// Approval confirmed: advance and return to idle. The next step
		// still needs an explicit submit.
		o.state.CurrentStep++
		o.state.Status = StatusIdle
		o.state.Hash = ""
		o.state.SnapshotAmount = nil
	}
	o.mu.Unlock()

	metrics.RecordSubmission(exec.Provider.String(), exec.Direction.String(), "success")
	if o.history != nil {
		o.history.Append(hash, step.Description)
	}
	if o.sink != nil {
		o.sink.Notify(Notification{
			Title:       "Transaction confirmed",
			Description: step.Description,
			Status:      "success",
		})
	}
	if o.hooks != nil {
		o.hooks.OnStepSuccess(ctx)
	}
}

func (o *Orchestrator) fail(ctx context.Context, gen uint64, exec *Execution, kind types.FailureKind, err error, step Step) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.state.Status = StatusError
	o.state.Err = err
	o.state.FailureKind = kind
	o.mu.Unlock()

	metrics.RecordSubmission(exec.Provider.String(), exec.Direction.String(), "error")
	if o.sink != nil {
		o.sink.Notify(Notification{
			Title:       "Transaction failed",
			Description: step.Description,
			Status:      "error",
			Kind:        kind,
		})
	}
	if o.hooks != nil {
		o.hooks.OnStepError(ctx)
	}
}

func (o *Orchestrator) cancel(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	// A dismissed prompt is not a failure: no sink notification, no
	// refresh. The caller resets back to idle to go again.
	o.state.Status = StatusCancelled
	o.state.Hash = ""
}

// AcknowledgeTerminal returns to idle from a terminal state so the next plan
// can be derived. No-op while a submission is in flight.
func (o *Orchestrator) AcknowledgeTerminal() {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state.Status {
	case StatusSuccess, StatusCancelled, StatusError:
		o.gen++
		o.exec = nil
		o.state = State{Status: StatusIdle, CurrentStep: 1}
	}
}
