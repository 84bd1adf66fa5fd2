package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/earn/types"
)

type fakeBackend struct {
	mu         sync.Mutex
	prepareErr error
	execErr    error
	hashSeq    int
	prepared   [][]Call
}

func (b *fakeBackend) Prepare(_ context.Context, calls []Call) (Prepared, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prepared = append(b.prepared, calls)
	if b.prepareErr != nil {
		return nil, b.prepareErr
	}
	b.hashSeq++
	return &fakePrepared{backend: b, hash: fmt.Sprintf("0x%04d", b.hashSeq)}, nil
}

func (b *fakeBackend) BatchSupported(_ context.Context) bool {
	return true
}

func (b *fakeBackend) setExecErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.execErr = err
}

type fakePrepared struct {
	backend *fakeBackend
	hash    string
}

func (p *fakePrepared) Execute(_ context.Context) (string, error) {
	p.backend.mu.Lock()
	err := p.backend.execErr
	p.backend.mu.Unlock()
	if err != nil {
		return "", err
	}
	return p.hash, nil
}

type fakeWaiter struct {
	mu    sync.Mutex
	mined bool
	err   error
	block chan struct{}
}

func (w *fakeWaiter) WaitMined(_ context.Context, _ string) (bool, error) {
	w.mu.Lock()
	block := w.block
	mined, err := w.mined, w.err
	w.mu.Unlock()
	if block != nil {
		<-block
	}
	return mined, err
}

type fakeSink struct {
	mu    sync.Mutex
	notes []Notification
}

func (s *fakeSink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *fakeSink) all() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notes...)
}

type fakeHooks struct {
	mu      sync.Mutex
	success int
	failure int
}

func (h *fakeHooks) OnStepSuccess(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.success++
}

func (h *fakeHooks) OnStepError(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failure++
}

func (h *fakeHooks) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.success, h.failure
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testCall() Call {
	return Call{To: common.HexToAddress("0x1"), Value: big.NewInt(0), Data: []byte{0x01}}
}

func approveThenAction(batched bool) *Execution {
	exec := &Execution{
		Direction: types.Supply,
		Provider:  types.Native,
		Amount:    big.NewInt(100),
		Batched:   batched,
	}
	if batched {
		exec.Steps = []Step{{Calls: []Call{testCall(), testCall()}, Description: "Approve and supply"}}
	} else {
		exec.Steps = []Step{
			{Calls: []Call{testCall()}, Description: "Approve"},
			{Calls: []Call{testCall()}, Description: "Supply"},
		}
	}
	return exec
}

func actionOnly() *Execution {
	return &Execution{
		Direction: types.Supply,
		Provider:  types.Native,
		Amount:    big.NewInt(100),
		Steps:     []Step{{Calls: []Call{testCall()}, Description: "Supply"}},
	}
}

func newTestOrchestrator(t *testing.T, backend *fakeBackend, waiter *fakeWaiter) (*Orchestrator, *fakeSink, *fakeHooks) {
	t.Helper()
	sink := &fakeSink{}
	hooks := &fakeHooks{}
	history, err := NewHistory(8)
	require.NoError(t, err)
	return New(testLogger(), backend, waiter, sink, hooks, history), sink, hooks
}

func TestSubmit_SingleStepSuccess(t *testing.T) {
	backend := &fakeBackend{}
	orch, sink, hooks := newTestOrchestrator(t, backend, &fakeWaiter{mined: true})

	require.NoError(t, orch.Load(actionOnly()))
	require.NoError(t, orch.Submit(context.Background()))

	state := orch.State()
	assert.Equal(t, StatusSuccess, state.Status)
	assert.NotEmpty(t, state.Hash)
	assert.Equal(t, big.NewInt(100), state.SnapshotAmount)

	notes := sink.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "success", notes[0].Status)

	success, failure := hooks.counts()
	assert.Equal(t, 1, success)
	assert.Zero(t, failure)
}

func TestSubmit_TwoStepSequencing(t *testing.T) {
	backend := &fakeBackend{}
	orch, _, hooks := newTestOrchestrator(t, backend, &fakeWaiter{mined: true})

	require.NoError(t, orch.Load(approveThenAction(false)))

	// Approval confirms, orchestrator returns to idle on the action step.
	require.NoError(t, orch.Submit(context.Background()))
	state := orch.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, 2, state.CurrentStep)
	assert.Nil(t, state.SnapshotAmount, "snapshot releases between steps")
	assert.Empty(t, state.Hash)

	// The action step needs its own explicit submit.
	require.NoError(t, orch.Submit(context.Background()))
	state = orch.State()
	assert.Equal(t, StatusSuccess, state.Status)
	assert.Equal(t, 2, state.CurrentStep)

	success, _ := hooks.counts()
	assert.Equal(t, 2, success)
	assert.Len(t, backend.prepared, 2)
}

func TestSubmit_BatchedSingleCycle(t *testing.T) {
	backend := &fakeBackend{}
	orch, _, _ := newTestOrchestrator(t, backend, &fakeWaiter{mined: true})

	require.NoError(t, orch.Load(approveThenAction(true)))
	require.NoError(t, orch.Submit(context.Background()))

	assert.Equal(t, StatusSuccess, orch.State().Status)
	require.Len(t, backend.prepared, 1)
	assert.Len(t, backend.prepared[0], 2, "batched step carries both calls in one submission")
}

func TestLoad_RejectsEmptyPlan(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeBackend{}, &fakeWaiter{mined: true})

	empty := actionOnly()
	empty.Steps = nil
	assert.ErrorIs(t, orch.Load(empty), types.ErrNoPlan)
	assert.ErrorIs(t, orch.Load(nil), types.ErrNoPlan)

	// The rejected load leaves the orchestrator usable.
	require.NoError(t, orch.Load(actionOnly()))
	require.NoError(t, orch.Submit(context.Background()))
	assert.Equal(t, StatusSuccess, orch.State().Status)
}

func TestSubmit_Gates(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeBackend{}, &fakeWaiter{mined: true})

	assert.ErrorIs(t, orch.Submit(context.Background()), types.ErrNoPlan)

	zero := actionOnly()
	zero.Amount = big.NewInt(0)
	require.NoError(t, orch.Load(zero))
	assert.ErrorIs(t, orch.Submit(context.Background()), types.ErrNotReady)
}

func TestSubmit_PrepareFailure(t *testing.T) {
	backend := &fakeBackend{prepareErr: errors.New("simulation reverted")}
	orch, sink, hooks := newTestOrchestrator(t, backend, &fakeWaiter{mined: true})

	require.NoError(t, orch.Load(actionOnly()))
	require.Error(t, orch.Submit(context.Background()))

	state := orch.State()
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, types.FailurePrepare, state.FailureKind)
	require.Error(t, state.Err)

	notes := sink.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "error", notes[0].Status)
	assert.Equal(t, types.FailurePrepare, notes[0].Kind)

	_, failure := hooks.counts()
	assert.Equal(t, 1, failure)
}

func TestSubmit_UserCancelled(t *testing.T) {
	backend := &fakeBackend{execErr: types.ErrUserCancelled}
	orch, sink, hooks := newTestOrchestrator(t, backend, &fakeWaiter{mined: true})

	require.NoError(t, orch.Load(actionOnly()))
	err := orch.Submit(context.Background())
	assert.ErrorIs(t, err, types.ErrUserCancelled)

	assert.Equal(t, StatusCancelled, orch.State().Status)
	assert.Empty(t, sink.all(), "a dismissed prompt is not reported as a failure")
	success, failure := hooks.counts()
	assert.Zero(t, success)
	assert.Zero(t, failure)
}

func TestSubmit_RevertedTransaction(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeBackend{}, &fakeWaiter{mined: false})

	require.NoError(t, orch.Load(actionOnly()))
	require.Error(t, orch.Submit(context.Background()))

	state := orch.State()
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, types.FailureExecution, state.FailureKind)
}

func TestRetry_SameStepAndSnapshot(t *testing.T) {
	backend := &fakeBackend{execErr: errors.New("nonce too low")}
	orch, _, _ := newTestOrchestrator(t, backend, &fakeWaiter{mined: true})

	require.NoError(t, orch.Load(actionOnly()))
	require.Error(t, orch.Submit(context.Background()))
	require.Equal(t, StatusError, orch.State().Status)

	// Retry is only legal from the error state.
	backend.setExecErr(nil)
	require.NoError(t, orch.Retry(context.Background()))

	state := orch.State()
	assert.Equal(t, StatusSuccess, state.Status)
	assert.Equal(t, big.NewInt(100), state.SnapshotAmount, "retry keeps the original snapshot")
	assert.ErrorIs(t, orch.Retry(context.Background()), types.ErrNotRetryable)
}

func TestSnapshotIsolation(t *testing.T) {
	waiter := &fakeWaiter{mined: true, block: make(chan struct{})}
	orch, _, _ := newTestOrchestrator(t, &fakeBackend{}, waiter)

	require.NoError(t, orch.Load(actionOnly()))

	done := make(chan error, 1)
	go func() {
		done <- orch.Submit(context.Background())
	}()

	require.Eventually(t, func() bool {
		return orch.State().Status == StatusLoading
	}, time.Second, 5*time.Millisecond)

	// A new plan cannot replace the in-flight one, and the snapshot holds.
	assert.ErrorIs(t, orch.Load(actionOnly()), types.ErrNotIdle)
	assert.ErrorIs(t, orch.Submit(context.Background()), types.ErrNotIdle)
	assert.Equal(t, big.NewInt(100), orch.State().SnapshotAmount)

	close(waiter.block)
	require.NoError(t, <-done)
	assert.Equal(t, StatusSuccess, orch.State().Status)
}

func TestReset_DiscardsInFlightOutcome(t *testing.T) {
	waiter := &fakeWaiter{mined: true, block: make(chan struct{})}
	orch, sink, hooks := newTestOrchestrator(t, &fakeBackend{}, waiter)

	require.NoError(t, orch.Load(actionOnly()))

	done := make(chan error, 1)
	go func() {
		done <- orch.Submit(context.Background())
	}()

	require.Eventually(t, func() bool {
		return orch.State().Status == StatusLoading
	}, time.Second, 5*time.Millisecond)

	orch.Reset()
	close(waiter.block)
	require.NoError(t, <-done)

	state := orch.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, 1, state.CurrentStep)
	assert.Empty(t, sink.all(), "a reset discards the stale outcome silently")
	success, _ := hooks.counts()
	assert.Zero(t, success)
}

func TestAcknowledgeTerminal(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeBackend{}, &fakeWaiter{mined: true})

	require.NoError(t, orch.Load(actionOnly()))
	require.NoError(t, orch.Submit(context.Background()))
	require.Equal(t, StatusSuccess, orch.State().Status)

	// Terminal states reject a new plan until acknowledged.
	assert.ErrorIs(t, orch.Load(actionOnly()), types.ErrNotIdle)

	orch.AcknowledgeTerminal()
	state := orch.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, 1, state.CurrentStep)
	assert.NoError(t, orch.Load(actionOnly()))
}
