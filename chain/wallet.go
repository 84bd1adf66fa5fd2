package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vultisig/earn/orchestrator"
)

// SubmitFunc hands prepared calls to the user's wallet for signing and
// broadcast, returning the transaction hash. One call is a plain submission;
// multiple calls are an atomic bundle and must only be passed to wallets that
// report batch support. Implementations return types.ErrUserCancelled when
// the user dismisses the prompt.
type SubmitFunc func(ctx context.Context, calls []orchestrator.Call) (string, error)

// Wallet is the execution backend: it simulates each call against the node
// before handing the bundle to the wallet, so obviously-reverting submissions
// fail as prepare errors instead of burning gas.
type Wallet struct {
	rpc            *ethclient.Client
	from           common.Address
	submit         SubmitFunc
	batchSupported bool
}

func NewWallet(rpc *ethclient.Client, from common.Address, submit SubmitFunc, batchSupported bool) *Wallet {
	return &Wallet{
		rpc:            rpc,
		from:           from,
		submit:         submit,
		batchSupported: batchSupported,
	}
}

func (w *Wallet) BatchSupported(_ context.Context) bool {
	return w.batchSupported
}

func (w *Wallet) Prepare(ctx context.Context, calls []orchestrator.Call) (orchestrator.Prepared, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("no calls to prepare")
	}
	if len(calls) > 1 && !w.batchSupported {
		return nil, fmt.Errorf("wallet does not support batched submissions")
	}

	// Approve-then-act bundles cannot be fully simulated statelessly: the
	// action may depend on the approval landing first. Simulate the first
	// call only; the bundle is atomic either way.
	first := calls[0]
	_, err := w.rpc.CallContract(ctx, ethereum.CallMsg{
		From:  w.from,
		To:    &first.To,
		Value: first.Value,
		Data:  first.Data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate call: %w", err)
	}

	return &preparedSubmission{wallet: w, calls: calls}, nil
}

type preparedSubmission struct {
	wallet *Wallet
	calls  []orchestrator.Call
}

func (p *preparedSubmission) Execute(ctx context.Context) (string, error) {
	hash, err := p.wallet.submit(ctx, p.calls)
	if err != nil {
		return "", err
	}
	return hash, nil
}
