package orchestrator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vultisig/earn/types"
)

// Status is the lifecycle position of the current submission.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusInitialized Status = "initialized"
	StatusLoading     Status = "loading"
	StatusSuccess     Status = "success"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// State is the orchestrator's live record. SnapshotAmount is captured when a
// step is initiated and stays fixed for the lifetime of that submission, even
// if the user edits the input afterwards.
type State struct {
	Status         Status
	CurrentStep    int
	Hash           string
	Err            error
	FailureKind    types.FailureKind
	SnapshotAmount *big.Int
}

// Call is one contract invocation inside a wallet submission.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Step is one wallet submission: a single call normally, two calls for a
// batched approve+action.
type Step struct {
	Calls       []Call
	Description string
}

// Execution is a transaction plan materialized into concrete calls, frozen
// together with the debounced amount that produced it. Recomputed upstream on
// every input change while the orchestrator is idle, immutable afterwards.
type Execution struct {
	Direction types.Direction
	Provider  types.Venue
	Amount    *big.Int
	Steps     []Step
	Batched   bool
}
