package types

import "errors"

// Failure classification for NotificationSink routing. Venue-level shortfalls
// never surface as Go errors; they live in VenueState/Selection. These cover
// step-level and input-level failures only.
type FailureKind string

const (
	FailureInsufficientBalance FailureKind = "insufficient_balance"
	FailureAllBlocked          FailureKind = "all_providers_blocked"
	FailurePrepare             FailureKind = "prepare_error"
	FailureExecution           FailureKind = "execution_error"
	FailureCancelled           FailureKind = "user_cancelled"
)

var (
	// ErrUserCancelled marks a wallet prompt the user dismissed. Callers
	// surface it as a cancellation, not a failure.
	ErrUserCancelled = errors.New("user cancelled wallet prompt")

	// ErrNotIdle is returned when a submit arrives while a submission for
	// the same step is already in flight or terminal.
	ErrNotIdle = errors.New("transaction state is not idle")

	// ErrNotReady is returned when a submit arrives while quote, allowance
	// or balance reads for the active step are still pending.
	ErrNotReady = errors.New("session is not ready to submit")

	// ErrNoPlan is returned when a submit arrives before any plan was loaded.
	ErrNoPlan = errors.New("no transaction plan loaded")

	// ErrPriceImpactBlocked gates submission until the user acknowledges
	// the shown price impact.
	ErrPriceImpactBlocked = errors.New("price impact above threshold, not acknowledged")

	// ErrNotRetryable is returned when retry is requested outside the
	// error state.
	ErrNotRetryable = errors.New("no failed submission to retry")

	// ErrAllProvidersBlocked marks a submit against a decision where no
	// venue can serve the amount.
	ErrAllProvidersBlocked = errors.New("all providers blocked")

	// ErrInsufficientBalance marks a submit for more than the user holds
	// (supply) or can exit (withdraw).
	ErrInsufficientBalance = errors.New("insufficient balance")
)
