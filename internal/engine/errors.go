package engine

import (
	"errors"
	"fmt"

	"github.com/careclaim/claimledger/internal/domain"
	"github.com/careclaim/claimledger/internal/ledger"
)

var (
	// ErrValidation covers caller-supplied data failing a precondition.
	// No ledger call has been made.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadySubmitted means submit was called on a claim past Draft.
	ErrAlreadySubmitted = errors.New("claim already submitted")
	// ErrIllegalTransition means the requested status is not a legal
	// successor of the claim's current status. Status is unchanged.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrAnchorMissing means a claim past Draft has no persisted identity
	// fingerprint. The engine never re-derives it; this indicates drift from
	// a prior partial failure and needs operator attention.
	ErrAnchorMissing = errors.New("claim anchor record missing")
)

// ReconciliationError is returned when the ledger confirmed a transaction
// but the local write that should have recorded it failed. The ledger and
// the local record now disagree; this must be surfaced distinctly so
// operators can repair the drift, and it must never be retried blindly.
type ReconciliationError struct {
	ClaimStatus domain.ClaimStatus // status the claim should have reached
	TxRef       ledger.TxRef       // the confirmed ledger transaction
	Err         error              // the persistence failure
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation required: ledger tx %s confirmed for status %s but local write failed: %v",
		e.TxRef, e.ClaimStatus, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
