package engine

import "github.com/careclaim/claimledger/internal/domain"

// advanceTargets is the transition table for the advance operation.
// submit (Draft -> Submitted) and acknowledge (Submitted -> SubmittedToInsurer)
// are separate operations and deliberately absent here. Rejected and Paid are
// terminal.
var advanceTargets = map[domain.ClaimStatus][]domain.ClaimStatus{
	domain.StatusSubmittedToInsurer: {domain.StatusInReview},
	domain.StatusInReview:           {domain.StatusApproved, domain.StatusRejected},
	domain.StatusApproved:           {domain.StatusPaid},
}

// validAdvanceTarget reports whether target may ever be reached via advance,
// regardless of the current status.
func validAdvanceTarget(target domain.ClaimStatus) bool {
	switch target {
	case domain.StatusInReview, domain.StatusApproved, domain.StatusRejected, domain.StatusPaid:
		return true
	}
	return false
}

// canAdvance reports whether target is a legal successor of from.
func canAdvance(from, target domain.ClaimStatus) bool {
	for _, t := range advanceTargets[from] {
		if t == target {
			return true
		}
	}
	return false
}
