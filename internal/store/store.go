package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careclaim/claimledger/internal/domain"
)

var (
	ErrNotFound = errors.New("claim not found")
	// ErrStaleUpdate means the claim changed since it was read; the
	// optimistic check on updated_at did not match.
	ErrStaleUpdate = errors.New("claim modified concurrently")
)

// Gateway is the storage boundary of the engine. Implementations must make
// ApplyTransition and CreateDocument atomic: the claim mutation and its
// timeline entry both land or neither does.
type Gateway interface {
	CreateClaim(ctx context.Context, claim *domain.Claim) error
	GetClaim(ctx context.Context, id uuid.UUID) (*domain.Claim, error)
	ListClaims(ctx context.Context, ownerID uuid.UUID) ([]domain.Claim, error)

	// UpdateDraft overwrites the incident payload of a draft. expectedUpdatedAt
	// is the updated_at read at the start of the operation; a mismatch fails
	// with ErrStaleUpdate.
	UpdateDraft(ctx context.Context, claim *domain.Claim, expectedUpdatedAt time.Time) error

	// ApplyTransition persists the claim's new status, anchor and ack fields
	// and appends the timeline entry in one transaction, guarded by the same
	// optimistic check as UpdateDraft.
	ApplyTransition(ctx context.Context, claim *domain.Claim, expectedUpdatedAt time.Time, entry *domain.TimelineEntry) error

	// CreateDocument records evidence metadata and its DocumentUploaded
	// timeline entry in one transaction.
	CreateDocument(ctx context.Context, doc *domain.Document, entry *domain.TimelineEntry) error

	ListTimeline(ctx context.Context, claimID uuid.UUID) ([]domain.TimelineEntry, error)
}
