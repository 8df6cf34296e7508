// Package engine drives the claim lifecycle: it validates transitions,
// fingerprints the payload being recorded, anchors it to the ledger, and
// only after confirmation persists the new status together with its
// timeline entry. Every operation is fail-closed: an error before ledger
// confirmation leaves the claim untouched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/careclaim/claimledger/internal/canonical"
	"github.com/careclaim/claimledger/internal/domain"
	"github.com/careclaim/claimledger/internal/ledger"
	"github.com/careclaim/claimledger/internal/store"
)

var (
	anchoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimledger_anchored_transactions_total",
		Help: "Confirmed ledger transactions by operation",
	}, []string{"op"})

	reconciliationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claimledger_reconciliation_required_total",
		Help: "Lifecycle operations that confirmed on the ledger but failed to persist locally",
	})
)

// Engine is the claim lifecycle state machine. Construct one per process and
// share it; the ledger client and store behind it are safe for concurrent
// use, and per-claim serialization happens internally.
type Engine struct {
	store         store.Gateway
	ledger        ledger.Client
	dateTolerance time.Duration
	now           func() time.Time
	newID         func() uuid.UUID
	locks         *claimLocks
}

// Options tune the engine. Zero values get defaults.
type Options struct {
	// IncidentDateTolerance is how far into the future an incident date may
	// lie before submit rejects it, to absorb client clock skew.
	IncidentDateTolerance time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

func New(gw store.Gateway, lc ledger.Client, opts Options) *Engine {
	if opts.IncidentDateTolerance == 0 {
		opts.IncidentDateTolerance = 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:         gw,
		ledger:        lc,
		dateTolerance: opts.IncidentDateTolerance,
		now:           opts.Clock,
		newID:         uuid.New,
		locks:         newClaimLocks(),
	}
}

// timestamp truncates to microseconds so values survive a round trip through
// timestamptz and the optimistic updated_at comparison stays exact.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// CreateDraft files a new claim in Draft. Nothing is anchored yet; the draft
// stays mutable until submit.
func (e *Engine) CreateDraft(ctx context.Context, actor, policyID uuid.UUID, inc domain.Incident) (*domain.Claim, error) {
	if policyID == uuid.Nil {
		return nil, fmt.Errorf("%w: policy id required", ErrValidation)
	}
	if err := validateIncident(inc, e.timestamp(), e.dateTolerance); err != nil {
		return nil, err
	}

	now := e.timestamp()
	claim := &domain.Claim{
		ID:        e.newID(),
		OwnerID:   actor,
		PolicyID:  policyID,
		Incident:  inc,
		Status:    domain.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateClaim(ctx, claim); err != nil {
		return nil, err
	}
	return claim, nil
}

// UpdateDraft applies a partial incident update. Only drafts are mutable.
func (e *Engine) UpdateDraft(ctx context.Context, claimID, actor uuid.UUID, patch domain.IncidentPatch) (*domain.Claim, error) {
	claim, err := e.ownedClaim(ctx, claimID, actor)
	if err != nil {
		return nil, err
	}
	if claim.Status != domain.StatusDraft {
		return nil, ErrAlreadySubmitted
	}

	readAt := claim.UpdatedAt
	if patch.Type != nil {
		claim.Incident.Type = *patch.Type
	}
	if patch.Date != nil {
		claim.Incident.Date = patch.Date.UTC()
	}
	if patch.Details != nil {
		claim.Incident.Details = *patch.Details
	}
	if patch.Location != nil {
		claim.Incident.Location = *patch.Location
	}
	if patch.AmountClaimed != nil {
		claim.Incident.AmountClaimed = *patch.AmountClaimed
	}
	if err := validateIncident(claim.Incident, e.timestamp(), e.dateTolerance); err != nil {
		return nil, err
	}

	claim.UpdatedAt = e.timestamp()
	if err := e.store.UpdateDraft(ctx, claim, readAt); err != nil {
		return nil, err
	}
	return claim, nil
}

// Submit finalizes the FNOL: it derives the claim-identity fingerprint and
// the FNOL content fingerprint, records both on the ledger, and on
// confirmation moves the claim to Submitted with its anchor pair. The
// identity fingerprint is persisted here once and reused for every later
// ledger call, never re-derived.
func (e *Engine) Submit(ctx context.Context, claimID, actor uuid.UUID) (*domain.TransitionResult, error) {
	e.locks.lock(claimID)
	defer e.locks.unlock(claimID)

	claim, err := e.ownedClaim(ctx, claimID, actor)
	if err != nil {
		return nil, err
	}
	if claim.Status != domain.StatusDraft {
		return nil, ErrAlreadySubmitted
	}
	if err := validateIncident(claim.Incident, e.timestamp(), e.dateTolerance); err != nil {
		return nil, err
	}

	claimKey, err := canonical.Fingerprint(map[string]any{
		"userId":  claim.OwnerID.String(),
		"claimId": claim.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("identity fingerprint: %w", err)
	}
	fnolFP, err := canonical.Fingerprint(map[string]any{
		"policyId": claim.PolicyID.String(),
		"incident": incidentPayload(claim.Incident),
	})
	if err != nil {
		return nil, fmt.Errorf("fnol fingerprint: %w", err)
	}

	txRef, err := e.ledger.CreateClaim(ctx, claimKey, fnolFP)
	if err != nil {
		return nil, err
	}
	anchoredTotal.WithLabelValues("create_claim").Inc()

	readAt := claim.UpdatedAt
	now := e.timestamp()
	claim.Status = domain.StatusSubmitted
	claim.Anchor = &domain.Anchor{ClaimKey: claimKey, Fingerprint: fnolFP, TxRef: string(txRef)}
	claim.UpdatedAt = now

	entry := &domain.TimelineEntry{
		ID:          e.newID(),
		ClaimID:     claim.ID,
		Kind:        domain.EventFNOLSubmitted,
		Description: "FNOL submitted",
		Actor:       actor,
		Timestamp:   now,
		NewStatus:   domain.StatusSubmitted,
		TxRef:       string(txRef),
	}
	if err := e.persistTransition(ctx, claim, readAt, entry, txRef); err != nil {
		return nil, err
	}
	return &domain.TransitionResult{Status: claim.Status, TxRef: string(txRef)}, nil
}

// Acknowledge records the insurer's reference number and anchors it. Allowed
// from Submitted, and again from SubmittedToInsurer: a repeat call overwrites
// the acknowledgement record and re-anchors with a fresh fingerprint.
func (e *Engine) Acknowledge(ctx context.Context, claimID, actor uuid.UUID, referenceNumber string, file *domain.FileMeta) (*domain.TransitionResult, error) {
	if referenceNumber == "" {
		return nil, fmt.Errorf("%w: reference number required", ErrValidation)
	}

	e.locks.lock(claimID)
	defer e.locks.unlock(claimID)

	claim, err := e.ownedClaim(ctx, claimID, actor)
	if err != nil {
		return nil, err
	}
	if claim.Status != domain.StatusSubmitted && claim.Status != domain.StatusSubmittedToInsurer {
		return nil, fmt.Errorf("%w: cannot acknowledge from %s", ErrIllegalTransition, claim.Status)
	}
	if claim.Anchor == nil || claim.Anchor.ClaimKey == "" {
		return nil, ErrAnchorMissing
	}

	now := e.timestamp()
	var fileChecksum any // nil and absent fingerprint identically
	if file != nil {
		fileChecksum = file.Checksum
	}
	contentFP, err := canonical.Fingerprint(map[string]any{
		"referenceNumber": referenceNumber,
		"fileChecksum":    fileChecksum,
		"ts":              now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("ack fingerprint: %w", err)
	}

	code, _ := domain.StatusSubmittedToInsurer.LedgerCode()
	txRef, err := e.ledger.UpdateStatus(ctx, claim.Anchor.ClaimKey, code, contentFP)
	if err != nil {
		return nil, err
	}
	anchoredTotal.WithLabelValues("update_status").Inc()

	readAt := claim.UpdatedAt
	claim.Status = domain.StatusSubmittedToInsurer
	claim.Ack = &domain.Acknowledgement{ReferenceNumber: referenceNumber, File: file, RecordedAt: now}
	claim.Anchor.Fingerprint = contentFP
	claim.Anchor.TxRef = string(txRef)
	claim.UpdatedAt = now

	entry := &domain.TimelineEntry{
		ID:          e.newID(),
		ClaimID:     claim.ID,
		Kind:        domain.EventInsurerAcknowledged,
		Description: "Insurer reference recorded: " + referenceNumber,
		Actor:       actor,
		Timestamp:   now,
		TxRef:       string(txRef),
	}
	if err := e.persistTransition(ctx, claim, readAt, entry, txRef); err != nil {
		return nil, err
	}
	return &domain.TransitionResult{Status: claim.Status, TxRef: string(txRef)}, nil
}

// Advance moves a claim to InReview, Approved, Rejected or Paid, anchoring
// the transition first. Any target outside the legal successor set of the
// current status is rejected with no side effects.
func (e *Engine) Advance(ctx context.Context, claimID, actor uuid.UUID, target domain.ClaimStatus) (*domain.TransitionResult, error) {
	if !validAdvanceTarget(target) {
		return nil, fmt.Errorf("%w: %q is not an advance target", ErrValidation, target)
	}

	e.locks.lock(claimID)
	defer e.locks.unlock(claimID)

	claim, err := e.ownedClaim(ctx, claimID, actor)
	if err != nil {
		return nil, err
	}
	if !canAdvance(claim.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, claim.Status, target)
	}
	if claim.Anchor == nil || claim.Anchor.ClaimKey == "" {
		return nil, ErrAnchorMissing
	}

	now := e.timestamp()
	contentFP, err := canonical.Fingerprint(map[string]any{
		"newStatus": string(target),
		"ts":        now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("status fingerprint: %w", err)
	}

	code, _ := target.LedgerCode()
	txRef, err := e.ledger.UpdateStatus(ctx, claim.Anchor.ClaimKey, code, contentFP)
	if err != nil {
		return nil, err
	}
	anchoredTotal.WithLabelValues("update_status").Inc()

	readAt := claim.UpdatedAt
	claim.Status = target
	claim.Anchor.Fingerprint = contentFP
	claim.Anchor.TxRef = string(txRef)
	claim.UpdatedAt = now

	entry := &domain.TimelineEntry{
		ID:          e.newID(),
		ClaimID:     claim.ID,
		Kind:        domain.EventStatusChanged,
		Description: fmt.Sprintf("Status changed to %s", target),
		Actor:       actor,
		Timestamp:   now,
		NewStatus:   target,
		TxRef:       string(txRef),
	}
	if err := e.persistTransition(ctx, claim, readAt, entry, txRef); err != nil {
		return nil, err
	}
	return &domain.TransitionResult{Status: claim.Status, TxRef: string(txRef)}, nil
}

// AttachDocument records evidence metadata against a claim and appends the
// matching timeline entry. Documents are not anchored individually; their
// checksums enter the ledger via the acknowledgement fingerprint.
func (e *Engine) AttachDocument(ctx context.Context, claimID, actor uuid.UUID, docType string, file domain.FileMeta) (*domain.Document, error) {
	if file.FileName == "" || file.Checksum == "" {
		return nil, fmt.Errorf("%w: file name and checksum required", ErrValidation)
	}
	if docType == "" {
		docType = "Other"
	}

	claim, err := e.ownedClaim(ctx, claimID, actor)
	if err != nil {
		return nil, err
	}

	now := e.timestamp()
	doc := &domain.Document{
		ID:         e.newID(),
		ClaimID:    claim.ID,
		Type:       docType,
		FileName:   file.FileName,
		Size:       file.Size,
		Checksum:   file.Checksum,
		UploadedBy: actor,
		CreatedAt:  now,
	}
	entry := &domain.TimelineEntry{
		ID:          e.newID(),
		ClaimID:     claim.ID,
		Kind:        domain.EventDocumentUploaded,
		Description: "Document uploaded: " + file.FileName,
		Actor:       actor,
		Timestamp:   now,
		DocumentID:  &doc.ID,
	}
	if err := e.store.CreateDocument(ctx, doc, entry); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get returns a claim with its ordered timeline. Pure read; reflects only
// completed operations.
func (e *Engine) Get(ctx context.Context, claimID, actor uuid.UUID) (*domain.ClaimView, error) {
	claim, err := e.ownedClaim(ctx, claimID, actor)
	if err != nil {
		return nil, err
	}
	timeline, err := e.store.ListTimeline(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return &domain.ClaimView{Claim: *claim, Timeline: timeline}, nil
}

// List returns the actor's claims, most recently touched first.
func (e *Engine) List(ctx context.Context, actor uuid.UUID) ([]domain.Claim, error) {
	return e.store.ListClaims(ctx, actor)
}

// ownedClaim loads a claim and hides its existence from non-owners.
func (e *Engine) ownedClaim(ctx context.Context, claimID, actor uuid.UUID) (*domain.Claim, error) {
	claim, err := e.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.OwnerID != actor {
		return nil, store.ErrNotFound
	}
	return claim, nil
}

// persistTransition writes the already-confirmed transition. Failure here is
// the one place where ledger state and local state diverge, so it is
// reported as a ReconciliationError and counted separately.
func (e *Engine) persistTransition(ctx context.Context, claim *domain.Claim, readAt time.Time, entry *domain.TimelineEntry, txRef ledger.TxRef) error {
	err := e.store.ApplyTransition(ctx, claim, readAt, entry)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrStaleUpdate) {
		// The claim moved under us after the ledger call. The per-claim lock
		// makes this unreachable through this engine; if it happens the
		// anchor is still on the ledger and needs reconciling like any other
		// post-confirmation failure.
		log.Printf("reconciliation required: claim %s stale after confirmed tx %s", claim.ID, txRef)
	} else {
		log.Printf("reconciliation required: claim %s tx %s: %v", claim.ID, txRef, err)
	}
	reconciliationTotal.Inc()
	return &ReconciliationError{ClaimStatus: claim.Status, TxRef: txRef, Err: err}
}

func validateIncident(inc domain.Incident, now time.Time, tolerance time.Duration) error {
	if inc.Type == "" {
		return fmt.Errorf("%w: incident type required", ErrValidation)
	}
	if inc.Date.IsZero() {
		return fmt.Errorf("%w: incident date required", ErrValidation)
	}
	if inc.Date.After(now.Add(tolerance)) {
		return fmt.Errorf("%w: incident date is in the future", ErrValidation)
	}
	if inc.Details == "" {
		return fmt.Errorf("%w: incident details required", ErrValidation)
	}
	if inc.AmountClaimed < 0 {
		return fmt.Errorf("%w: amount claimed must not be negative", ErrValidation)
	}
	return nil
}

// incidentPayload is the canonical shape of an incident for fingerprinting.
// The date is normalized to RFC 3339 UTC so a stored claim re-fingerprints
// identically.
func incidentPayload(inc domain.Incident) map[string]any {
	return map[string]any{
		"type":          inc.Type,
		"date":          inc.Date.UTC().Format(time.RFC3339Nano),
		"details":       inc.Details,
		"location":      inc.Location,
		"amountClaimed": inc.AmountClaimed,
	}
}
