package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClaimStatus is the lifecycle state of a claim. Transitions between
// statuses are owned exclusively by the engine package.
type ClaimStatus string

const (
	StatusDraft              ClaimStatus = "Draft"
	StatusSubmitted          ClaimStatus = "Submitted"
	StatusSubmittedToInsurer ClaimStatus = "SubmittedToInsurer"
	StatusInReview           ClaimStatus = "InReview"
	StatusApproved           ClaimStatus = "Approved"
	StatusRejected           ClaimStatus = "Rejected"
	StatusPaid               ClaimStatus = "Paid"
)

// LedgerCode maps a status to the numeric code the ledger contract expects.
// The mapping is part of the external contract and must never be reordered.
// Draft is never anchored and has no code.
func (s ClaimStatus) LedgerCode() (uint8, bool) {
	switch s {
	case StatusSubmitted:
		return 1, true // recorded on-chain as Created
	case StatusSubmittedToInsurer:
		return 2, true
	case StatusInReview:
		return 3, true
	case StatusApproved:
		return 4, true
	case StatusRejected:
		return 5, true
	case StatusPaid:
		return 6, true
	}
	return 0, false
}

// Terminal reports whether the status has no outbound transitions.
func (s ClaimStatus) Terminal() bool {
	return s == StatusRejected || s == StatusPaid
}

// Incident is the FNOL payload. Mutable only while the claim is a Draft.
// AmountClaimed is stored in minor currency units.
type Incident struct {
	Type          string    `json:"type"`
	Date          time.Time `json:"date"`
	Details       string    `json:"details"`
	Location      string    `json:"location,omitempty"`
	AmountClaimed int64     `json:"amount_claimed"`
}

// IncidentPatch is a partial update applied to a draft's incident.
// Nil fields are left untouched.
type IncidentPatch struct {
	Type          *string    `json:"type,omitempty"`
	Date          *time.Time `json:"date,omitempty"`
	Details       *string    `json:"details,omitempty"`
	Location      *string    `json:"location,omitempty"`
	AmountClaimed *int64     `json:"amount_claimed,omitempty"`
}

// Anchor pairs the content fingerprint of the last-anchored payload with the
// ledger transaction that recorded it. The two are written together or not
// at all. ClaimKey is the claim-identity fingerprint computed once at submit
// and reused for every later ledger call.
type Anchor struct {
	ClaimKey    string `json:"claim_key"`
	Fingerprint string `json:"fingerprint"`
	TxRef       string `json:"tx_ref"`
}

// FileMeta describes an uploaded file by reference. Byte storage lives
// outside this service; only the checksum is trusted here.
type FileMeta struct {
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Acknowledgement records the insurer's reference for a submitted claim.
type Acknowledgement struct {
	ReferenceNumber string    `json:"reference_number"`
	File            *FileMeta `json:"file,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Claim is one filed insurance claim.
type Claim struct {
	ID        uuid.UUID        `json:"id"`
	OwnerID   uuid.UUID        `json:"owner_id"`
	PolicyID  uuid.UUID        `json:"policy_id"`
	Incident  Incident         `json:"incident"`
	Status    ClaimStatus      `json:"status"`
	Anchor    *Anchor          `json:"anchor,omitempty"`
	Ack       *Acknowledgement `json:"ack,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// EventKind classifies a timeline entry.
type EventKind string

const (
	EventFNOLSubmitted       EventKind = "FNOLSubmitted"
	EventStatusChanged       EventKind = "StatusChanged"
	EventDocumentUploaded    EventKind = "DocumentUploaded"
	EventInsurerAcknowledged EventKind = "InsurerAcknowledged"
	EventLedgerAnchored      EventKind = "LedgerAnchored"
)

// TimelineEntry is one immutable event in a claim's audit history. Entries
// are appended only by the engine, in the same transaction as the claim
// mutation they describe.
type TimelineEntry struct {
	ID          uuid.UUID   `json:"id"`
	ClaimID     uuid.UUID   `json:"claim_id"`
	Kind        EventKind   `json:"kind"`
	Description string      `json:"description"`
	Actor       uuid.UUID   `json:"actor"`
	Timestamp   time.Time   `json:"timestamp"`
	NewStatus   ClaimStatus `json:"new_status,omitempty"`
	TxRef       string      `json:"tx_ref,omitempty"`
	DocumentID  *uuid.UUID  `json:"document_id,omitempty"`
}

// Document is evidence metadata attached to a claim.
type Document struct {
	ID         uuid.UUID `json:"id"`
	ClaimID    uuid.UUID `json:"claim_id"`
	Type       string    `json:"type"`
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClaimView is the read model returned to callers: the claim plus its
// ordered timeline.
type ClaimView struct {
	Claim    Claim           `json:"claim"`
	Timeline []TimelineEntry `json:"timeline"`
}

// TransitionResult is what every successful lifecycle operation returns.
type TransitionResult struct {
	Status ClaimStatus `json:"status"`
	TxRef  string      `json:"tx_ref"`
}
