package api

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/careclaim/claimledger/internal/domain"
)

var _ ClaimService = (*mockClaimService)(nil)

// mockClaimService is a function-field mock of the engine surface.
type mockClaimService struct {
	CreateDraftFunc    func(ctx context.Context, actor, policyID uuid.UUID, inc domain.Incident) (*domain.Claim, error)
	UpdateDraftFunc    func(ctx context.Context, claimID, actor uuid.UUID, patch domain.IncidentPatch) (*domain.Claim, error)
	SubmitFunc         func(ctx context.Context, claimID, actor uuid.UUID) (*domain.TransitionResult, error)
	AcknowledgeFunc    func(ctx context.Context, claimID, actor uuid.UUID, referenceNumber string, file *domain.FileMeta) (*domain.TransitionResult, error)
	AdvanceFunc        func(ctx context.Context, claimID, actor uuid.UUID, target domain.ClaimStatus) (*domain.TransitionResult, error)
	AttachDocumentFunc func(ctx context.Context, claimID, actor uuid.UUID, docType string, file domain.FileMeta) (*domain.Document, error)
	GetFunc            func(ctx context.Context, claimID, actor uuid.UUID) (*domain.ClaimView, error)
	ListFunc           func(ctx context.Context, actor uuid.UUID) ([]domain.Claim, error)
}

func (m *mockClaimService) CreateDraft(ctx context.Context, actor, policyID uuid.UUID, inc domain.Incident) (*domain.Claim, error) {
	if m.CreateDraftFunc != nil {
		return m.CreateDraftFunc(ctx, actor, policyID, inc)
	}
	return nil, errors.New("CreateDraftFunc not implemented in mock")
}

func (m *mockClaimService) UpdateDraft(ctx context.Context, claimID, actor uuid.UUID, patch domain.IncidentPatch) (*domain.Claim, error) {
	if m.UpdateDraftFunc != nil {
		return m.UpdateDraftFunc(ctx, claimID, actor, patch)
	}
	return nil, errors.New("UpdateDraftFunc not implemented in mock")
}

func (m *mockClaimService) Submit(ctx context.Context, claimID, actor uuid.UUID) (*domain.TransitionResult, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, claimID, actor)
	}
	return nil, errors.New("SubmitFunc not implemented in mock")
}

func (m *mockClaimService) Acknowledge(ctx context.Context, claimID, actor uuid.UUID, referenceNumber string, file *domain.FileMeta) (*domain.TransitionResult, error) {
	if m.AcknowledgeFunc != nil {
		return m.AcknowledgeFunc(ctx, claimID, actor, referenceNumber, file)
	}
	return nil, errors.New("AcknowledgeFunc not implemented in mock")
}

func (m *mockClaimService) Advance(ctx context.Context, claimID, actor uuid.UUID, target domain.ClaimStatus) (*domain.TransitionResult, error) {
	if m.AdvanceFunc != nil {
		return m.AdvanceFunc(ctx, claimID, actor, target)
	}
	return nil, errors.New("AdvanceFunc not implemented in mock")
}

func (m *mockClaimService) AttachDocument(ctx context.Context, claimID, actor uuid.UUID, docType string, file domain.FileMeta) (*domain.Document, error) {
	if m.AttachDocumentFunc != nil {
		return m.AttachDocumentFunc(ctx, claimID, actor, docType, file)
	}
	return nil, errors.New("AttachDocumentFunc not implemented in mock")
}

func (m *mockClaimService) Get(ctx context.Context, claimID, actor uuid.UUID) (*domain.ClaimView, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, claimID, actor)
	}
	return nil, errors.New("GetFunc not implemented in mock")
}

func (m *mockClaimService) List(ctx context.Context, actor uuid.UUID) ([]domain.Claim, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, actor)
	}
	return nil, errors.New("ListFunc not implemented in mock")
}
