package api

import (
	"errors"

	"github.com/careclaim/claimledger/internal/domain"
)

type incidentInput struct {
	Type          string `json:"type"`
	Date          string `json:"date"`
	Details       string `json:"details"`
	Location      string `json:"location"`
	AmountClaimed int64  `json:"amount_claimed"`
}

func (in incidentInput) toDomain() (domain.Incident, error) {
	if in.Date == "" {
		return domain.Incident{}, errors.New("incident date required")
	}
	date, err := parseIncidentDate(in.Date)
	if err != nil {
		return domain.Incident{}, err
	}
	return domain.Incident{
		Type:          in.Type,
		Date:          date,
		Details:       in.Details,
		Location:      in.Location,
		AmountClaimed: in.AmountClaimed,
	}, nil
}

type createClaimRequest struct {
	PolicyID string        `json:"policy_id"`
	Incident incidentInput `json:"incident"`
}

type updateDraftRequest struct {
	Type          *string `json:"type"`
	Date          *string `json:"date"`
	Details       *string `json:"details"`
	Location      *string `json:"location"`
	AmountClaimed *int64  `json:"amount_claimed"`
}

func (in updateDraftRequest) toDomain() (domain.IncidentPatch, error) {
	patch := domain.IncidentPatch{
		Type:          in.Type,
		Details:       in.Details,
		Location:      in.Location,
		AmountClaimed: in.AmountClaimed,
	}
	if in.Date != nil {
		date, err := parseIncidentDate(*in.Date)
		if err != nil {
			return domain.IncidentPatch{}, err
		}
		patch.Date = &date
	}
	return patch, nil
}

type fileInput struct {
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

type acknowledgeRequest struct {
	ReferenceNumber string     `json:"reference_number"`
	File            *fileInput `json:"file"`
}

type advanceRequest struct {
	NewStatus string `json:"new_status"`
}

type documentRequest struct {
	Type     string `json:"type"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}
