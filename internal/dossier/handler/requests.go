package handler

import (
	"time"

	"impfportal/internal/disease"
	"impfportal/internal/dossier"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

type createDossierRequest struct {
	Disease string `json:"disease"`
}

type verifyCodeRequest struct {
	PersonID string `json:"person_id"`
	Disease  string `json:"disease"`
	Code     string `json:"code"`
}

type chooseSiteRequest struct {
	SiteID    string `json:"site_id,omitempty"`
	Unmanaged bool   `json:"unmanaged,omitempty"`
}

type bookPrimaryRequest struct {
	Slot1ID     string `json:"slot1_id"`
	Slot2ID     string `json:"slot2_id,omitempty"`
	Accelerated bool   `json:"accelerated,omitempty"`
}

func (req bookPrimaryRequest) toDomain() (dossier.BookPrimarySeriesRequest, error) {
	slot1, err := domain.ParseSlotID(req.Slot1ID)
	if err != nil {
		return dossier.BookPrimarySeriesRequest{}, err
	}
	out := dossier.BookPrimarySeriesRequest{Slot1: slot1, Accelerated: req.Accelerated}
	if req.Slot2ID != "" {
		slot2, err := domain.ParseSlotID(req.Slot2ID)
		if err != nil {
			return dossier.BookPrimarySeriesRequest{}, err
		}
		out.Slot2 = &slot2
	}
	return out, nil
}

type bookBoosterRequest struct {
	SlotID    string `json:"slot_id"`
	SelfPayer bool   `json:"self_payer,omitempty"`
}

type rebookRequest struct {
	Position string `json:"position"`
	SlotID   string `json:"slot_id"`
}

func (req rebookRequest) toDomain() (disease.DosePosition, domain.SlotID, error) {
	position, err := disease.ParseDosePosition(req.Position)
	if err != nil {
		return "", domain.SlotID{}, err
	}
	slotID, err := domain.ParseSlotID(req.SlotID)
	if err != nil {
		return "", domain.SlotID{}, err
	}
	return position, slotID, nil
}

type controlDoseRequest struct {
	Note string `json:"note,omitempty"`
}

type doseFactsRequest struct {
	Product        string    `json:"product"`
	AdministeredBy string    `json:"administered_by"`
	Responsible    string    `json:"responsible,omitempty"`
	AdministeredAt time.Time `json:"administered_at"`
	SelfPayer      bool      `json:"self_payer,omitempty"`
	Pregnancy      bool      `json:"pregnancy,omitempty"`
}

func (req doseFactsRequest) toDomain() dossier.DoseFacts {
	return dossier.DoseFacts{
		Product:        req.Product,
		AdministeredBy: req.AdministeredBy,
		Responsible:    req.Responsible,
		AdministeredAt: req.AdministeredAt,
		SelfPayer:      req.SelfPayer,
		Pregnancy:      req.Pregnancy,
	}
}

type waiveRequest struct {
	Reason   string                `json:"reason"`
	Recovery *recoveryClaimRequest `json:"recovery,omitempty"`
}

type recoveryClaimRequest struct {
	PositiveTestAt time.Time `json:"positive_test_at"`
	AcceptedBy     string    `json:"accepted_by,omitempty"`
}

func (req waiveRequest) toDomain() *dossier.RecoveryClaim {
	if req.Recovery == nil {
		return nil
	}
	return &dossier.RecoveryClaim{
		PositiveTestAt: req.Recovery.PositiveTestAt,
		AcceptedBy:     req.Recovery.AcceptedBy,
	}
}

type externalProofRequest struct {
	Doses          int        `json:"doses,omitempty"`
	LastDoseAt     *time.Time `json:"last_dose_at,omitempty"`
	Recovered      bool       `json:"recovered,omitempty"`
	PositiveTestAt *time.Time `json:"positive_test_at,omitempty"`
	AcceptedBy     string     `json:"accepted_by,omitempty"`
}

func (req externalProofRequest) toDomain() dossier.ExternalProof {
	return dossier.ExternalProof{
		Doses:          req.Doses,
		LastDoseAt:     req.LastDoseAt,
		Recovered:      req.Recovered,
		PositiveTestAt: req.PositiveTestAt,
		AcceptedBy:     req.AcceptedBy,
	}
}

func parseDisease(raw string) (domain.DiseaseID, error) {
	diseaseID, err := domain.ParseDiseaseID(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid disease")
	}
	return diseaseID, nil
}
