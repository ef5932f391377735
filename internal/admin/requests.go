package admin

import (
	"net/url"
	"time"

	"impfportal/internal/disease"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

type createSiteRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Managed bool   `json:"managed"`
}

type createSlotsRequest struct {
	Slots []slotSpec `json:"slots"`
}

type slotSpec struct {
	Position string    `json:"position"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Capacity int       `json:"capacity"`
}

func (spec slotSpec) toDomain(siteID domain.SiteID) (*slots.Slot, error) {
	position, err := disease.ParseDosePosition(spec.Position)
	if err != nil {
		return nil, err
	}
	slot := &slots.Slot{
		ID:       domain.NewSlotID(),
		SiteID:   siteID,
		Position: position,
		StartAt:  spec.StartAt,
		EndAt:    spec.EndAt,
		Capacity: spec.Capacity,
	}
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	return slot, nil
}

type nextFreeQuery struct {
	disease      domain.DiseaseID
	position     disease.DosePosition
	notBefore    time.Time
	pairedSlotID *domain.SlotID
	accelerated  bool
}

func parseNextFreeQuery(values url.Values) (nextFreeQuery, error) {
	var query nextFreeQuery

	diseaseID, err := domain.ParseDiseaseID(values.Get("disease"))
	if err != nil {
		return query, err
	}
	query.disease = diseaseID

	query.position, err = disease.ParseDosePosition(values.Get("position"))
	if err != nil {
		return query, err
	}

	query.notBefore = time.Now().UTC()
	if raw := values.Get("not_before"); raw != "" {
		query.notBefore, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, dErrors.Wrap(err, dErrors.CodeInvalidInput, "not_before must be RFC 3339")
		}
	}

	if raw := values.Get("paired_slot_id"); raw != "" {
		slotID, err := domain.ParseSlotID(raw)
		if err != nil {
			return query, err
		}
		query.pairedSlotID = &slotID
	}

	query.accelerated = values.Get("accelerated") == "true"
	return query, nil
}
