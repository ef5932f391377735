// Package disease holds the per-disease vaccination rule configuration. All
// disease-specific behavior in the platform is expressed through Rules fields;
// no other package branches on a disease identifier.
package disease

import (
	"time"

	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

// DosePosition identifies which position in the schedule a slot or appointment
// serves.
type DosePosition string

const (
	PositionDose1   DosePosition = "dose1"
	PositionDose2   DosePosition = "dose2"
	PositionBooster DosePosition = "booster"
)

// ParseDosePosition validates a dose position from transport input.
func ParseDosePosition(value string) (DosePosition, error) {
	switch DosePosition(value) {
	case PositionDose1, PositionDose2, PositionBooster:
		return DosePosition(value), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid dose position: %q", value)
	}
}

// Rules is the strategy configuration for one disease. Eligibility and the
// state machine consume these fields; they never special-case a disease by
// identity.
type Rules struct {
	DiseaseID domain.DiseaseID
	Name      string

	// PrimaryDoses is the number of doses in the primary series (1 or 2 here;
	// diseases with longer courses model the tail as boosters).
	PrimaryDoses int

	// MinInterval and MaxInterval bound the gap between primary-series doses.
	// MaxInterval of zero means unbounded.
	MinInterval time.Duration
	MaxInterval time.Duration

	// AcceleratedMinInterval applies instead of MinInterval when the dossier
	// carries the accelerated-schema flag. Zero means no accelerated schema.
	AcceleratedMinInterval time.Duration

	// BoosterSupported enables the booster track; BoosterInterval is the gap
	// from the last qualifying fact to the next booster eligibility.
	BoosterSupported bool
	BoosterInterval  time.Duration

	// ValidityDuration is how long protection lasts after the last qualifying
	// dose. RecoveryValidityDuration applies when the qualifying fact is a
	// recovery rather than a dose.
	ValidityDuration         time.Duration
	RecoveryValidityDuration time.Duration

	// SingleDoseWithRecoveryCompletes marks diseases where one dose plus a
	// documented recovery completes the primary series.
	SingleDoseWithRecoveryCompletes bool

	// SelfPayerSupported enables early self-paid boosters, reachable
	// SelfPayerLeadTime before the regular eligibility date.
	SelfPayerSupported bool
	SelfPayerLeadTime  time.Duration

	// AllowedProducts lists the vaccine products administrable under these
	// rules. Empty means any product.
	AllowedProducts []string
}

// HasSecondDose reports whether the primary series includes a second dose.
func (r Rules) HasSecondDose() bool {
	return r.PrimaryDoses >= 2
}

// EffectiveMinInterval returns the primary-series minimum interval, honoring
// the accelerated schema when requested and configured.
func (r Rules) EffectiveMinInterval(accelerated bool) time.Duration {
	if accelerated && r.AcceleratedMinInterval > 0 {
		return r.AcceleratedMinInterval
	}
	return r.MinInterval
}

// Validate rejects rule configurations the engine cannot evaluate.
func (r Rules) Validate() error {
	if r.DiseaseID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "disease id is required")
	}
	if r.PrimaryDoses < 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "disease %s: primary series must have at least one dose", r.DiseaseID)
	}
	if r.PrimaryDoses > 1 && r.MinInterval <= 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "disease %s: multi-dose series requires a minimum interval", r.DiseaseID)
	}
	if r.MaxInterval > 0 && r.MaxInterval < r.MinInterval {
		return dErrors.Newf(dErrors.CodeInvalidInput, "disease %s: maximum interval below minimum interval", r.DiseaseID)
	}
	if r.BoosterSupported && r.BoosterInterval <= 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "disease %s: booster support requires a booster interval", r.DiseaseID)
	}
	if r.ValidityDuration <= 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "disease %s: validity duration is required", r.DiseaseID)
	}
	if r.SelfPayerSupported && r.SelfPayerLeadTime <= 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "disease %s: self-payer support requires a lead time", r.DiseaseID)
	}
	return nil
}
