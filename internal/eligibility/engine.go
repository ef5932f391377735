// Package eligibility computes the rolling protection window ("Impfschutz")
// from a person's vaccination history. ComputeProtection is a pure function:
// it holds no state, performs no I/O, and its output depends only on the fact
// set, the disease rules, and the reference time.
package eligibility

import (
	"time"

	"impfportal/internal/disease"
	pstrings "impfportal/pkg/platform/strings"
)

// ProtectionRecord is the derived eligibility state. It is always replaced
// wholesale, never patched field by field.
type ProtectionRecord struct {
	// ImmuneUntil is when protection from the last qualifying fact lapses.
	// Nil when no qualifying fact exists.
	ImmuneUntil *time.Time `json:"immune_until,omitempty"`

	// NextDoseEligibleFrom is the earliest date the next dose may be given.
	// Nil when the disease offers no further dose (series complete, boosters
	// unsupported).
	NextDoseEligibleFrom *time.Time `json:"next_dose_eligible_from,omitempty"`

	// SelfPayerEligibleFrom is the earlier date a self-paying person may book
	// a booster. Nil unless the disease supports self-payers and a booster
	// window exists.
	SelfPayerEligibleFrom *time.Time `json:"self_payer_eligible_from,omitempty"`

	AllowedProducts []string `json:"allowed_products,omitempty"`

	// CompletedPrimarySeries reports whether the primary series is done,
	// counting external doses and recovery-completion rules.
	CompletedPrimarySeries bool `json:"completed_primary_series"`

	// DoseCount is the total asserted doses, internal plus external.
	DoseCount int `json:"dose_count"`

	ComputedAt time.Time `json:"computed_at"`
}

// NextDoseAllowedAt reports whether a dose at the given time is inside the
// eligibility window.
func (p ProtectionRecord) NextDoseAllowedAt(at time.Time) bool {
	if p.NextDoseEligibleFrom == nil {
		return false
	}
	return !at.Before(*p.NextDoseEligibleFrom)
}

// ComputeProtection derives a ProtectionRecord from the fact set. Facts are
// ranked by date internally, so any permutation of the input yields an
// identical record. Callers with an accelerated-schema dossier pass rules
// whose MinInterval already reflects the accelerated interval.
func ComputeProtection(facts []Fact, rules disease.Rules, now time.Time) ProtectionRecord {
	record := ProtectionRecord{
		AllowedProducts: pstrings.DedupeAndTrim(rules.AllowedProducts),
		ComputedAt:      now,
	}

	sorted := sortFacts(facts)

	var (
		lastDose    *Fact
		lastAny     *Fact
		hasRecovery bool
	)
	for i := range sorted {
		f := sorted[i]
		switch f.Kind {
		case FactInternalDose, FactExternalDose:
			record.DoseCount += f.Count
			lastDose = &sorted[i]
		case FactRecovery:
			hasRecovery = true
		}
		lastAny = &sorted[i]
	}

	// First dose is always immediately eligible.
	if lastAny == nil {
		from := now
		record.NextDoseEligibleFrom = &from
		return record
	}

	record.CompletedPrimarySeries = record.DoseCount >= rules.PrimaryDoses ||
		(rules.SingleDoseWithRecoveryCompletes && record.DoseCount >= 1 && hasRecovery)

	// The highest-ranking qualifying fact is the most recent one; recovery
	// alone never establishes immunity without at least one dose, except for
	// display of the recovery window itself.
	if record.DoseCount > 0 || hasRecovery {
		qualifying := lastAny
		validity := rules.ValidityDuration
		if qualifying.Kind == FactRecovery && rules.RecoveryValidityDuration > 0 {
			validity = rules.RecoveryValidityDuration
		}
		until := qualifying.Date.Add(validity)
		record.ImmuneUntil = &until
	}

	switch {
	case !record.CompletedPrimarySeries:
		// Mid-series: the next dose follows the most recent dose by the
		// primary-series minimum interval, never by the booster interval.
		if lastDose == nil {
			// Recovery only, no dose yet: the first dose stays immediately
			// eligible.
			from := now
			record.NextDoseEligibleFrom = &from
		} else {
			from := lastDose.Date.Add(rules.MinInterval)
			record.NextDoseEligibleFrom = &from
		}
	case rules.BoosterSupported:
		from := lastAny.Date.Add(rules.BoosterInterval)
		record.NextDoseEligibleFrom = &from
		if rules.SelfPayerSupported {
			selfPayer := from.Add(-rules.SelfPayerLeadTime)
			record.SelfPayerEligibleFrom = &selfPayer
		}
	default:
		// Series complete and no boosters for this disease: no further window.
	}

	return record
}
