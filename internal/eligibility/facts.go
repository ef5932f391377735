package eligibility

import (
	"sort"
	"time"
)

// FactKind classifies a vaccination-history fact.
type FactKind string

const (
	// FactInternalDose is a dose administered and documented in this system.
	FactInternalDose FactKind = "internal_dose"
	// FactExternalDose is an externally asserted dose count, carried on the
	// date of the last asserted dose.
	FactExternalDose FactKind = "external_dose"
	// FactRecovery is a documented recovery, carried on the positive-test date.
	FactRecovery FactKind = "recovery"
)

// Fact is one unit of vaccination history. The engine ranks facts by date;
// kind and ID only break ties so permuted inputs produce identical output.
type Fact struct {
	Kind FactKind
	Date time.Time
	// Count is the number of doses this fact asserts. Internal doses carry 1;
	// an external proof may assert several doses at once. Recovery carries 0.
	Count int
	// ID disambiguates facts sharing a date and kind. Optional.
	ID string
}

// DoseFact builds a fact for one internally administered dose.
func DoseFact(id string, administeredAt time.Time) Fact {
	return Fact{Kind: FactInternalDose, Date: administeredAt, Count: 1, ID: id}
}

// ExternalDosesFact builds a fact for externally asserted doses.
func ExternalDosesFact(count int, lastDoseAt time.Time) Fact {
	return Fact{Kind: FactExternalDose, Date: lastDoseAt, Count: count, ID: "external"}
}

// RecoveryFact builds a fact for a documented recovery.
func RecoveryFact(positiveTestAt time.Time) Fact {
	return Fact{Kind: FactRecovery, Date: positiveTestAt, ID: "recovery"}
}

// sortFacts orders facts deterministically: by date, then kind, then ID.
// Mutating a copy keeps ComputeProtection free of side effects on its input.
func sortFacts(facts []Fact) []Fact {
	sorted := make([]Fact, len(facts))
	copy(sorted, facts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
