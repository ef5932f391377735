package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impfportal/internal/disease"
)

var (
	day0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now  = day0.Add(12 * time.Hour)
)

const day = 24 * time.Hour

func covidRules() disease.Rules {
	return disease.Rules{
		DiseaseID:                       "covid19",
		PrimaryDoses:                    2,
		MinInterval:                     28 * day,
		MaxInterval:                     42 * day,
		BoosterSupported:                true,
		BoosterInterval:                 180 * day,
		ValidityDuration:                270 * day,
		RecoveryValidityDuration:        180 * day,
		SingleDoseWithRecoveryCompletes: true,
		SelfPayerSupported:              true,
		SelfPayerLeadTime:               60 * day,
	}
}

func TestComputeProtection_ZeroFacts(t *testing.T) {
	record := ComputeProtection(nil, covidRules(), now)

	assert.Nil(t, record.ImmuneUntil)
	assert.Nil(t, record.SelfPayerEligibleFrom)
	require.NotNil(t, record.NextDoseEligibleFrom)
	assert.Equal(t, now, *record.NextDoseEligibleFrom)
	assert.False(t, record.CompletedPrimarySeries)
	assert.Zero(t, record.DoseCount)
}

func TestComputeProtection_MidPrimarySeries(t *testing.T) {
	// Dose 1 on day 0 with a 28-day minimum interval: dose 2 is eligible on
	// day 28 exactly, not a day earlier.
	facts := []Fact{DoseFact("d1", day0)}

	record := ComputeProtection(facts, covidRules(), now)

	require.NotNil(t, record.NextDoseEligibleFrom)
	assert.Equal(t, day0.Add(28*day), *record.NextDoseEligibleFrom)
	assert.False(t, record.CompletedPrimarySeries)
	assert.Equal(t, 1, record.DoseCount)

	assert.False(t, record.NextDoseAllowedAt(day0.Add(27*day)))
	assert.True(t, record.NextDoseAllowedAt(day0.Add(28*day)))
}

func TestComputeProtection_CompletedSeries_BoosterWindow(t *testing.T) {
	dose2 := day0.Add(30 * day)
	facts := []Fact{DoseFact("d1", day0), DoseFact("d2", dose2)}

	record := ComputeProtection(facts, covidRules(), now)

	assert.True(t, record.CompletedPrimarySeries)
	assert.Equal(t, 2, record.DoseCount)
	require.NotNil(t, record.ImmuneUntil)
	assert.Equal(t, dose2.Add(270*day), *record.ImmuneUntil)
	require.NotNil(t, record.NextDoseEligibleFrom)
	assert.Equal(t, dose2.Add(180*day), *record.NextDoseEligibleFrom)
	require.NotNil(t, record.SelfPayerEligibleFrom)
	assert.Equal(t, dose2.Add(120*day), *record.SelfPayerEligibleFrom)
}

func TestComputeProtection_RecoveryCompletesSeries(t *testing.T) {
	// One dose plus a recovery ten days later completes the series for
	// diseases that allow it; immunity follows the recovery-adjusted window.
	recovery := day0.Add(10 * day)
	facts := []Fact{DoseFact("d1", day0), RecoveryFact(recovery)}

	record := ComputeProtection(facts, covidRules(), now)

	assert.True(t, record.CompletedPrimarySeries)
	require.NotNil(t, record.ImmuneUntil)
	assert.Equal(t, recovery.Add(180*day), *record.ImmuneUntil)
	require.NotNil(t, record.NextDoseEligibleFrom)
	assert.Equal(t, recovery.Add(180*day), *record.NextDoseEligibleFrom)
}

func TestComputeProtection_ExternalDosesShiftToBoosterInterval(t *testing.T) {
	// External proof asserting two prior doses arrives after one internal
	// dose: the combined count completes the series, so the next window is
	// the booster interval, not the primary-series interval.
	externalLast := day0.Add(-60 * day)
	facts := []Fact{
		DoseFact("d1", day0),
		ExternalDosesFact(2, externalLast),
	}

	record := ComputeProtection(facts, covidRules(), now)

	assert.Equal(t, 3, record.DoseCount)
	assert.True(t, record.CompletedPrimarySeries)
	require.NotNil(t, record.NextDoseEligibleFrom)
	assert.Equal(t, day0.Add(180*day), *record.NextDoseEligibleFrom)
}

func TestComputeProtection_RecoveryOnly(t *testing.T) {
	facts := []Fact{RecoveryFact(day0)}

	record := ComputeProtection(facts, covidRules(), now)

	assert.False(t, record.CompletedPrimarySeries)
	assert.Zero(t, record.DoseCount)
	require.NotNil(t, record.NextDoseEligibleFrom)
	assert.Equal(t, now, *record.NextDoseEligibleFrom)
	require.NotNil(t, record.ImmuneUntil)
	assert.Equal(t, day0.Add(180*day), *record.ImmuneUntil)
}

func TestComputeProtection_NoBoosterSupport(t *testing.T) {
	rules := disease.Rules{
		DiseaseID:        "measles",
		PrimaryDoses:     1,
		ValidityDuration: 10 * 365 * day,
	}
	facts := []Fact{DoseFact("d1", day0)}

	record := ComputeProtection(facts, rules, now)

	assert.True(t, record.CompletedPrimarySeries)
	assert.Nil(t, record.NextDoseEligibleFrom)
	assert.Nil(t, record.SelfPayerEligibleFrom)
}

func TestComputeProtection_OrderIndependent(t *testing.T) {
	facts := []Fact{
		DoseFact("d1", day0),
		DoseFact("d2", day0.Add(30*day)),
		ExternalDosesFact(1, day0.Add(-90*day)),
		RecoveryFact(day0.Add(5 * day)),
	}

	baseline := ComputeProtection(facts, covidRules(), now)

	permutations := [][]int{
		{3, 2, 1, 0},
		{1, 3, 0, 2},
		{2, 0, 3, 1},
	}
	for _, perm := range permutations {
		permuted := make([]Fact, len(facts))
		for i, j := range perm {
			permuted[i] = facts[j]
		}
		record := ComputeProtection(permuted, covidRules(), now)
		assert.Equal(t, baseline, record)
	}
}

func TestComputeProtection_SameDateTiebreakIsDeterministic(t *testing.T) {
	a := []Fact{DoseFact("a", day0), DoseFact("b", day0)}
	b := []Fact{DoseFact("b", day0), DoseFact("a", day0)}

	assert.Equal(t,
		ComputeProtection(a, covidRules(), now),
		ComputeProtection(b, covidRules(), now),
	)
}

func TestComputeProtection_DoesNotMutateInput(t *testing.T) {
	facts := []Fact{
		DoseFact("d2", day0.Add(30*day)),
		DoseFact("d1", day0),
	}
	ComputeProtection(facts, covidRules(), now)
	assert.Equal(t, "d2", facts[0].ID)
}
