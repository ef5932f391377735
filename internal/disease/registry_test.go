package disease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "impfportal/pkg/domain-errors"
)

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()

	rules, err := registry.Resolve("covid19")
	require.NoError(t, err)
	assert.Equal(t, 2, rules.PrimaryDoses)
	assert.Equal(t, 28*24*time.Hour, rules.MinInterval)
	assert.True(t, rules.BoosterSupported)

	_, err = registry.Resolve("pox")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRegistry_Register_Validates(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name  string
		rules Rules
	}{
		{
			name:  "missing disease id",
			rules: Rules{PrimaryDoses: 1, ValidityDuration: time.Hour},
		},
		{
			name:  "zero primary doses",
			rules: Rules{DiseaseID: "x1", ValidityDuration: time.Hour},
		},
		{
			name:  "multi-dose without interval",
			rules: Rules{DiseaseID: "x2", PrimaryDoses: 2, ValidityDuration: time.Hour},
		},
		{
			name: "max interval below min",
			rules: Rules{
				DiseaseID: "x3", PrimaryDoses: 2,
				MinInterval: 48 * time.Hour, MaxInterval: 24 * time.Hour,
				ValidityDuration: time.Hour,
			},
		},
		{
			name: "booster without interval",
			rules: Rules{
				DiseaseID: "x4", PrimaryDoses: 1,
				BoosterSupported: true, ValidityDuration: time.Hour,
			},
		},
		{
			name: "self-payer without lead time",
			rules: Rules{
				DiseaseID: "x5", PrimaryDoses: 1,
				SelfPayerSupported: true, ValidityDuration: time.Hour,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(tt.rules)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestRegistry_Register_Replaces(t *testing.T) {
	registry := NewRegistry()

	custom := Rules{
		DiseaseID:        "covid19",
		Name:             "COVID-19 (updated campaign)",
		PrimaryDoses:     2,
		MinInterval:      21 * 24 * time.Hour,
		BoosterSupported: true,
		BoosterInterval:  120 * 24 * time.Hour,
		ValidityDuration: 365 * 24 * time.Hour,
	}
	require.NoError(t, registry.Register(custom))

	resolved, err := registry.Resolve("covid19")
	require.NoError(t, err)
	assert.Equal(t, 21*24*time.Hour, resolved.MinInterval)
}

func TestRules_EffectiveMinInterval(t *testing.T) {
	rules := Rules{MinInterval: 28 * 24 * time.Hour, AcceleratedMinInterval: 21 * 24 * time.Hour}

	assert.Equal(t, 28*24*time.Hour, rules.EffectiveMinInterval(false))
	assert.Equal(t, 21*24*time.Hour, rules.EffectiveMinInterval(true))

	noAccel := Rules{MinInterval: 14 * 24 * time.Hour}
	assert.Equal(t, 14*24*time.Hour, noAccel.EffectiveMinInterval(true))
}

func TestParseDosePosition(t *testing.T) {
	for _, valid := range []string{"dose1", "dose2", "booster"} {
		pos, err := ParseDosePosition(valid)
		require.NoError(t, err)
		assert.Equal(t, DosePosition(valid), pos)
	}

	_, err := ParseDosePosition("dose3")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
