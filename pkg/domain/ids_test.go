package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "impfportal/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
//
// Justification: This is a pure function enforcing a domain invariant
// at trust boundaries.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePersonID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParsePersonID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParsePersonID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParsePersonID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, PersonID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	personID := PersonID(uuid.New())
	slotID := SlotID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ PersonID = slotID   // compile error
	// var _ SlotID = personID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(personID), uuid.UUID(slotID))
}

func TestParseDiseaseID(t *testing.T) {
	t.Run("accepts configured-shape identifiers", func(t *testing.T) {
		id, err := ParseDiseaseID("covid19")
		require.NoError(t, err)
		assert.Equal(t, DiseaseID("covid19"), id)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseDiseaseID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects uppercase and punctuation", func(t *testing.T) {
		for _, input := range []string{"COVID19", "covid-19", "covid 19", "1covid"} {
			_, err := ParseDiseaseID(input)
			require.Error(t, err, "input %q", input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})
}
