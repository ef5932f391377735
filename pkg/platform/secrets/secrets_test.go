package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "impfportal/pkg/domain-errors"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 9)
	assert.Equal(t, byte('-'), code[4])

	other, err := GenerateCode()
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestHashAndVerify(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)

	hash, err := Hash(code)
	require.NoError(t, err)
	assert.NotEqual(t, code, hash)

	require.NoError(t, Verify(code, hash))
}

func TestVerify_CaseAndSeparatorInsensitive(t *testing.T) {
	hash, err := Hash("ABCD-2345")
	require.NoError(t, err)

	assert.NoError(t, Verify("abcd2345", hash))
	assert.NoError(t, Verify(" abcd-2345 ", hash))
}

func TestVerify_WrongCode(t *testing.T) {
	hash, err := Hash("ABCD-2345")
	require.NoError(t, err)

	err = Verify("WXYZ-9876", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestHash_EmptyCode(t *testing.T) {
	_, err := Hash("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
