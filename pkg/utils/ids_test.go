package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenUniqueID(t *testing.T) {
	id1, err := GenUniqueID("123", 1000, 1)
	require.NoError(t, err)
	id2, err := GenUniqueID("123", 1000, 2)
	require.NoError(t, err)

	assert.Positive(t, id1)
	assert.NotEqual(t, id1, id2)
}

func TestHashMacAddressPidLength(t *testing.T) {
	hash := HashMacAddressPid("02:42:ac:11:00:02")
	assert.Len(t, hash, 3)
}
