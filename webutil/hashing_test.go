package webutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateHashIsStable(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	assert.Equal(GenerateHash("hello"), GenerateHash("hello"))
	assert.NotEqual(GenerateHash("hello"), GenerateHash("hello "))
	assert.Len(GenerateHash(""), 64)
}

func TestDedupeKeySeparatesFields(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	// Concatenation without a separator would collide these two.
	assert.NotEqual(DedupeKey("ab", "c"), DedupeKey("a", "bc"))
	assert.Equal(DedupeKey("src", "subject", "body"), DedupeKey("src", "subject", "body"))
}
