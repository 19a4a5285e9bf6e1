package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyRingRotation(t *testing.T) {
	t.Parallel()

	ring := NewKeyRing([]string{"a", "b", "c"})

	key, label := ring.Current()
	assert.Equal(t, "a", key)
	assert.Equal(t, "key-1", label)

	assert.True(t, ring.Rotate())
	key, label = ring.Current()
	assert.Equal(t, "b", key)
	assert.Equal(t, "key-2", label)

	assert.True(t, ring.Rotate())
	assert.True(t, ring.Rotate())

	// Rotation is cyclic.
	key, _ = ring.Current()
	assert.Equal(t, "a", key)
}

func TestKeyRingSingleAndEmpty(t *testing.T) {
	t.Parallel()

	single := NewKeyRing([]string{"only"})
	assert.False(t, single.Rotate())

	empty := NewKeyRing(nil)
	key, label := empty.Current()
	assert.Empty(t, key)
	assert.Equal(t, "none", label)
	assert.False(t, empty.Rotate())
	assert.Equal(t, 0, empty.Size())
}
