package seq2seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsequentMask(t *testing.T) {
	for _, size := range []int{1, 2, 5} {
		m := SubsequentMask(size)
		for i := 0; i < size; i++ {
			for j := 0; j < size; j++ {
				assert.Equal(t, j <= i, m.Allowed(0, i, j), "size %d (%d,%d)", size, i, j)
			}
		}
	}
}

func TestPaddingMask(t *testing.T) {
	m := PaddingMask([][]int{{4, 5, 0}, {6, 0, 0}}, 0)
	assert.Equal(t, 2, m.Batch)
	assert.Equal(t, 1, m.Rows)
	assert.Equal(t, 3, m.Cols)
	// Rows broadcast: every query row sees the same padding.
	for _, i := range []int{0, 7} {
		assert.True(t, m.Allowed(0, i, 1))
		assert.False(t, m.Allowed(0, i, 2))
		assert.True(t, m.Allowed(1, i, 0))
		assert.False(t, m.Allowed(1, i, 1))
	}
}

func TestAndBroadcasts(t *testing.T) {
	m, err := And(PaddingMask([][]int{{1, 2, 0}}, 0), SubsequentMask(3))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Batch)
	assert.Equal(t, 3, m.Rows)
	assert.False(t, m.Allowed(0, 0, 1))
	assert.True(t, m.Allowed(0, 2, 1))
	assert.False(t, m.Allowed(0, 2, 2))

	_, err = And(SubsequentMask(3), SubsequentMask(4))
	assert.Error(t, err)
	_, err = And(NewMask(2, 1, 3), NewMask(3, 1, 3))
	assert.Error(t, err)
}

func TestNilMaskAllowsAll(t *testing.T) {
	var m *Mask
	assert.True(t, m.Allowed(3, 2, 1))
}
