package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceRowsIsView(t *testing.T) {
	full := FromRows([][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
	view := full.SliceRows(1, 3)

	require.Equal(t, 2, view.Rows())
	assert.Equal(t, []float64{1, 1}, view.Row(0))

	view.Set(0, 0, 42)
	assert.Equal(t, 42.0, full.At(1, 0))
}

func TestSliceRowsOutOfRange(t *testing.T) {
	full := Full(3, 1, 0)
	assert.Panics(t, func() { full.SliceRows(2, 4) })
	assert.Panics(t, func() { full.SliceRows(2, 2) })
}

func TestVStack(t *testing.T) {
	t.Run("keeps argument order", func(t *testing.T) {
		a := FromRows([][]float64{{1}, {2}})
		b := FromRows([][]float64{{3}})
		c := FromRows([][]float64{{4}, {5}, {6}})

		out, err := VStack(a, b, c)
		require.NoError(t, err)
		rows, cols := out.Dims()
		assert.Equal(t, 6, rows)
		assert.Equal(t, 1, cols)
		for i := 0; i < rows; i++ {
			assert.Equal(t, float64(i+1), out.At(i, 0))
		}
	})

	t.Run("rejects column mismatch", func(t *testing.T) {
		_, err := VStack(Full(2, 1, 0), Full(2, 2, 0))
		assert.ErrorIs(t, err, ErrShape)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := VStack()
		assert.Error(t, err)
	})
}

func TestCopyFromInPlace(t *testing.T) {
	dst := Full(2, 2, 0)
	backing := dst.Dense()
	require.NoError(t, dst.CopyFrom(FromRows([][]float64{{1, 2}, {3, 4}})))
	assert.Same(t, backing, dst.Dense())
	assert.Equal(t, 4.0, dst.At(1, 1))

	assert.ErrorIs(t, dst.CopyFrom(Full(3, 2, 0)), ErrShape)
}

func TestAny(t *testing.T) {
	dones := Full(4, 1, 0)
	assert.False(t, dones.Any())
	dones.Set(3, 0, 1)
	assert.True(t, dones.Any())
}

func TestCloneIsDetached(t *testing.T) {
	src := Full(2, 1, 1)
	clone := src.Clone()
	src.Set(0, 0, 7)
	assert.Equal(t, 1.0, clone.At(0, 0))
	assert.False(t, clone.IsShared())
}
