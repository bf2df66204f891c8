package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout(t *testing.T) {
	l, err := NewLayout(100, 64)
	require.NoError(t, err)
	require.Equal(t, Layout{Size: 100, Align: 64}, l)
	require.Equal(t, "{size: 100, align: 64}", l.String())

	_, err = NewLayout(100, 0)
	require.ErrorIs(t, err, ErrBadAlign)
	_, err = NewLayout(100, 48)
	require.ErrorIs(t, err, ErrBadAlign)
	_, err = NewLayout(^uintptr(0)-3, 8)
	require.ErrorIs(t, err, ErrLayoutOverflow)
}

func TestMustLayoutPanics(t *testing.T) {
	require.Panics(t, func() { MustLayout(8, 3) })
}

func TestLayoutOf(t *testing.T) {
	type header struct {
		tag  uint8
		size uint64
	}
	assert.Equal(t, Layout{Size: 8, Align: 8}, LayoutOf[uint64]())
	assert.Equal(t, Layout{Size: 1, Align: 1}, LayoutOf[byte]())
	assert.Equal(t, Layout{Size: 16, Align: 8}, LayoutOf[header]())
	assert.Equal(t, Layout{Size: 0, Align: 1}, LayoutOf[struct{}]())
}

func TestArrayOf(t *testing.T) {
	l, err := ArrayOf(Layout{Size: 12, Align: 8}, 4)
	require.NoError(t, err)
	require.Equal(t, Layout{Size: 64, Align: 8}, l)

	l, err = ArrayOf(Layout{Size: 12, Align: 8}, 0)
	require.NoError(t, err)
	require.Zero(t, l.Size)

	_, err = ArrayOf(Layout{Size: 1 << 20, Align: 8}, ^uintptr(0)>>4)
	require.ErrorIs(t, err, ErrLayoutOverflow)
}

func TestDangling(t *testing.T) {
	for _, align := range []uintptr{1, 2, 64, 1 << 20} {
		l := MustLayout(0, align)
		require.NotZero(t, l.Dangling())
		require.Zero(t, l.Dangling()%align)
	}
}
