package mmap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAnonReadWrite(t *testing.T) {
	data, release, err := Anon(1 << 16)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, release())
	}()

	require.Len(t, data, 1<<16)
	for i := range data {
		if data[i] != 0 {
			t.Fatalf("byte %d not zero-filled: 0x%x", i, data[i])
		}
	}

	data[0] = 0xde
	data[len(data)-1] = 0xad
	require.Equal(t, byte(0xde), data[0])
	require.Equal(t, byte(0xad), data[len(data)-1])
}

func TestAnonPageAligned(t *testing.T) {
	data, release, err := Anon(100)
	require.NoError(t, err)
	defer release()

	base := uintptr(unsafe.Pointer(&data[0]))
	require.Zero(t, base%8, "mapping base must be at least word aligned")
}

func TestAnonRejectsEmpty(t *testing.T) {
	_, _, err := Anon(0)
	require.Error(t, err)
	_, _, err = Anon(-1)
	require.Error(t, err)
}

func TestReleaseTwice(t *testing.T) {
	_, release, err := Anon(4096)
	require.NoError(t, err)
	require.NoError(t, release())
	require.NoError(t, release())
}
