package mempool

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r-efi/r-efi-alloc/efi"
)

func newPool(t *testing.T, capacity int, opts *Options) *Pool {
	t.Helper()
	p, err := New(capacity, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(0, nil)
	require.Error(t, err)
}

func TestAllocatePoolAlignment(t *testing.T) {
	p := newPool(t, 1<<16, nil)
	for _, size := range []uintptr{1, 3, 7, 8, 13, 100} {
		addr, status := p.AllocatePool(efi.LoaderData, size)
		require.Equal(t, efi.Success, status)
		require.Zero(t, addr%efi.PoolAlignment, "size %d", size)
		require.True(t, p.Contains(addr))
	}
}

func TestAllocatePoolSkew(t *testing.T) {
	p := newPool(t, 1<<16, &Options{Skew: true})
	for i := 0; i < 32; i++ {
		addr, status := p.AllocatePool(efi.BootServicesData, uintptr(i*5+1))
		require.Equal(t, efi.Success, status)
		require.Equal(t, efi.PoolAlignment, addr%(2*efi.PoolAlignment), "block %d", i)
	}
}

func TestAllocatePoolBlocksAreWritable(t *testing.T) {
	p := newPool(t, 4096, nil)
	addr, status := p.AllocatePool(efi.LoaderData, 64)
	require.Equal(t, efi.Success, status)

	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), 64)
	for i := range b {
		b[i] = byte(i)
	}
	require.Equal(t, byte(63), b[63])

	size, mt, ok := p.BlockOf(addr)
	require.True(t, ok)
	require.Equal(t, uintptr(64), size)
	require.Equal(t, efi.LoaderData, mt)
}

func TestAllocatePoolOutOfResources(t *testing.T) {
	p := newPool(t, 4096, nil)
	_, status := p.AllocatePool(efi.LoaderData, 4000)
	require.Equal(t, efi.Success, status)

	addr, status := p.AllocatePool(efi.LoaderData, 200)
	require.Equal(t, efi.OutOfResources, status)
	require.Zero(t, addr)

	_, status = p.AllocatePool(efi.LoaderData, ^uintptr(0))
	require.Equal(t, efi.OutOfResources, status)
	require.Equal(t, uint64(2), p.Stats().Failures)
}

func TestAllocatePoolInvalidType(t *testing.T) {
	p := newPool(t, 4096, nil)
	for _, mt := range []efi.MemoryType{efi.ConventionalMemory, efi.PersistentMemory, efi.MaxMemoryType} {
		_, status := p.AllocatePool(mt, 16)
		assert.Equal(t, efi.InvalidParameter, status, mt.String())
	}
}

func TestAllocatePoolZeroSize(t *testing.T) {
	p := newPool(t, 4096, nil)
	a, status := p.AllocatePool(efi.LoaderData, 0)
	require.Equal(t, efi.Success, status)
	b, status := p.AllocatePool(efi.LoaderData, 0)
	require.Equal(t, efi.Success, status)
	require.NotEqual(t, a, b, "zero-sized blocks still get distinct addresses")
}

func TestFreePool(t *testing.T) {
	p := newPool(t, 4096, nil)
	a, _ := p.AllocatePool(efi.LoaderData, 32)
	b, _ := p.AllocatePool(efi.LoaderData, 48)

	require.Equal(t, efi.Success, p.FreePool(a))
	require.Equal(t, efi.InvalidParameter, p.FreePool(a), "double free")
	require.Equal(t, efi.InvalidParameter, p.FreePool(b+8), "interior address")
	require.Equal(t, efi.InvalidParameter, p.FreePool(0))

	stats := p.Stats()
	require.Equal(t, 1, stats.LiveBlocks)
	require.Equal(t, uint64(48), stats.LiveBytes)
	require.Equal(t, uint64(3), stats.BadFrees)

	require.Equal(t, efi.Success, p.FreePool(b))
}

func TestFreedSpaceCoalesces(t *testing.T) {
	p := newPool(t, 4096, nil)
	first, _ := p.AllocatePool(efi.LoaderData, 1000)
	second, _ := p.AllocatePool(efi.LoaderData, 1000)
	require.Greater(t, second, first)

	require.Equal(t, efi.Success, p.FreePool(second))
	require.Equal(t, efi.Success, p.FreePool(first))

	require.Equal(t, 1, p.Stats().FreeSpans)

	again, _ := p.AllocatePool(efi.LoaderData, 3000)
	require.Equal(t, first, again)
	stats := p.Stats()
	require.Equal(t, uint64(3000), stats.HighWater)
	require.Equal(t, uint64(3000), stats.PeakLiveBytes)
}

func TestFreedSpaceReusedBestFit(t *testing.T) {
	p := newPool(t, 1<<16, nil)
	small, _ := p.AllocatePool(efi.LoaderData, 64)
	_, _ = p.AllocatePool(efi.LoaderData, 8)
	large, _ := p.AllocatePool(efi.LoaderData, 512)
	_, _ = p.AllocatePool(efi.LoaderData, 8)

	require.Equal(t, efi.Success, p.FreePool(large))
	require.Equal(t, efi.Success, p.FreePool(small))
	require.Equal(t, 3, p.Stats().FreeSpans)

	got, status := p.AllocatePool(efi.LoaderData, 60)
	require.Equal(t, efi.Success, status)
	require.Equal(t, small, got, "smallest fitting span wins")

	got, status = p.AllocatePool(efi.LoaderData, 200)
	require.Equal(t, efi.Success, status)
	require.Equal(t, large, got)
	_, ok := p.free.byOff[large-p.base+200]
	require.True(t, ok, "remainder stays free")
}

func TestSkewAfterReuse(t *testing.T) {
	p := newPool(t, 1<<16, &Options{Skew: true})
	var addrs []uintptr
	for i := 0; i < 16; i++ {
		addr, status := p.AllocatePool(efi.LoaderData, uintptr(8+i*8))
		require.Equal(t, efi.Success, status)
		addrs = append(addrs, addr)
	}
	for i := 0; i < len(addrs); i += 2 {
		require.Equal(t, efi.Success, p.FreePool(addrs[i]))
	}
	for i := 0; i < 16; i++ {
		addr, status := p.AllocatePool(efi.LoaderData, uintptr(8+i*8))
		require.Equal(t, efi.Success, status)
		require.Equal(t, efi.PoolAlignment, addr%(2*efi.PoolAlignment))
	}
}

func TestFullyFreedPoolServesWholeCapacity(t *testing.T) {
	p := newPool(t, 4096, &Options{Skew: true})
	var addrs []uintptr
	for {
		addr, status := p.AllocatePool(efi.BootServicesData, 40)
		if status == efi.OutOfResources {
			break
		}
		require.Equal(t, efi.Success, status)
		addrs = append(addrs, addr)
	}
	require.NotEmpty(t, addrs)
	for _, addr := range addrs {
		require.Equal(t, efi.Success, p.FreePool(addr))
	}

	require.Equal(t, 1, p.Stats().FreeSpans)
	_, status := p.AllocatePool(efi.BootServicesData, 4096-2*efi.PoolAlignment)
	require.Equal(t, efi.Success, status)
}

func TestStats(t *testing.T) {
	p := newPool(t, 8192, nil)
	a, _ := p.AllocatePool(efi.LoaderData, 100)
	_, _ = p.AllocatePool(efi.LoaderData, 200)
	p.FreePool(a)

	stats := p.Stats()
	require.Equal(t, Stats{
		Capacity:      8192,
		LiveBlocks:    1,
		LiveBytes:     200,
		HighWater:     304,
		PeakLiveBytes: 300,
		Allocations:   2,
		Frees:         1,
		FreeSpans:     2,
	}, stats)
}

func TestHighWaterCountsFragmentation(t *testing.T) {
	p := newPool(t, 8192, nil)
	a, _ := p.AllocatePool(efi.LoaderData, 1024)
	b, _ := p.AllocatePool(efi.LoaderData, 16)
	require.Equal(t, efi.Success, p.FreePool(a))

	// The freed hole is too small, so the block lands past b.
	_, status := p.AllocatePool(efi.LoaderData, 2048)
	require.Equal(t, efi.Success, status)

	stats := p.Stats()
	require.Equal(t, uint64(1024+16+2048), stats.HighWater)
	require.Equal(t, uint64(16+2048), stats.PeakLiveBytes)
	require.Equal(t, efi.Success, p.FreePool(b))
}

func TestConcurrentUse(t *testing.T) {
	p := newPool(t, 1<<20, &Options{Skew: true})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				addr, status := p.AllocatePool(efi.LoaderData, 24)
				if status.IsError() {
					t.Errorf("allocate: %s", status)
					return
				}
				if status := p.FreePool(addr); status.IsError() {
					t.Errorf("free: %s", status)
					return
				}
			}
		}()
	}
	wg.Wait()
	stats := p.Stats()
	require.Zero(t, stats.LiveBlocks)
	require.Equal(t, uint64(4000), stats.Allocations)
	require.Equal(t, uint64(4000), stats.Frees)
}

func TestClose(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p, err := New(4096, &Options{Logger: log})
	require.NoError(t, err)

	addr, _ := p.AllocatePool(efi.LoaderData, 16)
	err = p.Close()
	require.ErrorIs(t, err, ErrLeaked)
	require.Contains(t, err.Error(), "1 block(s) outstanding")
	require.NoError(t, p.Close(), "second close is a no-op")

	_, status := p.AllocatePool(efi.LoaderData, 16)
	require.Equal(t, efi.NotReady, status)
	require.Equal(t, efi.InvalidParameter, p.FreePool(addr))

	require.Contains(t, out.String(), "mempool: mapped")
	require.Contains(t, out.String(), "mempool: unmapped")
}

func TestCloseClean(t *testing.T) {
	p, err := New(4096, nil)
	require.NoError(t, err)
	addr, _ := p.AllocatePool(efi.LoaderData, 16)
	require.Equal(t, efi.Success, p.FreePool(addr))
	require.NoError(t, p.Close())
}
