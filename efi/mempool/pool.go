// Package mempool provides a simulated efi.BootServices backed by an anonymous
// memory mapping.
//
// The pool behaves like firmware pool memory during boot: every block is
// aligned to efi.PoolAlignment and nothing stronger. Blocks are placed best-fit
// from size-classed free lists and freed space is coalesced with its
// neighbours. It exists to drive the allocator in tests and in the efialloc
// tool; it is not a general-purpose heap.
package mempool

import (
	"log/slog"
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/r-efi/r-efi-alloc/efi"
	"github.com/r-efi/r-efi-alloc/internal/buf"
	"github.com/r-efi/r-efi-alloc/internal/logger"
	"github.com/r-efi/r-efi-alloc/internal/mmap"
)

// Options configures a Pool. A nil *Options selects the defaults.
type Options struct {
	// Skew places every block at an address that is PoolAlignment-aligned
	// but never 2*PoolAlignment-aligned, so any stronger request has to be
	// adjusted by the caller.
	Skew bool

	// Logger receives mapping lifecycle records. Defaults to logger.L.
	Logger *slog.Logger
}

// Stats is a snapshot of pool accounting.
type Stats struct {
	Capacity   uint64 `json:"capacity"`
	LiveBlocks int    `json:"live_blocks"`
	LiveBytes  uint64 `json:"live_bytes"`
	// HighWater is the highest end offset ever reserved, fragmentation included.
	HighWater     uint64 `json:"high_water"`
	PeakLiveBytes uint64 `json:"peak_live_bytes"`
	Allocations   uint64 `json:"allocations"`
	Frees         uint64 `json:"frees"`
	Failures      uint64 `json:"failures"`
	BadFrees      uint64 `json:"bad_frees"`
	FreeSpans     int    `json:"free_spans"`
}

type block struct {
	size     uintptr
	reserved uintptr
	mt       efi.MemoryType
}

// Pool implements efi.BootServices. It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	region  []byte
	base    uintptr
	free    *freeList
	release func() error
	live    map[uintptr]block
	skew    bool
	closed  bool
	stats   Stats
	log     *slog.Logger
}

var _ efi.BootServices = (*Pool)(nil)

// New maps capacity bytes and returns a pool serving them.
func New(capacity int, opts *Options) (*Pool, error) {
	if opts == nil {
		opts = &Options{}
	}
	region, release, err := mmap.Anon(capacity)
	if err != nil {
		return nil, errors.Wrap(err, "mempool: map region")
	}
	p := &Pool{
		region:  region,
		base:    uintptr(unsafe.Pointer(&region[0])),
		free:    newFreeList(uintptr(capacity)),
		release: release,
		live:    make(map[uintptr]block),
		skew:    opts.Skew,
		log:     logger.Or(opts.Logger),
	}
	p.stats.Capacity = uint64(capacity)
	p.log.Debug("mempool: mapped", "base", p.base, "capacity", capacity, "skew", p.skew)
	return p, nil
}

// AllocatePool reserves size bytes for memory type mt.
func (p *Pool) AllocatePool(mt efi.MemoryType, size uintptr) (uintptr, efi.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.stats.Failures++
		return 0, efi.NotReady
	}
	if !mt.PoolAllocatable() {
		p.stats.Failures++
		return 0, efi.InvalidParameter
	}

	// Zero-sized requests still reserve space so every live address is unique.
	need, ok := buf.AlignUp(max(size, 1), efi.PoolAlignment)
	var off uintptr
	if ok {
		off, ok = p.free.take(p.base, need, p.skew)
	}
	if !ok {
		p.stats.Failures++
		return 0, efi.OutOfResources
	}

	addr := p.base + off
	end := off + need
	p.live[addr] = block{size: size, reserved: need, mt: mt}

	p.stats.Allocations++
	p.stats.LiveBlocks++
	p.stats.LiveBytes += uint64(size)
	p.stats.PeakLiveBytes = max(p.stats.PeakLiveBytes, p.stats.LiveBytes)
	p.stats.HighWater = max(p.stats.HighWater, uint64(end))
	return addr, efi.Success
}

// FreePool returns a block obtained from AllocatePool. Unknown and already
// freed addresses yield InvalidParameter.
func (p *Pool) FreePool(addr uintptr) efi.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	blk, ok := p.live[addr]
	if p.closed || !ok {
		p.stats.BadFrees++
		return efi.InvalidParameter
	}
	delete(p.live, addr)

	p.stats.Frees++
	p.stats.LiveBlocks--
	p.stats.LiveBytes -= uint64(blk.size)
	p.free.insert(addr-p.base, blk.reserved)
	return efi.Success
}

// Contains reports whether addr falls inside the mapped region.
func (p *Pool) Contains(addr uintptr) bool {
	return addr >= p.base && addr < p.base+uintptr(len(p.region))
}

// BlockOf returns the live block starting at addr, its size and memory type.
func (p *Pool) BlockOf(addr uintptr) (uintptr, efi.MemoryType, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	blk, ok := p.live[addr]
	return blk.size, blk.mt, ok
}

// Stats returns a snapshot of pool accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	if p.free != nil {
		s.FreeSpans = p.free.spans()
	}
	return s
}

// Close unmaps the region. Outstanding blocks become invalid; their count is
// reported through ErrLeaked.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	leaked := len(p.live)
	p.live = nil
	p.free = nil
	p.region = nil

	if err := p.release(); err != nil {
		return errors.Wrap(err, "mempool: unmap region")
	}
	p.log.Debug("mempool: unmapped", "base", p.base, "leaked", leaked)
	if leaked > 0 {
		return errors.Wrapf(ErrLeaked, "%d block(s) outstanding", leaked)
	}
	return nil
}
