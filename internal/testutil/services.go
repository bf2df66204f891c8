// Package testutil provides shared test doubles for the allocator packages.
package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r-efi/r-efi-alloc/efi"
	"github.com/r-efi/r-efi-alloc/efi/mempool"
)

// Call records one AllocatePool or FreePool invocation.
type Call struct {
	Op     string // "allocate" or "free"
	Type   efi.MemoryType
	Size   uintptr
	Addr   uintptr
	Status efi.Status
}

// Services wraps a real mempool.Pool, records every call and lets tests
// inject native failures.
type Services struct {
	Pool *mempool.Pool

	mu        sync.Mutex
	calls     []Call
	allocFail efi.Status
	nullOK    bool
	freeFail  efi.Status
}

var _ efi.BootServices = (*Services)(nil)

// NewServices maps a pool of capacity bytes and closes it at test cleanup.
func NewServices(t testing.TB, capacity int, skew bool) *Services {
	t.Helper()
	pool, err := mempool.New(capacity, &mempool.Options{Skew: skew})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Close()
	})
	return &Services{Pool: pool}
}

// FailAllocate makes every following AllocatePool return status.
func (s *Services) FailAllocate(status efi.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocFail = status
}

// NullSuccess makes every following AllocatePool report Success with a zero address.
func (s *Services) NullSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nullOK = true
}

// FailFree makes every following FreePool return status without freeing.
func (s *Services) FailFree(status efi.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeFail = status
}

func (s *Services) AllocatePool(mt efi.MemoryType, size uintptr) (uintptr, efi.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		addr   uintptr
		status efi.Status
	)
	switch {
	case s.allocFail.IsError():
		status = s.allocFail
	case s.nullOK:
		status = efi.Success
	default:
		addr, status = s.Pool.AllocatePool(mt, size)
	}
	s.calls = append(s.calls, Call{Op: "allocate", Type: mt, Size: size, Addr: addr, Status: status})
	return addr, status
}

func (s *Services) FreePool(addr uintptr) efi.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.freeFail
	if !status.IsError() {
		status = s.Pool.FreePool(addr)
	}
	s.calls = append(s.calls, Call{Op: "free", Addr: addr, Status: status})
	return status
}

// Calls returns a copy of the recorded calls.
func (s *Services) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// LastAllocate returns the most recent AllocatePool call.
func (s *Services) LastAllocate(t testing.TB) Call {
	t.Helper()
	calls := s.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Op == "allocate" {
			return calls[i]
		}
	}
	t.Fatalf("no AllocatePool call recorded")
	return Call{}
}

// Recovered runs fn and returns the value it panicked with, or nil.
func Recovered(fn func()) (v any) {
	defer func() {
		v = recover()
	}()
	fn()
	return nil
}
