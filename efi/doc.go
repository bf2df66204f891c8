// Package efi models the native pool-allocation service the allocator adapts.
//
// # Overview
//
// Firmware environments in the UEFI family expose exactly two calls for
// general-purpose memory: AllocatePool(type, size) and FreePool(buffer). The
// pool guarantees an alignment of PoolAlignment (8 bytes) for every block it
// hands out and knows nothing about stronger alignment requests.
//
// This package captures that contract as the BootServices interface together
// with the Status and MemoryType value types used on both sides of it:
//
//	type BootServices interface {
//	    AllocatePool(mt MemoryType, size uintptr) (uintptr, Status)
//	    FreePool(buffer uintptr) Status
//	}
//
// A returned address of zero is never a valid block, even when paired with
// Success; callers must treat it like an error status.
//
// # Memory Types
//
// MemoryType selects the pool a block is drawn from (LoaderData,
// BootServicesData, RuntimeServicesData, ...). The value is opaque to the
// allocator and is carried unchanged through every call.
//
// # Related Packages
//
//   - github.com/r-efi/r-efi-alloc/efi/mempool: simulated BootServices over an anonymous mapping
//   - github.com/r-efi/r-efi-alloc/alloc: arbitrary-alignment allocator over BootServices
package efi

// PoolAlignment is the alignment AllocatePool guarantees for every block.
const PoolAlignment uintptr = 8

// BootServices is the native allocation primitive.
//
// Implementations must return blocks aligned to at least PoolAlignment and
// must accept any address they previously returned in FreePool exactly once.
type BootServices interface {
	// AllocatePool reserves size bytes from the pool selected by mt.
	AllocatePool(mt MemoryType, size uintptr) (uintptr, Status)

	// FreePool returns a block previously obtained from AllocatePool.
	FreePool(buffer uintptr) Status
}
