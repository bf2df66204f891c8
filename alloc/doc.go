// Package alloc serves arbitrarily aligned memory from a native pool that
// only guarantees a weak, fixed alignment.
//
// # Overview
//
// efi.BootServices hands out blocks aligned to efi.PoolAlignment (8 bytes).
// Allocator adapts every request with a stronger alignment in three steps:
//
//   - RequestSize(size, align, native): grow the request by align bytes
//   - AlignBlock(p, align, native): shift the returned block up to align and
//     store the original address in the word right before the result
//   - UnalignBlock(p, align, native): recover the original address at free time
//
// Requests the pool already satisfies pass through untouched.
//
// # Usage Example
//
//	pool, err := mempool.New(1<<20, nil)
//	if err != nil {
//	    return err
//	}
//	a, err := alloc.New(pool, efi.LoaderData, nil)
//	if err != nil {
//	    return err
//	}
//
//	l := alloc.MustLayout(100, 64)
//	p, err := a.Allocate(l)
//	if err != nil {
//	    return err // wraps alloc.ErrAllocationFailed
//	}
//	defer a.Deallocate(p, l)
//	copy(alloc.Bytes(p, l.Size), payload)
//
// # Block Layout
//
// For align > native the pool block looks like this:
//
//	native                          p = native + offset, offset in [native, align]
//	| padding ...       | marker    | size bytes ...         | slack
//
// The marker is a single machine word. The native alignment must be large
// enough to hold it; New rejects anything smaller.
//
// # Zero-Sized Blocks
//
// Allocate on a zero-sized layout returns Layout.Dangling() and never calls
// the pool; Deallocate on one is a no-op.
//
// # Failure Model
//
// Allocation failures are returned as *AllocError values matching
// ErrAllocationFailed. Everything else (double frees, mismatched layouts,
// a FreePool error on a block this package returned) is a broken caller
// invariant and panics with *ContractViolation.
//
// # Related Packages
//
//   - github.com/r-efi/r-efi-alloc/global: process-wide default allocator slot
//   - github.com/r-efi/r-efi-alloc/efi: the native service contract
package alloc
