// Package mmap provides platform-specific anonymous memory mappings that live
// outside the Go heap.
//
// Addresses inside a mapping may be held as uintptr and converted back to
// pointers freely; the garbage collector neither moves nor scans them.
package mmap
