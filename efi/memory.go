package efi

import (
	"fmt"
	"strconv"
	"strings"
)

// MemoryType is an EFI_MEMORY_TYPE. The allocator uses it as an opaque class
// tag selecting which native pool a block is drawn from.
type MemoryType uint32

const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
	UnacceptedMemoryType
	MaxMemoryType
)

// OEM and OS-loader reserved ranges.
const (
	OEMReservedMin MemoryType = 0x70000000
	OEMReservedMax MemoryType = 0x7fffffff
	OSReservedMin  MemoryType = 0x80000000
	OSReservedMax  MemoryType = 0xffffffff
)

var memoryTypeNames = [...]string{
	ReservedMemoryType:      "ReservedMemoryType",
	LoaderCode:              "LoaderCode",
	LoaderData:              "LoaderData",
	BootServicesCode:        "BootServicesCode",
	BootServicesData:        "BootServicesData",
	RuntimeServicesCode:     "RuntimeServicesCode",
	RuntimeServicesData:     "RuntimeServicesData",
	ConventionalMemory:      "ConventionalMemory",
	UnusableMemory:          "UnusableMemory",
	ACPIReclaimMemory:       "ACPIReclaimMemory",
	ACPIMemoryNVS:           "ACPIMemoryNVS",
	MemoryMappedIO:          "MemoryMappedIO",
	MemoryMappedIOPortSpace: "MemoryMappedIOPortSpace",
	PalCode:                 "PalCode",
	PersistentMemory:        "PersistentMemory",
	UnacceptedMemoryType:    "UnacceptedMemoryType",
}

func (t MemoryType) String() string {
	switch {
	case t < MaxMemoryType:
		return memoryTypeNames[t]
	case t >= OSReservedMin:
		return fmt.Sprintf("OSReserved(%#x)", uint32(t))
	case t >= OEMReservedMin:
		return fmt.Sprintf("OEMReserved(%#x)", uint32(t))
	default:
		return fmt.Sprintf("MemoryType(%d)", uint32(t))
	}
}

// PoolAllocatable reports whether AllocatePool accepts t.
// ConventionalMemory, PersistentMemory and the undefined range
// [MaxMemoryType, OEMReservedMin) are rejected with InvalidParameter.
func (t MemoryType) PoolAllocatable() bool {
	switch {
	case t == ConventionalMemory, t == PersistentMemory:
		return false
	case t >= MaxMemoryType && t < OEMReservedMin:
		return false
	default:
		return true
	}
}

// ParseMemoryType accepts a memory type name (case-insensitive) or a numeric value.
func ParseMemoryType(s string) (MemoryType, error) {
	for i, name := range memoryTypeNames {
		if strings.EqualFold(name, s) {
			return MemoryType(i), nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("efi: unknown memory type %q", s)
	}
	return MemoryType(n), nil
}
