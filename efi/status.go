package efi

import (
	"fmt"
	"math/bits"
)

// Status is an EFI_STATUS code. The high bit marks errors; other non-zero
// values are warnings.
type Status uintptr

const errorBit = Status(1) << (bits.UintSize - 1)

const (
	Success Status = 0

	LoadError         = errorBit | 1
	InvalidParameter  = errorBit | 2
	Unsupported       = errorBit | 3
	BadBufferSize     = errorBit | 4
	BufferTooSmall    = errorBit | 5
	NotReady          = errorBit | 6
	DeviceError       = errorBit | 7
	WriteProtected    = errorBit | 8
	OutOfResources    = errorBit | 9
	NotFound          = errorBit | 14
	AccessDenied      = errorBit | 15
	Aborted           = errorBit | 21
	SecurityViolation = errorBit | 26

	WarnUnknownGlyph   Status = 1
	WarnDeleteFailure  Status = 2
	WarnWriteFailure   Status = 3
	WarnBufferTooSmall Status = 4
)

var statusNames = map[Status]string{
	Success:            "SUCCESS",
	LoadError:          "LOAD_ERROR",
	InvalidParameter:   "INVALID_PARAMETER",
	Unsupported:        "UNSUPPORTED",
	BadBufferSize:      "BAD_BUFFER_SIZE",
	BufferTooSmall:     "BUFFER_TOO_SMALL",
	NotReady:           "NOT_READY",
	DeviceError:        "DEVICE_ERROR",
	WriteProtected:     "WRITE_PROTECTED",
	OutOfResources:     "OUT_OF_RESOURCES",
	NotFound:           "NOT_FOUND",
	AccessDenied:       "ACCESS_DENIED",
	Aborted:            "ABORTED",
	SecurityViolation:  "SECURITY_VIOLATION",
	WarnUnknownGlyph:   "WARN_UNKNOWN_GLYPH",
	WarnDeleteFailure:  "WARN_DELETE_FAILURE",
	WarnWriteFailure:   "WARN_WRITE_FAILURE",
	WarnBufferTooSmall: "WARN_BUFFER_TOO_SMALL",
}

// IsError reports whether s has the error bit set.
func (s Status) IsError() bool {
	return s&errorBit != 0
}

// IsWarning reports whether s is a non-zero status without the error bit.
func (s Status) IsWarning() bool {
	return s != Success && !s.IsError()
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	if s.IsError() {
		return fmt.Sprintf("ERROR(%d)", uintptr(s&^errorBit))
	}
	return fmt.Sprintf("WARNING(%d)", uintptr(s))
}

// Err returns nil for non-error statuses and a StatusError otherwise.
func (s Status) Err() error {
	if !s.IsError() {
		return nil
	}
	return StatusError{Status: s}
}

// StatusError carries a failing Status through error chains.
type StatusError struct {
	Status Status
}

func (e StatusError) Error() string {
	return "efi: " + e.Status.String()
}
