package pmem

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrOutOfRange is returned for an index or range outside the array or view.
	ErrOutOfRange = errors.New("pmem: out of range")

	// ErrNoActiveTransaction is returned by mutable accessors called while no
	// transaction is active. Nothing is recorded and nothing is written.
	ErrNoActiveTransaction = errors.New("pmem: no active transaction")

	// ErrConstructionNotSupported is returned when T cannot be placed in
	// persistent memory (it holds pointers or has no fixed-size layout).
	ErrConstructionNotSupported = errors.New("pmem: element type not supported")

	// ErrInvalidStride is returned for a range stride below one.
	ErrInvalidStride = errors.New("pmem: stride must be positive")

	// ErrInitializerLength is returned when Make receives neither zero nor
	// exactly N initial values.
	ErrInitializerLength = errors.New("pmem: initializer length mismatch")

	// ErrMisaligned is returned when an array offset violates the alignment of T.
	ErrMisaligned = errors.New("pmem: misaligned array offset")

	// ErrLengthMismatch is returned by Swap for arrays of different lengths.
	ErrLengthMismatch = errors.New("pmem: length mismatch")
)

// IndexError reports an element index outside [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("pmem: index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrOutOfRange }

// RangeError reports a range [Start, Start+Length) that does not fit in Len.
type RangeError struct {
	Start  int
	Length int
	Len    int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("pmem: range [%d,%d+%d) out of range [0,%d)", e.Start, e.Start, e.Length, e.Len)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// ElemTypeError reports why an element type was rejected.
type ElemTypeError struct {
	Type   reflect.Type
	Reason string
}

func (e *ElemTypeError) Error() string {
	return fmt.Sprintf("pmem: element type %v not supported: %s", e.Type, e.Reason)
}

func (e *ElemTypeError) Unwrap() error { return ErrConstructionNotSupported }
