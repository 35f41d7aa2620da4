package pmem

import (
	"fmt"
	"iter"
	"math"
	"reflect"
	"unsafe"

	"github.com/hupe1980/pmem/internal/mem"
)

// Array is a fixed-length sequence of N elements of T stored contiguously in
// persistent memory. The persisted image is exactly N*sizeof(T) bytes.
//
// An Array is a handle: it owns no memory of its own and may be reopened at
// the same offset by any later process. It is not safe for concurrent use.
type Array[T any] struct {
	mem  Memory
	off  int
	esz  int
	raw  []byte
	data []T
}

// Open attaches to n elements of T at off in m. Nothing is recorded or written.
func Open[T any](m Memory, off, n int) (*Array[T], error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, &ElemTypeError{Type: t, Reason: "interface element type"}
	}
	if err := checkElem(t); err != nil {
		return nil, err
	}
	esz := int(unsafe.Sizeof(zero))
	if err := checkCount(off, n, esz); err != nil {
		return nil, err
	}

	align := int(unsafe.Alignof(zero))
	if off%align != 0 {
		return nil, fmt.Errorf("%w: offset %d, alignment %d", ErrMisaligned, off, align)
	}

	raw, err := m.Slice(off, n*esz)
	if err != nil {
		return nil, err
	}
	if !mem.IsAligned(raw, align) {
		return nil, fmt.Errorf("%w: base address, alignment %d", ErrMisaligned, align)
	}

	a := &Array[T]{mem: m, off: off, esz: esz, raw: raw}
	switch {
	case n == 0:
	case esz == 0:
		a.data = make([]T, n)
	default:
		a.data = unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n) //nolint:gosec // raw is aligned for T and pointer-free
	}
	return a, nil
}

// Make allocates an array of n elements inside the active transaction.
// With no initial values the elements are zero; otherwise exactly n values
// must be given and they are written under one snapshot of the whole array.
func Make[T any](a Allocator, n int, init ...T) (*Array[T], error) {
	var zero T
	if t := reflect.TypeOf(zero); t == nil {
		return nil, &ElemTypeError{Type: t, Reason: "interface element type"}
	} else if err := checkElem(t); err != nil {
		return nil, err
	}
	if len(init) != 0 && len(init) != n {
		return nil, fmt.Errorf("%w: got %d values for %d elements", ErrInitializerLength, len(init), n)
	}
	if a.Epoch() == 0 {
		return nil, ErrNoActiveTransaction
	}

	esz := int(unsafe.Sizeof(zero))
	if err := checkCount(0, n, esz); err != nil {
		return nil, err
	}
	off, err := a.Alloc(n*esz, int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	arr, err := Open[T](a, off, n)
	if err != nil {
		return nil, err
	}
	if len(init) > 0 {
		if err := arr.record(0, n); err != nil {
			return nil, err
		}
		copy(arr.data, init)
	}
	return arr, nil
}

// checkCount rejects element counts whose byte length is negative or does
// not fit in an int.
func checkCount(off, n, esz int) error {
	switch {
	case n < 0:
		return &RangeError{Start: off, Length: n, Len: 0}
	case esz > 0 && n > math.MaxInt/esz:
		return &RangeError{Start: off, Length: n, Len: math.MaxInt / esz}
	}
	return nil
}

// record passes elements [i, i+n) to the recorder.
func (a *Array[T]) record(i, n int) error {
	if a.mem.Epoch() == 0 {
		return ErrNoActiveTransaction
	}
	if n == 0 || a.esz == 0 {
		return nil
	}
	if err := a.mem.Record(a.off+i*a.esz, n*a.esz); err != nil {
		return fmt.Errorf("pmem: snapshot [%d,%d): %w", i, i+n, err)
	}
	return nil
}

func (a *Array[T]) checkIndex(i int) error {
	if i < 0 || i >= len(a.data) {
		return &IndexError{Index: i, Len: len(a.data)}
	}
	return nil
}

// Len returns the number of elements.
func (a *Array[T]) Len() int { return len(a.data) }

// Empty reports whether the array has no elements.
func (a *Array[T]) Empty() bool { return len(a.data) == 0 }

// Offset returns the position of element 0 in the address space.
func (a *Array[T]) Offset() int { return a.off }

// ElemSize returns sizeof(T) in bytes.
func (a *Array[T]) ElemSize() int { return a.esz }

// Bytes returns the persisted image: Len()*ElemSize() bytes, elements back to
// back. The slice aliases persistent memory and must not be written.
func (a *Array[T]) Bytes() []byte { return a.raw }

// At returns element i. It never records.
func (a *Array[T]) At(i int) (T, error) {
	if err := a.checkIndex(i); err != nil {
		var zero T
		return zero, err
	}
	return a.data[i], nil
}

// ConstAt is At under the name of the read-only accessor.
func (a *Array[T]) ConstAt(i int) (T, error) { return a.At(i) }

// Get returns element i without an explicit bounds check; out-of-range
// indexes panic like slice indexing.
func (a *Array[T]) Get(i int) T { return a.data[i] }

// MutAt records element i and returns a pointer to it. One recorder call
// per invocation; use a RangeView to amortize.
func (a *Array[T]) MutAt(i int) (*T, error) {
	if err := a.checkIndex(i); err != nil {
		return nil, err
	}
	if err := a.record(i, 1); err != nil {
		return nil, err
	}
	return &a.data[i], nil
}

// Ref is MutAt without the explicit bounds check; out-of-range indexes panic
// before anything is recorded.
func (a *Array[T]) Ref(i int) (*T, error) {
	p := &a.data[i]
	if err := a.record(i, 1); err != nil {
		return nil, err
	}
	return p, nil
}

// Set records element i and stores v.
func (a *Array[T]) Set(i int, v T) error {
	p, err := a.MutAt(i)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Front returns the first element.
func (a *Array[T]) Front() (T, error) { return a.At(0) }

// Back returns the last element.
func (a *Array[T]) Back() (T, error) { return a.At(len(a.data) - 1) }

// Values returns a copy of the elements.
func (a *Array[T]) Values() []T {
	out := make([]T, len(a.data))
	copy(out, a.data)
	return out
}

// Data records the whole array and returns its elements as a writable slice.
func (a *Array[T]) Data() ([]T, error) {
	if err := a.record(0, len(a.data)); err != nil {
		return nil, err
	}
	return a.data, nil
}

// Fill records the whole array once and sets every element to v.
func (a *Array[T]) Fill(v T) error {
	if err := a.record(0, len(a.data)); err != nil {
		return err
	}
	for i := range a.data {
		a.data[i] = v
	}
	return nil
}

// Swap exchanges the contents of a and b, recording both first.
func (a *Array[T]) Swap(b *Array[T]) error {
	if len(a.data) != len(b.data) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(a.data), len(b.data))
	}
	if err := a.record(0, len(a.data)); err != nil {
		return err
	}
	if err := b.record(0, len(b.data)); err != nil {
		return err
	}
	for i := range a.data {
		a.data[i], b.data[i] = b.data[i], a.data[i]
	}
	return nil
}

// All iterates index/value pairs front to back without recording.
func (a *Array[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range a.data {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Backward iterates index/value pairs back to front without recording.
func (a *Array[T]) Backward() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := len(a.data) - 1; i >= 0; i-- {
			if !yield(i, a.data[i]) {
				return
			}
		}
	}
}

// Begin returns a mutable iterator at the first element. Each element is
// recorded on its first Ref or Set.
func (a *Array[T]) Begin() *Iterator[T] { return newIterator(a, 0, len(a.data), 1, false) }

// End returns the past-the-end mutable iterator.
func (a *Array[T]) End() *Iterator[T] { return a.Begin().at(len(a.data)) }

// RBegin returns a mutable iterator at the last element moving backwards.
func (a *Array[T]) RBegin() *Iterator[T] { return newIterator(a, 0, len(a.data), 1, true) }

// REnd returns the past-the-end reverse iterator.
func (a *Array[T]) REnd() *Iterator[T] { return a.RBegin().at(-1) }

// CBegin returns a read-only iterator at the first element.
func (a *Array[T]) CBegin() *ConstIterator[T] { return newConstIterator(a, 0, len(a.data), false) }

// CEnd returns the past-the-end read-only iterator.
func (a *Array[T]) CEnd() *ConstIterator[T] { return a.CBegin().at(len(a.data)) }

// CRBegin returns a read-only iterator at the last element moving backwards.
func (a *Array[T]) CRBegin() *ConstIterator[T] { return newConstIterator(a, 0, len(a.data), true) }

// CREnd returns the past-the-end read-only reverse iterator.
func (a *Array[T]) CREnd() *ConstIterator[T] { return a.CRBegin().at(-1) }

// Range returns a view over [start, start+length) that records one element
// per block.
func (a *Array[T]) Range(start, length int) (*RangeView[T], error) {
	return a.RangeStride(start, length, 1)
}

// RangeStride returns a view over [start, start+length) that records
// stride elements per recorder call. A stride larger than length is clamped:
// the whole view is recorded on first touch.
func (a *Array[T]) RangeStride(start, length, stride int) (*RangeView[T], error) {
	if start < 0 || length < 0 || start > len(a.data) || length > len(a.data)-start {
		return nil, &RangeError{Start: start, Length: length, Len: len(a.data)}
	}
	if stride < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStride, stride)
	}
	return newRangeView(a, start, length, stride), nil
}
