package pmem

import (
	"github.com/bits-and-blooms/bitset"
)

// RangeView is a window [start, start+length) onto an array that records
// stride elements per recorder call. Indexes passed to its methods are
// relative to the start of the view.
//
// Block b covers view positions [b*stride, min(length, (b+1)*stride)).
// Random access (MutAt, Set, Fill) records a block the first time any of its
// elements is written in a transaction; iterators from Begin/RBegin track
// their own recorded window.
type RangeView[T any] struct {
	a      *Array[T]
	start  int
	end    int
	stride int

	blocks *bitset.BitSet
	epoch  uint64
}

func newRangeView[T any](a *Array[T], start, length, stride int) *RangeView[T] {
	stride = max(1, min(stride, length))
	nblocks := (length + stride - 1) / stride
	return &RangeView[T]{
		a:      a,
		start:  start,
		end:    start + length,
		stride: stride,
		blocks: bitset.New(uint(nblocks)),
	}
}

// Len returns the number of elements in the view.
func (v *RangeView[T]) Len() int { return v.end - v.start }

// Start returns the array index of the first element of the view.
func (v *RangeView[T]) Start() int { return v.start }

// Stride returns the number of elements recorded per recorder call.
func (v *RangeView[T]) Stride() int { return v.stride }

// Blocks returns the number of stride-sized blocks in the view.
func (v *RangeView[T]) Blocks() int { return (v.Len() + v.stride - 1) / v.stride }

// RecordedBlocks returns how many blocks this view has recorded in the
// active transaction.
func (v *RangeView[T]) RecordedBlocks() int {
	if e := v.a.mem.Epoch(); e == 0 || e != v.epoch {
		return 0
	}
	return int(v.blocks.Count())
}

func (v *RangeView[T]) checkIndex(i int) error {
	if i < 0 || i >= v.Len() {
		return &IndexError{Index: i, Len: v.Len()}
	}
	return nil
}

// recordBlock records block b unless this view already did so in the
// active transaction.
func (v *RangeView[T]) recordBlock(b int) error {
	epoch := v.a.mem.Epoch()
	if epoch != v.epoch {
		v.blocks.ClearAll()
		v.epoch = epoch
	}
	if epoch != 0 && v.blocks.Test(uint(b)) {
		return nil
	}

	bs := v.start + b*v.stride
	be := min(v.end, bs+v.stride)
	if err := v.a.record(bs, be-bs); err != nil {
		return err
	}
	v.blocks.Set(uint(b))
	return nil
}

// At returns element i of the view without recording.
func (v *RangeView[T]) At(i int) (T, error) {
	if err := v.checkIndex(i); err != nil {
		var zero T
		return zero, err
	}
	return v.a.data[v.start+i], nil
}

// Get returns element i of the view; out-of-range indexes panic.
func (v *RangeView[T]) Get(i int) T { return v.a.data[v.start:v.end][i] }

// MutAt records the block holding element i (once per transaction) and
// returns a pointer to the element.
func (v *RangeView[T]) MutAt(i int) (*T, error) {
	if err := v.checkIndex(i); err != nil {
		return nil, err
	}
	if err := v.recordBlock(i / v.stride); err != nil {
		return nil, err
	}
	return &v.a.data[v.start+i], nil
}

// Ref is MutAt without the explicit bounds check; out-of-range indexes panic
// before anything is recorded.
func (v *RangeView[T]) Ref(i int) (*T, error) {
	p := &v.a.data[v.start:v.end][i]
	if err := v.recordBlock(i / v.stride); err != nil {
		return nil, err
	}
	return p, nil
}

// Set stores val at element i, recording as MutAt does.
func (v *RangeView[T]) Set(i int, val T) error {
	p, err := v.MutAt(i)
	if err != nil {
		return err
	}
	*p = val
	return nil
}

// Fill sets every element of the view to val, one recorder call per block
// not yet recorded.
func (v *RangeView[T]) Fill(val T) error {
	for b := range v.Blocks() {
		if err := v.recordBlock(b); err != nil {
			return err
		}
	}
	for i := v.start; i < v.end; i++ {
		v.a.data[i] = val
	}
	return nil
}

// Each calls fn with a writable pointer to every element front to back,
// recording block by block. It stops at the first error from fn or the
// recorder.
func (v *RangeView[T]) Each(fn func(i int, p *T) error) error {
	for it := v.Begin(); it.Valid(); it.Next() {
		p, err := it.Ref()
		if err != nil {
			return err
		}
		if err := fn(it.Index()-v.start, p); err != nil {
			return err
		}
	}
	return nil
}

// Values returns a copy of the elements of the view.
func (v *RangeView[T]) Values() []T {
	out := make([]T, v.Len())
	copy(out, v.a.data[v.start:v.end])
	return out
}

// Begin returns a mutable iterator over the view recording stride elements
// per call.
func (v *RangeView[T]) Begin() *Iterator[T] {
	return newIterator(v.a, v.start, v.end, v.stride, false)
}

// End returns the past-the-end iterator of the view.
func (v *RangeView[T]) End() *Iterator[T] { return v.Begin().at(v.end) }

// RBegin returns a mutable reverse iterator over the view.
func (v *RangeView[T]) RBegin() *Iterator[T] {
	return newIterator(v.a, v.start, v.end, v.stride, true)
}

// REnd returns the past-the-end reverse iterator of the view.
func (v *RangeView[T]) REnd() *Iterator[T] { return v.RBegin().at(v.start - 1) }

// CBegin returns a read-only iterator over the view.
func (v *RangeView[T]) CBegin() *ConstIterator[T] {
	return newConstIterator(v.a, v.start, v.end, false)
}

// CEnd returns the past-the-end read-only iterator of the view.
func (v *RangeView[T]) CEnd() *ConstIterator[T] { return v.CBegin().at(v.end) }

// CRBegin returns a read-only reverse iterator over the view.
func (v *RangeView[T]) CRBegin() *ConstIterator[T] {
	return newConstIterator(v.a, v.start, v.end, true)
}

// CREnd returns the past-the-end read-only reverse iterator of the view.
func (v *RangeView[T]) CREnd() *ConstIterator[T] { return v.CRBegin().at(v.start - 1) }
