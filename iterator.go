package pmem

// Iterator is a random-access cursor over an array or a range view that
// records lazily: Ref and Set record the stride-aligned block holding the
// current element unless the iterator already recorded it in the current
// transaction.
//
// Blocks are counted from the end the iterator starts at: the low end for
// forward iterators, the high end for reverse ones, so only the last block
// of a pass may be short. The recorded window [recLo, recHi) only grows by
// adjacent blocks, so a sequential pass in either direction calls the
// recorder once per block. Jumping elsewhere starts a new window.
type Iterator[T any] struct {
	a      *Array[T]
	pos    int
	dir    int
	lo, hi int
	stride int

	recLo, recHi int
	epoch        uint64
}

func newIterator[T any](a *Array[T], lo, hi, stride int, reverse bool) *Iterator[T] {
	it := &Iterator[T]{a: a, lo: lo, hi: hi, stride: max(1, min(stride, hi-lo)), dir: 1, pos: lo}
	if reverse {
		it.dir = -1
		it.pos = hi - 1
	}
	return it
}

// at returns it repositioned to absolute index pos.
func (it *Iterator[T]) at(pos int) *Iterator[T] {
	it.pos = pos
	return it
}

// Valid reports whether the iterator points at an element of its range.
func (it *Iterator[T]) Valid() bool { return it.pos >= it.lo && it.pos < it.hi }

// Next moves one element in the iteration direction.
func (it *Iterator[T]) Next() { it.pos += it.dir }

// Prev moves one element against the iteration direction.
func (it *Iterator[T]) Prev() { it.pos -= it.dir }

// Advance moves n elements in the iteration direction (n may be negative).
func (it *Iterator[T]) Advance(n int) { it.pos += n * it.dir }

// Index returns the array index the iterator points at.
func (it *Iterator[T]) Index() int { return it.pos }

// Stride returns the number of elements recorded per recorder call.
func (it *Iterator[T]) Stride() int { return it.stride }

// Equal reports whether both iterators point at the same element of the same array.
func (it *Iterator[T]) Equal(o *Iterator[T]) bool { return it.a == o.a && it.pos == o.pos }

// Distance returns how many steps it must take to reach o.
func (it *Iterator[T]) Distance(o *Iterator[T]) int { return (o.pos - it.pos) * it.dir }

// Clone returns an independent copy, including the recorded window.
func (it *Iterator[T]) Clone() *Iterator[T] {
	c := *it
	return &c
}

// Get returns the current element without recording.
func (it *Iterator[T]) Get() T {
	if !it.Valid() {
		panic(&IndexError{Index: it.pos, Len: it.a.Len()})
	}
	return it.a.data[it.pos]
}

// Ref returns a pointer to the current element, recording its block first
// unless this iterator already recorded it in the active transaction.
func (it *Iterator[T]) Ref() (*T, error) {
	if !it.Valid() {
		return nil, &IndexError{Index: it.pos, Len: it.a.Len()}
	}
	if err := it.ensureRecorded(it.pos); err != nil {
		return nil, err
	}
	return &it.a.data[it.pos], nil
}

// Set stores v at the current element, recording as Ref does.
func (it *Iterator[T]) Set(v T) error {
	p, err := it.Ref()
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (it *Iterator[T]) ensureRecorded(p int) error {
	epoch := it.a.mem.Epoch()
	if epoch != 0 && epoch == it.epoch && p >= it.recLo && p < it.recHi {
		return nil
	}

	var bs, be int
	if it.dir < 0 {
		be = it.hi - (it.hi-1-p)/it.stride*it.stride
		bs = max(it.lo, be-it.stride)
	} else {
		bs = it.lo + (p-it.lo)/it.stride*it.stride
		be = min(it.hi, bs+it.stride)
	}
	if err := it.a.record(bs, be-bs); err != nil {
		return err
	}

	switch {
	case epoch != it.epoch || it.recLo == it.recHi:
		it.recLo, it.recHi = bs, be
	case bs == it.recHi:
		it.recHi = be
	case be == it.recLo:
		it.recLo = bs
	default:
		it.recLo, it.recHi = bs, be
	}
	it.epoch = epoch
	return nil
}

// ConstIterator is a read-only cursor. It has no write path and never
// reaches the recorder.
type ConstIterator[T any] struct {
	a      *Array[T]
	pos    int
	dir    int
	lo, hi int
}

func newConstIterator[T any](a *Array[T], lo, hi int, reverse bool) *ConstIterator[T] {
	it := &ConstIterator[T]{a: a, lo: lo, hi: hi, dir: 1, pos: lo}
	if reverse {
		it.dir = -1
		it.pos = hi - 1
	}
	return it
}

func (it *ConstIterator[T]) at(pos int) *ConstIterator[T] {
	it.pos = pos
	return it
}

// Valid reports whether the iterator points at an element of its range.
func (it *ConstIterator[T]) Valid() bool { return it.pos >= it.lo && it.pos < it.hi }

// Next moves one element in the iteration direction.
func (it *ConstIterator[T]) Next() { it.pos += it.dir }

// Prev moves one element against the iteration direction.
func (it *ConstIterator[T]) Prev() { it.pos -= it.dir }

// Advance moves n elements in the iteration direction.
func (it *ConstIterator[T]) Advance(n int) { it.pos += n * it.dir }

// Index returns the array index the iterator points at.
func (it *ConstIterator[T]) Index() int { return it.pos }

// Equal reports whether both iterators point at the same element of the same array.
func (it *ConstIterator[T]) Equal(o *ConstIterator[T]) bool { return it.a == o.a && it.pos == o.pos }

// Distance returns how many steps it must take to reach o.
func (it *ConstIterator[T]) Distance(o *ConstIterator[T]) int { return (o.pos - it.pos) * it.dir }

// Get returns the current element.
func (it *ConstIterator[T]) Get() T {
	if !it.Valid() {
		panic(&IndexError{Index: it.pos, Len: it.a.Len()})
	}
	return it.a.data[it.pos]
}
