package pmem

// Recorder registers byte ranges with the active transaction so their
// pre-images reach the undo log before they are overwritten.
type Recorder interface {
	// Record registers [off, off+n) as about to be modified.
	Record(off, n int) error
	// Epoch identifies the active transaction. It is zero when none is
	// active and differs between any two transactions.
	Epoch() uint64
}

// Memory is the persistent address space arrays live in. Offsets are stable
// for the life of the address space.
type Memory interface {
	Recorder
	// Slice returns the n bytes at off. Writes through the slice go straight
	// to persistent memory.
	Slice(off, n int) ([]byte, error)
}

// Allocator is a Memory that can carve out new zeroed ranges inside the
// active transaction.
type Allocator interface {
	Memory
	Alloc(size, align int) (int, error)
}
