package pool

// Ptr is the offset of an object inside a pool. It stays valid across
// processes and mappings. The zero Ptr is nil: offset 0 is the header and
// never allocated.
type Ptr uint64

// IsNil reports whether p is the nil pointer.
func (p Ptr) IsNil() bool { return p == 0 }

// Off returns the offset as an int.
func (p Ptr) Off() int { return int(p) } //nolint:gosec // pools are at most 4 GiB

// Add returns p advanced by n bytes.
func (p Ptr) Add(n int) Ptr { return Ptr(int64(p) + int64(n)) } //nolint:gosec // offsets fit in 32 bits
