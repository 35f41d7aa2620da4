// Package pmem provides a fixed-size array that lives in persistent memory
// and gives its elements transactional write semantics.
//
// An Array[T] is a handle over N consecutive elements of T inside a
// persistent address space (see package pool). The persisted bytes are the
// elements and nothing else: no header, no length field, natural alignment.
//
// # Snapshot before write
//
// Every mutable access registers the touched byte range with the active
// transaction before a writable reference is handed out, so the transaction
// manager can copy the pre-image into its undo log. Reads never record.
//
//	err := p.Update(func(tx *pool.Tx) error {
//	    arr, err := pmem.Make[int64](p, 6, 6, 5, 4, 3, 2, 1)
//	    if err != nil {
//	        return err
//	    }
//	    ref, err := arr.MutAt(2) // one snapshot of element 2
//	    if err != nil {
//	        return err
//	    }
//	    *ref = 42
//	    return nil
//	})
//
// # Amortized snapshots
//
// MutAt records one element per call. Writing a whole region that way fills
// the undo log with one entry per element. A RangeView records stride-sized
// blocks instead:
//
//	view, _ := arr.RangeStride(0, arr.Len(), 2)
//	for it := view.Begin(); it.Valid(); it.Next() {
//	    ref, err := it.Ref() // records [0,2), [2,4), [4,6): three calls
//	    if err != nil {
//	        return err
//	    }
//	    *ref++
//	}
//
// Iterators keep a recorded window and only call the recorder when they step
// outside it. Random access on a view consults a per-block bitset. Both reset
// when a new transaction starts.
//
// # Read-only access
//
// At, Get, Values, All, Backward and ConstIterator never record, for any
// array size or traversal.
//
// # Outside a transaction
//
// A mutable access with no active transaction fails with
// ErrNoActiveTransaction and leaves memory untouched.
//
// # Element types
//
// T must have a fixed-size, pointer-free representation: booleans, numbers,
// and arrays or structs built from them. Other types are rejected with
// ErrConstructionNotSupported.
package pmem
