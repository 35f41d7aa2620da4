// Package pool implements a file-backed persistent memory pool with undo-log
// transactions.
//
// A pool is a single file mapped shared and read-write. The first 4 KiB hold
// a checksummed header (identity, size, allocation cursor, root object); the
// rest is a bump-allocated heap. Every store into the heap happens inside a
// transaction: before a byte range is modified its pre-image is appended to
// the undo log next to the pool file (<pool>.undo). Commit flushes the
// modified pages and then discards the log; Abort, or recovery after a crash,
// copies the pre-images back in reverse order.
//
// *Pool implements the Recorder, Memory and Allocator interfaces of package
// pmem, so arrays can live directly in a pool:
//
//	p, err := pool.Create("data.pool", 1<<20)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	err = p.Update(func(tx *pool.Tx) error {
//		arr, err := pmem.Make[int64](p, 16)
//		if err != nil {
//			return err
//		}
//		return tx.SetRoot(pool.Ptr(arr.Offset()), arr.Len())
//	})
//
// # Durability
//
// DurabilitySync (default) fsyncs the undo log after every snapshot, before
// the caller may modify the range, and survives power loss. DurabilityAsync
// fsyncs only at commit and survives process crashes only.
//
// # Limits
//
// One transaction at a time per pool. Pools are at most 4 GiB. Freed memory
// is never reused.
package pool
