// Package mmap maps pool files and backup blobs into memory.
//
// OpenRW maps a file shared and writable: stores through Bytes land in the
// page cache of the file and reach the disk on Flush (msync with MS_SYNC) or
// whenever the kernel writes the page back. Open maps read-only, which is what
// the local blob store uses for reads.
//
//	m, err := mmap.OpenRW("arrays.pool")
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	m.Bytes()[4096] = 1
//	err = m.Flush(4096, 1)
//
// Flush and Advise widen their range down to the enclosing page. Close is
// idempotent; the slice from Bytes must not be used after it.
package mmap
