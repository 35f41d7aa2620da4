// Package hash provides the CRC32-Castagnoli checksums used by the pool
// header and the undo log.
//
// Go's crc32 package uses SSE4.2 / ARM CRC instructions when available.
//
//	sum := hash.CRC32C(header[:n])
//
//	h := hash.NewCRC32C()
//	h.Write(recordHeader)
//	h.Write(preImage)
//	sum := h.Sum32()
package hash
