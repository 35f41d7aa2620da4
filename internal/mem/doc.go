// Package mem provides aligned allocation and alignment checks.
//
// Pool mappings are page aligned, so element alignment only depends on the
// offset. Heap-backed address spaces used in tests get the same guarantee
// from AllocAligned.
package mem
