//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func osMap(f *os.File, size int, writable bool) ([]byte, func([]byte) error, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}

// osSync writes back data[off:off+n]. msync requires a page-aligned start, so
// the range is widened down to the enclosing page.
func osSync(data []byte, off, n int) error {
	if n == 0 || len(data) == 0 {
		return nil
	}
	page := os.Getpagesize()
	start := off &^ (page - 1)
	end := off + n
	if end > len(data) {
		end = len(data)
	}
	return unix.Msync(data[start:end], unix.MS_SYNC)
}

// osAdvise applies pattern to data[off:off+n], widened down to the enclosing
// page like osSync.
func osAdvise(data []byte, off, n int, pattern AccessPattern) error {
	if n == 0 || len(data) == 0 {
		return nil
	}
	start := off &^ (os.Getpagesize() - 1)
	end := min(off+n, len(data))

	var advice int
	switch pattern {
	case AccessSequential:
		advice = unix.MADV_SEQUENTIAL
	case AccessRandom:
		advice = unix.MADV_RANDOM
	case AccessWillNeed:
		advice = unix.MADV_WILLNEED
	case AccessDontNeed:
		advice = unix.MADV_DONTNEED
	default:
		advice = unix.MADV_NORMAL
	}

	return unix.Madvise(data[start:end], advice)
}
