package pool

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/pmem/internal/hash"
)

const (
	poolMagic   = "PMEMPOOL"
	poolVersion = 1

	// HeaderSize is the size of the header page. The heap starts here.
	HeaderSize = 4096

	// MinSize is the smallest pool: the header page plus one heap page.
	MinSize = 2 * HeaderSize

	// MaxSize is the largest pool. Offsets fit in 32 bits.
	MaxSize = 1 << 32
)

// Header field offsets. The checksum covers [0, hdrCRC).
const (
	hdrMagic   = 0
	hdrVersion = 8
	hdrUUID    = 16
	hdrSize    = 32
	hdrCursor  = 40
	hdrRootOff = 48
	hdrRootLen = 56
	hdrCRC     = 64
	hdrEnd     = 68
)

type header struct {
	id      uuid.UUID
	size    uint64
	cursor  uint64
	rootOff uint64
	rootLen uint64
}

func (h *header) encode(b []byte) {
	copy(b[hdrMagic:], poolMagic)
	binary.LittleEndian.PutUint32(b[hdrVersion:], poolVersion)
	copy(b[hdrUUID:hdrSize], h.id[:])
	binary.LittleEndian.PutUint64(b[hdrSize:], h.size)
	binary.LittleEndian.PutUint64(b[hdrCursor:], h.cursor)
	binary.LittleEndian.PutUint64(b[hdrRootOff:], h.rootOff)
	binary.LittleEndian.PutUint64(b[hdrRootLen:], h.rootLen)
	binary.LittleEndian.PutUint32(b[hdrCRC:], hash.CRC32C(b[:hdrCRC]))
}

func decodeHeader(b []byte) (header, error) {
	var h header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidHeader, len(b))
	}
	if string(b[hdrMagic:hdrMagic+8]) != poolMagic {
		return h, fmt.Errorf("%w: bad magic %q", ErrInvalidHeader, b[hdrMagic:hdrMagic+8])
	}
	if v := binary.LittleEndian.Uint32(b[hdrVersion:]); v != poolVersion {
		return h, fmt.Errorf("%w: version %d (expected %d)", ErrInvalidHeader, v, poolVersion)
	}
	if got, want := hash.CRC32C(b[:hdrCRC]), binary.LittleEndian.Uint32(b[hdrCRC:]); got != want {
		return h, fmt.Errorf("%w: checksum mismatch", ErrInvalidHeader)
	}

	copy(h.id[:], b[hdrUUID:hdrSize])
	h.size = binary.LittleEndian.Uint64(b[hdrSize:])
	h.cursor = binary.LittleEndian.Uint64(b[hdrCursor:])
	h.rootOff = binary.LittleEndian.Uint64(b[hdrRootOff:])
	h.rootLen = binary.LittleEndian.Uint64(b[hdrRootLen:])

	if h.size != uint64(len(b)) {
		return h, fmt.Errorf("%w: size %d, file has %d bytes", ErrInvalidHeader, h.size, len(b))
	}
	if h.cursor < HeaderSize || h.cursor > h.size {
		return h, fmt.Errorf("%w: heap cursor %d", ErrInvalidHeader, h.cursor)
	}
	if h.rootOff != 0 && (h.rootOff < HeaderSize || h.rootOff > h.cursor) {
		return h, fmt.Errorf("%w: root offset %d", ErrInvalidHeader, h.rootOff)
	}
	return h, nil
}

func readU64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

// writeHeaderFields stores the given fields of the mapped header and
// refreshes its checksum. The caller has snapshotted [0, hdrEnd).
func writeHeaderFields(b []byte, fields map[int]uint64) {
	for off, v := range fields {
		binary.LittleEndian.PutUint64(b[off:], v)
	}
	binary.LittleEndian.PutUint32(b[hdrCRC:], hash.CRC32C(b[:hdrCRC]))
}

// Verify checks that image is a complete pool file and returns its UUID.
func Verify(image []byte) (uuid.UUID, error) {
	h, err := decodeHeader(image)
	if err != nil {
		return uuid.Nil, err
	}
	return h.id, nil
}
