package undolog

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hupe1980/pmem/internal/conv"
	"github.com/hupe1980/pmem/internal/hash"
)

// RecordType identifies the type of an undo record.
type RecordType uint8

const (
	// RecordBegin opens a transaction.
	RecordBegin RecordType = 1
	// RecordSnapshot carries the pre-image of [Off, Off+len(Data)).
	RecordSnapshot RecordType = 2
	// RecordCommit closes a transaction; its snapshots are obsolete.
	RecordCommit RecordType = 3
	// RecordAbort closes a transaction whose pre-images were already copied
	// back; recovery must not apply them again.
	RecordAbort RecordType = 4
)

const (
	recordHeaderSize = 4 + 1 + 1 + 8 + 8 + 4 + 4
	// MaxRecordData bounds a single pre-image. Larger snapshots are split by
	// the caller.
	MaxRecordData = 64 << 20
)

var (
	ErrInvalidCRC     = errors.New("invalid undo record checksum")
	ErrInvalidType    = errors.New("invalid undo record type")
	ErrShortRead      = errors.New("short read in undo record")
	ErrRecordTooLarge = errors.New("undo record too large")
)

// Record is a single entry of the undo log.
type Record struct {
	Type RecordType
	TxID uint64
	// Off is the pool offset of the pre-image. Zero for Begin/Commit.
	Off uint64
	// Data is the uncompressed pre-image. Empty for Begin/Commit.
	Data []byte
}

// encode appends the framed record to dst, compressing Data with ct.
func (r *Record) encode(dst []byte, ct CompressionType) ([]byte, error) {
	if len(r.Data) > MaxRecordData {
		return nil, ErrRecordTooLarge
	}
	payload, used, err := compress(r.Data, ct)
	if err != nil {
		return nil, err
	}

	var hdr [recordHeaderSize]byte
	hdr[4] = byte(r.Type)
	hdr[5] = byte(used)
	binary.LittleEndian.PutUint64(hdr[6:], r.TxID)
	binary.LittleEndian.PutUint64(hdr[14:], r.Off)
	rawLen, err := conv.IntToUint32(len(r.Data))
	if err != nil {
		return nil, err
	}
	payloadLen, err := conv.IntToUint32(len(payload))
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(hdr[22:], rawLen)
	binary.LittleEndian.PutUint32(hdr[26:], payloadLen)

	crc := hash.UpdateCRC32C(0, hdr[4:])
	crc = hash.UpdateCRC32C(crc, payload)
	binary.LittleEndian.PutUint32(hdr[0:], crc)

	dst = append(dst, hdr[:]...)
	return append(dst, payload...), nil
}

// decodeRecord reads one record from r. io.EOF means a clean end of log.
func decodeRecord(r io.Reader) (Record, error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, ErrShortRead
	}

	typ := RecordType(hdr[4])
	codec := CompressionType(hdr[5])
	rawLen := binary.LittleEndian.Uint32(hdr[22:])
	payloadLen := binary.LittleEndian.Uint32(hdr[26:])
	if rawLen > MaxRecordData || payloadLen > MaxRecordData {
		return Record{}, ErrRecordTooLarge
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, ErrShortRead
	}

	crc := hash.UpdateCRC32C(0, hdr[4:])
	crc = hash.UpdateCRC32C(crc, payload)
	if crc != binary.LittleEndian.Uint32(hdr[0:]) {
		return Record{}, ErrInvalidCRC
	}

	if typ < RecordBegin || typ > RecordAbort {
		return Record{}, ErrInvalidType
	}

	var data []byte
	if rawLen > 0 {
		var err error
		if data, err = decompress(payload, codec, int(rawLen)); err != nil {
			return Record{}, err
		}
	}

	return Record{
		Type: typ,
		TxID: binary.LittleEndian.Uint64(hdr[6:]),
		Off:  binary.LittleEndian.Uint64(hdr[14:]),
		Data: data,
	}, nil
}
