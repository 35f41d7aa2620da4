package undolog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/pmem/internal/fs"
)

// Durability controls when snapshot records reach stable storage.
type Durability int

const (
	// DurabilitySync fsyncs after every snapshot append, before the caller
	// may overwrite the range. Survives power loss.
	DurabilitySync Durability = iota
	// DurabilityAsync fsyncs only at commit. Survives process crashes (the
	// page cache holds both the log and the pool), not power loss.
	DurabilityAsync
)

func (d Durability) String() string {
	if d == DurabilityAsync {
		return "async"
	}
	return "sync"
}

const (
	logMagic      = "PMEMUNDO" // 8 bytes
	logVersion    = 1          // 4 bytes
	logHeaderSize = 12
)

var (
	ErrIncompatibleVersion = errors.New("incompatible undo log version")
	ErrInvalidHeader       = errors.New("invalid undo log header")
	ErrClosed              = errors.New("undo log is closed")
)

// Options configures a Log.
type Options struct {
	Durability  Durability
	Compression CompressionType
}

// DefaultOptions returns synchronous, uncompressed logging.
func DefaultOptions() Options {
	return Options{Durability: DurabilitySync}
}

// Log is the undo log file of one pool.
type Log struct {
	mu     sync.Mutex
	file   fs.File
	path   string
	opts   Options
	size   int64
	buf    []byte
	closed bool
}

// Open opens or creates the undo log at path.
func Open(fsys fs.FileSystem, path string, opts Options) (*Log, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := stat.Size()

	if size == 0 {
		header := make([]byte, logHeaderSize)
		copy(header[0:8], logMagic)
		binary.LittleEndian.PutUint32(header[8:12], logVersion)
		if _, err := f.Write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return nil, err
		}
		size = logHeaderSize
	} else {
		if err := checkHeader(f, size); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if _, err := f.Seek(size, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Log{
		file: f,
		path: path,
		opts: opts,
		size: size,
	}, nil
}

func checkHeader(f fs.File, size int64) error {
	if size < logHeaderSize {
		return fmt.Errorf("%w: file too small (%d < %d)", ErrInvalidHeader, size, logHeaderSize)
	}
	header := make([]byte, logHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return err
	}
	if string(header[0:8]) != logMagic {
		return fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, header[0:8])
	}
	if ver := binary.LittleEndian.Uint32(header[8:12]); ver != logVersion {
		return fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, logVersion)
	}
	return nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Size returns the current size of the log in bytes, header included.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Empty reports whether the log holds no records.
func (l *Log) Empty() bool {
	return l.Size() == logHeaderSize
}

// Append writes records to the log. Under DurabilitySync the log is fsynced
// before Append returns.
func (l *Log) Append(recs ...Record) error {
	return l.append(l.opts.Durability == DurabilitySync, recs)
}

// AppendSync writes records and fsyncs regardless of the durability mode.
func (l *Log) AppendSync(recs ...Record) error {
	return l.append(true, recs)
}

func (l *Log) append(sync bool, recs []Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	buf := l.buf[:0]
	for i := range recs {
		var err error
		if buf, err = recs[i].encode(buf, l.opts.Compression); err != nil {
			return err
		}
	}
	l.buf = buf

	n, err := l.file.Write(buf)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("undo append: %w", err)
	}
	if sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("undo sync: %w", err)
		}
	}
	return nil
}

// Sync fsyncs the log.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.file.Sync()
}

// Reset discards all records, leaving only the header, and fsyncs.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := l.file.Truncate(logHeaderSize); err != nil {
		return fmt.Errorf("undo truncate: %w", err)
	}
	if _, err := l.file.Seek(logHeaderSize, io.SeekStart); err != nil {
		return err
	}
	l.size = logHeaderSize
	return l.file.Sync()
}

// Scan reads every intact record in file order. When the log ends in a torn
// record, the intact prefix is returned together with the reason in torn.
func (l *Log) Scan() (recs []Record, torn error, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, nil, ErrClosed
	}

	r := bufio.NewReader(io.NewSectionReader(l.file, logHeaderSize, l.size-logHeaderSize))
	for {
		rec, err := decodeRecord(r)
		if err == io.EOF {
			return recs, nil, nil
		}
		if err != nil {
			if errors.Is(err, ErrShortRead) || errors.Is(err, ErrInvalidCRC) || errors.Is(err, ErrRecordTooLarge) {
				return recs, err, nil
			}
			return recs, nil, err
		}
		recs = append(recs, rec)
	}
}

// Close closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
