package pool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/pmem/internal/mmap"
	"github.com/hupe1980/pmem/internal/resource"
	"github.com/hupe1980/pmem/internal/undolog"
)

// UndoPath returns the undo log path of the pool at path.
func UndoPath(path string) string { return path + ".undo" }

// Pool is an open persistent memory pool. It is safe for concurrent use, but
// admits one transaction at a time.
type Pool struct {
	mu   sync.Mutex
	path string
	opts options
	log  *Logger

	m    *mmap.Mapping
	data []byte
	id   uuid.UUID

	undo *undolog.Log
	rc   *resource.Controller

	tx     *Tx
	nextTx uint64
	closed bool

	stats struct {
		commits     atomic.Int64
		aborts      atomic.Int64
		snapshots   atomic.Int64
		records     atomic.Int64
		loggedBytes atomic.Int64
		rolledBack  atomic.Int64
	}
}

// Stats is a snapshot of pool counters since Open.
type Stats struct {
	Commits      int64
	Aborts       int64
	Snapshots    int64 // SnapshotRange calls, including fully covered ones
	UndoRecords  int64 // pre-image records written
	LoggedBytes  int64 // uncompressed pre-image bytes written
	RolledBack   int64 // transactions rolled back by recovery
	HeapUsed     int
	HeapCapacity int
}

// Create creates a pool file of size bytes at path. The file must not exist.
func Create(path string, size int, optFns ...Option) (*Pool, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidSize, size, MinSize, MaxSize)
	}

	f, err := opts.fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		_ = opts.fsys.Remove(path)
		return nil, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = opts.fsys.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = opts.fsys.Remove(path)
		return nil, err
	}
	if err := opts.fsys.Remove(UndoPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	m, err := mmap.OpenRW(path)
	if err != nil {
		_ = opts.fsys.Remove(path)
		return nil, err
	}
	h := header{
		id:     uuid.New(),
		size:   uint64(size),
		cursor: HeaderSize,
	}
	h.encode(m.Bytes()[:HeaderSize])
	if err := m.Flush(0, HeaderSize); err != nil {
		_ = m.Close()
		return nil, err
	}

	p, err := open(path, m, opts)
	if err != nil {
		return nil, err
	}
	p.log.InfoContext(context.Background(), "pool created",
		"uuid", p.id.String(),
		"size", size,
	)
	return p, nil
}

// Open opens an existing pool and recovers it: an interrupted transaction
// found in the undo log is rolled back before Open returns.
func Open(path string, optFns ...Option) (*Pool, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	m, err := mmap.OpenRW(path)
	if err != nil {
		return nil, err
	}
	p, err := open(path, m, opts)
	if err != nil {
		return nil, err
	}
	p.log.InfoContext(context.Background(), "pool opened",
		"uuid", p.id.String(),
		"size", p.Size(),
		"used", p.Used(),
	)
	return p, nil
}

func open(path string, m *mmap.Mapping, opts options) (*Pool, error) {
	undo, err := undolog.Open(opts.fsys, UndoPath(path), undolog.Options{
		Durability:  opts.durability,
		Compression: opts.compression,
	})
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	p := &Pool{
		path: path,
		opts: opts,
		log:  opts.logger.WithPath(path),
		m:    m,
		data: m.Bytes(),
		undo: undo,
		rc:   resource.NewController(resource.Config{UndoBudgetBytes: opts.undoBudget}),
	}

	// Roll back before trusting the header: an interrupted allocation may
	// have left it half written.
	if err := p.recover(); err != nil {
		_ = undo.Close()
		_ = m.Close()
		return nil, err
	}
	h, err := decodeHeader(p.data)
	if err != nil {
		_ = undo.Close()
		_ = m.Close()
		return nil, err
	}
	p.id = h.id

	// Array access does not follow file order.
	_ = m.Advise(mmap.AccessRandom)
	return p, nil
}

// Close aborts an active transaction, flushes the mapping and releases the
// pool. It is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	var errs []error
	if p.tx != nil {
		p.log.WarnContext(context.Background(), "closing pool with active transaction", "tx", p.tx.id)
		errs = append(errs, p.tx.abort())
	}
	p.closed = true
	errs = append(errs, p.m.Sync(), p.undo.Close(), p.m.Close())
	p.data = nil

	err := errors.Join(errs...)
	p.log.InfoContext(context.Background(), "pool closed", "error", err)
	return err
}

// Path returns the pool file path.
func (p *Pool) Path() string { return p.path }

// UUID returns the identity written at creation.
func (p *Pool) UUID() uuid.UUID { return p.id }

// Size returns the size of the pool file in bytes.
func (p *Pool) Size() int { return p.m.Size() }

// Used returns the number of heap bytes handed out by Alloc.
func (p *Pool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	return p.cursor() - HeaderSize
}

func (p *Pool) cursor() int {
	return int(readU64(p.data, hdrCursor)) //nolint:gosec // bounded by MaxSize
}

// Begin starts a transaction.
func (p *Pool) Begin() (*Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.tx != nil {
		return nil, ErrTxInProgress
	}

	if err := p.settle(); err != nil {
		return nil, fmt.Errorf("pool: begin: %w", err)
	}

	p.nextTx++
	tx := newTx(p, p.nextTx)
	if err := p.undo.Append(undolog.Record{Type: undolog.RecordBegin, TxID: tx.id}); err != nil {
		// Leave the log as the next recovery expects it.
		_ = p.undo.Reset()
		return nil, fmt.Errorf("pool: begin: %w", err)
	}
	p.tx = tx
	tx.log.DebugContext(context.Background(), "transaction started")
	return tx, nil
}

// Update runs fn inside a transaction. The transaction commits when fn
// returns nil and aborts when fn returns an error or panics; a panic is
// re-raised after the abort.
func (p *Pool) Update(fn func(tx *Tx) error) (err error) {
	tx, err := p.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Abort()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Abort())
	}
	return tx.Commit()
}

// Active returns the active transaction or nil.
func (p *Pool) Active() *Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx
}

// Record snapshots [off, off+n) in the active transaction.
func (p *Pool) Record(off, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.tx == nil {
		return ErrNoTransaction
	}
	return p.tx.snapshotRange(off, n)
}

// Epoch returns the id of the active transaction, or zero.
func (p *Pool) Epoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tx == nil {
		return 0
	}
	return p.tx.id
}

// Slice returns the n heap bytes at off. Writes through the slice reach the
// pool file; they must be preceded by Record inside a transaction.
func (p *Pool) Slice(off, n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if err := p.checkHeap(off, n); err != nil {
		return nil, err
	}
	return p.data[off : off+n : off+n], nil
}

// Alloc allocates size zeroed heap bytes aligned to align in the active
// transaction.
func (p *Pool) Alloc(size, align int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if p.tx == nil {
		return 0, ErrNoTransaction
	}
	return p.tx.alloc(size, align)
}

// Root returns the root object and its size in bytes.
func (p *Pool) Root() (Ptr, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, 0
	}
	return Ptr(readU64(p.data, hdrRootOff)), int(readU64(p.data, hdrRootLen)) //nolint:gosec // bounded by MaxSize
}

// SetRoot sets the root object in the active transaction.
func (p *Pool) SetRoot(ptr Ptr, size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.tx == nil {
		return ErrNoTransaction
	}
	return p.tx.setRoot(ptr, size)
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	s := Stats{
		Commits:     p.stats.commits.Load(),
		Aborts:      p.stats.aborts.Load(),
		Snapshots:   p.stats.snapshots.Load(),
		UndoRecords: p.stats.records.Load(),
		LoggedBytes: p.stats.loggedBytes.Load(),
		RolledBack:  p.stats.rolledBack.Load(),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		s.HeapUsed = p.cursor() - HeaderSize
		s.HeapCapacity = len(p.data) - HeaderSize
	}
	return s
}

// Bytes returns the whole mapped pool file, header included. The slice is
// read-only and valid until Close.
func (p *Pool) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// View runs fn with the mapped pool file while no transaction is active, so
// fn sees a committed image.
func (p *Pool) View(fn func(image []byte) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.tx != nil {
		return ErrTxInProgress
	}
	return fn(p.data)
}

func (p *Pool) checkHeap(off, n int) error {
	if off < HeaderSize || n < 0 || off > len(p.data) || n > len(p.data)-off {
		return fmt.Errorf("%w: [%d,%d) not in [%d,%d)", ErrBadRange, off, off+n, HeaderSize, len(p.data))
	}
	return nil
}
