package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pmem/internal/mem"
	"github.com/hupe1980/pmem/internal/resource"
	"github.com/hupe1980/pmem/internal/undolog"
)

// run is a byte range [off, off+n) of the pool file.
type run struct {
	off, n int
}

// Tx is a pool transaction. All methods are safe for concurrent use, but
// every store into the pool must be preceded by a snapshot of its range.
type Tx struct {
	p   *Pool
	id  uint64
	log *Logger

	// recorded holds every byte whose pre-image is in the log, plus fresh
	// allocations that need none.
	recorded *roaring.Bitmap
	dirty    []run
	undo     int64
	records  int

	start time.Time
	done  bool
	err   error
}

func newTx(p *Pool, id uint64) *Tx {
	return &Tx{
		p:        p,
		id:       id,
		log:      p.log.WithTx(id),
		recorded: roaring.New(),
		start:    time.Now(),
	}
}

// ID returns the transaction id. It is the epoch arrays observe.
func (t *Tx) ID() uint64 { return t.id }

// SnapshotRange logs the pre-image of [off, off+n) unless this transaction
// already did. Bytes already covered by earlier snapshots are skipped; the
// rest is appended as one record per uncovered run.
func (t *Tx) SnapshotRange(off, n int) error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.snapshotRange(off, n)
}

func (t *Tx) check() error {
	if t.done {
		return ErrTxDone
	}
	if t.p.closed {
		return ErrClosed
	}
	if t.err != nil {
		return fmt.Errorf("%w: %w", ErrTxFailed, t.err)
	}
	return nil
}

func (t *Tx) snapshotRange(off, n int) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.p.checkHeap(off, n); err != nil {
		return err
	}
	t.p.stats.snapshots.Add(1)
	return t.snapshot(off, n)
}

// snapshot logs [off, off+n) without the heap check; the header uses it too.
func (t *Tx) snapshot(off, n int) error {
	if n == 0 {
		return nil
	}
	start := time.Now()

	runs := t.uncovered(off, n)
	var recs []undolog.Record
	var bytes int
	for _, r := range runs {
		for o := r.off; o < r.off+r.n; o += undolog.MaxRecordData {
			e := min(r.off+r.n, o+undolog.MaxRecordData)
			pre := make([]byte, e-o)
			copy(pre, t.p.data[o:e])
			recs = append(recs, undolog.Record{
				Type: undolog.RecordSnapshot,
				TxID: t.id,
				Off:  uint64(o), //nolint:gosec // o is a heap offset
				Data: pre,
			})
			bytes += e - o
		}
	}
	if len(recs) == 0 {
		t.p.opts.metrics.RecordSnapshot(0, time.Since(start), nil)
		return nil
	}

	if err := t.p.rc.AcquireUndo(int64(bytes)); err != nil {
		if errors.Is(err, resource.ErrUndoBudgetExceeded) {
			err = fmt.Errorf("%w: %d bytes logged, %d more requested, budget %d",
				ErrUndoBudget, t.undo, bytes, t.p.rc.UndoBudget())
		}
		t.p.opts.metrics.RecordSnapshot(0, time.Since(start), err)
		return err
	}
	t.undo += int64(bytes)

	if err := t.p.undo.Append(recs...); err != nil {
		// A partly written record hides everything after it from
		// recovery, so nothing more may be logged.
		t.err = err
		t.p.opts.metrics.RecordSnapshot(0, time.Since(start), err)
		return fmt.Errorf("pool: snapshot [%d,%d): %w", off, off+n, err)
	}

	for _, r := range runs {
		t.markRecorded(r)
	}
	t.records += len(recs)
	t.p.stats.records.Add(int64(len(recs)))
	t.p.stats.loggedBytes.Add(int64(bytes))
	t.p.opts.metrics.RecordSnapshot(bytes, time.Since(start), nil)
	return nil
}

func (t *Tx) markRecorded(r run) {
	t.recorded.AddRange(uint64(r.off), uint64(r.off+r.n)) //nolint:gosec // offsets are non-negative
	t.dirty = append(t.dirty, r)
}

// uncovered returns the runs of [off, off+n) not yet recorded.
func (t *Tx) uncovered(off, n int) []run {
	lo, hi := uint32(off), uint32(off+n-1) //nolint:gosec // pools are at most 4 GiB
	covered := t.recorded.Rank(hi)
	if lo > 0 {
		covered -= t.recorded.Rank(lo - 1)
	}
	switch {
	case covered == 0:
		return []run{{off, n}}
	case covered == uint64(n): //nolint:gosec // n > 0
		return nil
	}

	want := roaring.New()
	want.AddRange(uint64(off), uint64(off+n)) //nolint:gosec // offsets are non-negative
	want.AndNot(t.recorded)

	var runs []run
	it := want.Iterator()
	for it.HasNext() {
		b := int(it.Next())
		if k := len(runs) - 1; k >= 0 && runs[k].off+runs[k].n == b {
			runs[k].n++
			continue
		}
		runs = append(runs, run{b, 1})
	}
	return runs
}

// Alloc allocates size zeroed heap bytes aligned to align. The range needs no
// snapshot: aborting restores the allocation cursor.
func (t *Tx) Alloc(size, align int) (int, error) {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.alloc(size, align)
}

func (t *Tx) alloc(size, align int) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	if size < 0 || align < 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("%w: size %d, align %d", ErrBadRange, size, align)
	}

	cur := t.p.cursor()
	off := mem.AlignUp(cur, max(align, 1))
	if off > len(t.p.data) || size > len(t.p.data)-off {
		return 0, fmt.Errorf("%w: %d bytes requested, %d free", ErrOutOfSpace, size, len(t.p.data)-cur)
	}
	if err := t.snapshot(0, hdrEnd); err != nil {
		return 0, err
	}

	clear(t.p.data[off : off+size])
	if size > 0 {
		t.markRecorded(run{off, size})
	}
	writeHeaderFields(t.p.data, map[int]uint64{hdrCursor: uint64(off + size)}) //nolint:gosec // bounded by MaxSize
	return off, nil
}

// SetRoot records ptr and size as the root object.
func (t *Tx) SetRoot(ptr Ptr, size int) error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.setRoot(ptr, size)
}

func (t *Tx) setRoot(ptr Ptr, size int) error {
	if err := t.check(); err != nil {
		return err
	}
	if ptr.IsNil() {
		if size != 0 {
			return fmt.Errorf("%w: nil root with size %d", ErrBadRange, size)
		}
	} else if err := t.p.checkHeap(ptr.Off(), size); err != nil {
		return err
	}
	if err := t.snapshot(0, hdrEnd); err != nil {
		return err
	}
	writeHeaderFields(t.p.data, map[int]uint64{
		hdrRootOff: uint64(ptr),
		hdrRootLen: uint64(size), //nolint:gosec // checked above
	})
	return nil
}

// Commit makes the transaction's writes durable. If a snapshot failed
// earlier, Commit aborts instead and reports ErrTxFailed.
func (t *Tx) Commit() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if t.done {
		return ErrTxDone
	}
	if t.p.closed {
		return ErrClosed
	}
	if t.err != nil {
		cause := t.err
		return errors.Join(fmt.Errorf("%w: %w", ErrTxFailed, cause), t.abort())
	}

	err := t.commit()
	t.p.opts.metrics.RecordCommit(time.Since(t.start), err)
	t.log.LogCommit(context.Background(), t.id, t.records, t.undo, time.Since(t.start), err)
	return err
}

func (t *Tx) commit() error {
	for _, r := range t.dirty {
		if err := t.p.m.Flush(r.off, r.n); err != nil {
			t.err = err
			return errors.Join(fmt.Errorf("pool: commit flush: %w", err), t.abort())
		}
	}
	if err := t.p.undo.AppendSync(undolog.Record{Type: undolog.RecordCommit, TxID: t.id}); err != nil {
		t.err = err
		return errors.Join(fmt.Errorf("pool: commit: %w", err), t.abort())
	}

	// The commit record is durable: the transaction is done even if the log
	// cannot be truncated. Recovery discards committed transactions.
	t.finish()
	t.p.stats.commits.Add(1)
	if err := t.p.undo.Reset(); err != nil {
		return fmt.Errorf("pool: truncate undo log after commit: %w", err)
	}
	return nil
}

// Abort restores every snapshotted range and ends the transaction.
func (t *Tx) Abort() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if t.done {
		return ErrTxDone
	}
	if t.p.closed {
		return ErrClosed
	}
	return t.abort()
}

func (t *Tx) abort() error {
	start := time.Now()
	res, err := t.p.rollback()
	if err == nil {
		if err = t.p.undo.Reset(); err != nil {
			// The pre-images are back in place; keep the next transaction
			// from appending behind an unterminated one.
			err = errors.Join(err, t.p.markAborted(res))
		}
	}
	t.finish()
	t.p.stats.aborts.Add(1)
	t.p.opts.metrics.RecordAbort(res.restored, time.Since(start), err)
	t.log.LogAbort(context.Background(), t.id, res.restored, err)
	if err != nil {
		return fmt.Errorf("pool: abort: %w", err)
	}
	return nil
}

func (t *Tx) finish() {
	t.done = true
	t.p.rc.ReleaseUndo(t.undo)
	if t.p.tx == t {
		t.p.tx = nil
	}
}
