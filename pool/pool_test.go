package pool

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pmem/internal/fs"
)

func newPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pool")
	p, err := Create(path, 1<<16, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// crash drops the pool without aborting or flushing, as a killed process
// would. The page cache keeps the mapped stores.
func crash(t *testing.T, p *Pool) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	require.NoError(t, p.undo.Close())
	require.NoError(t, p.m.Close())
}

func TestCreateOpen(t *testing.T) {
	p := newPool(t)
	id := p.UUID()
	path := p.Path()

	assert.Equal(t, 1<<16, p.Size())
	assert.Zero(t, p.Used())
	ptr, size := p.Root()
	assert.True(t, ptr.IsNil())
	assert.Zero(t, size)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	assert.Equal(t, id, p2.UUID())

	_, err = Create(path, 1<<16)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestCreateInvalidSize(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(filepath.Join(dir, "a"), MinSize-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = Create(filepath.Join(dir, "b"), MaxSize+1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestOpenRejectsCorruptHeader(t *testing.T) {
	p := newPool(t)
	path := p.Path()
	require.NoError(t, p.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, hdrCursor)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	junk := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(junk, bytes.Repeat([]byte{1}, MinSize), 0o600))
	_, err = Open(junk)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestBeginTwice(t *testing.T) {
	p := newPool(t)

	tx, err := p.Begin()
	require.NoError(t, err)
	assert.Same(t, tx, p.Active())
	assert.Equal(t, tx.ID(), p.Epoch())

	_, err = p.Begin()
	assert.ErrorIs(t, err, ErrTxInProgress)

	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.ErrorIs(t, tx.Abort(), ErrTxDone)
	assert.ErrorIs(t, tx.SnapshotRange(HeaderSize, 1), ErrTxDone)
	assert.Nil(t, p.Active())
	assert.Zero(t, p.Epoch())

	tx2, err := p.Begin()
	require.NoError(t, err)
	assert.NotEqual(t, tx.ID(), tx2.ID())
	require.NoError(t, tx2.Abort())
}

func TestNoTransaction(t *testing.T) {
	p := newPool(t)

	assert.ErrorIs(t, p.Record(HeaderSize, 8), ErrNoTransaction)
	_, err := p.Alloc(8, 8)
	assert.ErrorIs(t, err, ErrNoTransaction)
	assert.ErrorIs(t, p.SetRoot(Ptr(HeaderSize), 8), ErrNoTransaction)
}

func TestAllocCommitAndAbort(t *testing.T) {
	p := newPool(t)

	var first int
	require.NoError(t, p.Update(func(tx *Tx) error {
		off, err := tx.Alloc(100, 64)
		require.NoError(t, err)
		assert.Zero(t, off%64)
		assert.GreaterOrEqual(t, off, HeaderSize)
		first = off

		b, err := p.Slice(off, 100)
		require.NoError(t, err)
		b[0] = 42
		return tx.SetRoot(Ptr(off), 100)
	}))
	assert.Equal(t, 100, p.Used())

	tx, err := p.Begin()
	require.NoError(t, err)
	off, err := p.Alloc(50, 8)
	require.NoError(t, err)
	assert.Greater(t, off, first)
	require.NoError(t, tx.SetRoot(Ptr(off), 50))
	require.NoError(t, tx.Abort())

	assert.Equal(t, 100, p.Used())
	ptr, size := p.Root()
	assert.Equal(t, Ptr(first), ptr)
	assert.Equal(t, 100, size)

	b, err := p.Slice(first, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(42), b[0])
}

func TestAllocErrors(t *testing.T) {
	p := newPool(t)
	tx, err := p.Begin()
	require.NoError(t, err)
	defer tx.Abort()

	_, err = tx.Alloc(1<<20, 8)
	assert.ErrorIs(t, err, ErrOutOfSpace)
	_, err = tx.Alloc(8, 3)
	assert.ErrorIs(t, err, ErrBadRange)
	_, err = tx.Alloc(-1, 8)
	assert.ErrorIs(t, err, ErrBadRange)
	assert.ErrorIs(t, tx.SetRoot(0, 8), ErrBadRange)
	assert.ErrorIs(t, tx.SetRoot(Ptr(1<<20), 8), ErrBadRange)
	assert.Zero(t, p.Used())
}

func TestSnapshotDedupe(t *testing.T) {
	p := newPool(t)
	tx, err := p.Begin()
	require.NoError(t, err)
	off, err := tx.Alloc(256, 8)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	before := p.Stats()
	tx, err = p.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.SnapshotRange(off, 16))
	require.NoError(t, tx.SnapshotRange(off+8, 16))
	require.NoError(t, tx.SnapshotRange(off, 24))
	require.NoError(t, tx.SnapshotRange(off+40, 8))
	require.NoError(t, tx.SnapshotRange(off, 64))
	require.NoError(t, tx.SnapshotRange(off, 0))

	s := p.Stats()
	assert.Equal(t, int64(6), s.Snapshots-before.Snapshots)
	// [0,16) [16,24) [40,48) [24,40)+[48,64)
	assert.Equal(t, int64(5), s.UndoRecords-before.UndoRecords)
	assert.Equal(t, int64(64), s.LoggedBytes-before.LoggedBytes)
	require.NoError(t, tx.Commit())
}

func TestFreshAllocationIsNotLogged(t *testing.T) {
	p := newPool(t)
	require.NoError(t, p.Update(func(tx *Tx) error {
		off, err := tx.Alloc(1024, 8)
		if err != nil {
			return err
		}
		before := p.Stats().LoggedBytes
		if err := tx.SnapshotRange(off, 1024); err != nil {
			return err
		}
		assert.Equal(t, before, p.Stats().LoggedBytes)
		return nil
	}))
}

func TestSnapshotRangeBounds(t *testing.T) {
	p := newPool(t)
	tx, err := p.Begin()
	require.NoError(t, err)
	defer tx.Abort()

	assert.ErrorIs(t, tx.SnapshotRange(0, 8), ErrBadRange)
	assert.ErrorIs(t, tx.SnapshotRange(p.Size()-4, 8), ErrBadRange)
	assert.ErrorIs(t, tx.SnapshotRange(HeaderSize, -1), ErrBadRange)
	_, err = p.Slice(HeaderSize-1, 2)
	assert.ErrorIs(t, err, ErrBadRange)
}

func TestAbortRestores(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			p := newPool(t, WithCompression(c))
			var off int
			require.NoError(t, p.Update(func(tx *Tx) error {
				var err error
				off, err = tx.Alloc(4096, 8)
				if err != nil {
					return err
				}
				b, _ := p.Slice(off, 4096)
				for i := range b {
					b[i] = byte(i % 7)
				}
				return nil
			}))

			want := make([]byte, 4096)
			b, err := p.Slice(off, 4096)
			require.NoError(t, err)
			copy(want, b)

			tx, err := p.Begin()
			require.NoError(t, err)
			require.NoError(t, tx.SnapshotRange(off+100, 2000))
			clear(b[100:2100])
			require.NoError(t, tx.SnapshotRange(off, 4096))
			clear(b)
			require.NoError(t, tx.Abort())

			assert.Equal(t, want, b)
		})
	}
}

func TestUpdateAbortsOnErrorAndPanic(t *testing.T) {
	p := newPool(t)
	errBoom := assert.AnError

	err := p.Update(func(tx *Tx) error {
		_, err := tx.Alloc(64, 8)
		require.NoError(t, err)
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, p.Used())
	assert.Nil(t, p.Active())

	assert.Panics(t, func() {
		_ = p.Update(func(tx *Tx) error {
			_, _ = tx.Alloc(64, 8)
			panic("boom")
		})
	})
	assert.Zero(t, p.Used())
	assert.Nil(t, p.Active())
	assert.Equal(t, int64(2), p.Stats().Aborts)
}

func TestUndoBudget(t *testing.T) {
	p := newPool(t, WithUndoBudget(128))
	var off int
	require.NoError(t, p.Update(func(tx *Tx) error {
		var err error
		off, err = tx.Alloc(1024, 8)
		return err
	}))

	tx, err := p.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.SnapshotRange(off, 100))
	err = tx.SnapshotRange(off+100, 100)
	assert.ErrorIs(t, err, ErrUndoBudget)
	require.NoError(t, tx.Abort())

	// Budget is per transaction.
	require.NoError(t, p.Update(func(tx *Tx) error {
		return tx.SnapshotRange(off, 128)
	}))
}

func TestRecoveryRollsBackInterruptedTransaction(t *testing.T) {
	for _, d := range []Durability{DurabilitySync, DurabilityAsync} {
		t.Run(d.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "crash.pool")
			mc := &BasicMetricsCollector{}
			p, err := Create(path, 1<<16, WithDurability(d), WithMetricsCollector(mc))
			require.NoError(t, err)

			var off int
			require.NoError(t, p.Update(func(tx *Tx) error {
				off, err = tx.Alloc(16, 8)
				if err != nil {
					return err
				}
				b, _ := p.Slice(off, 16)
				copy(b, "committed-value!")
				return tx.SetRoot(Ptr(off), 16)
			}))

			_, err = p.Begin()
			require.NoError(t, err)
			require.NoError(t, p.Record(off, 16))
			b, _ := p.Slice(off, 16)
			copy(b, "uncommitted-junk")
			_, err = p.Alloc(512, 8)
			require.NoError(t, err)
			crash(t, p)

			var logs bytes.Buffer
			logger := NewLogger(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
			mc2 := &BasicMetricsCollector{}
			p2, err := Open(path, WithLogger(logger), WithMetricsCollector(mc2))
			require.NoError(t, err)
			defer p2.Close()

			got, err := p2.Slice(off, 16)
			require.NoError(t, err)
			assert.Equal(t, "committed-value!", string(got))
			assert.Equal(t, 16, p2.Used())
			ptr, size := p2.Root()
			assert.Equal(t, Ptr(off), ptr)
			assert.Equal(t, 16, size)

			assert.Equal(t, int64(1), p2.Stats().RolledBack)
			assert.Equal(t, int64(1), mc2.GetStats().RecoveryCount)
			assert.Contains(t, logs.String(), "rolled back interrupted transaction")
			assert.Equal(t, int64(1), mc.GetStats().CommitCount)
		})
	}
}

func TestRecoveryKeepsCommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.pool")
	p, err := Create(path, 1<<16)
	require.NoError(t, err)

	var off int
	require.NoError(t, p.Update(func(tx *Tx) error {
		off, err = tx.Alloc(8, 8)
		if err != nil {
			return err
		}
		b, _ := p.Slice(off, 8)
		copy(b, "durable!")
		return nil
	}))
	crash(t, p)

	info, err := os.Stat(UndoPath(path))
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	got, err := p2.Slice(off, 8)
	require.NoError(t, err)
	assert.Equal(t, "durable!", string(got))
	assert.Zero(t, p2.Stats().RolledBack)
}

func TestRecoveryIgnoresTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.pool")
	p, err := Create(path, 1<<16)
	require.NoError(t, err)

	var off int
	require.NoError(t, p.Update(func(tx *Tx) error {
		off, err = tx.Alloc(8, 8)
		return err
	}))
	_, err = p.Begin()
	require.NoError(t, err)
	require.NoError(t, p.Record(off, 8))
	b, _ := p.Slice(off, 8)
	copy(b, "12345678")
	crash(t, p)

	f, err := os.OpenFile(UndoPath(path), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	got, err := p2.Slice(off, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), got)
}

func TestSnapshotFailurePoisonsTransaction(t *testing.T) {
	faulty := fs.NewFaultyFS(nil)
	// Header (12) and the Begin record (30) fit, the first snapshot does not.
	faulty.AddRule(".undo", fs.Fault{FailAfterBytes: 42})

	dir := t.TempDir()
	path := filepath.Join(dir, "faulty.pool")
	p, err := Create(path, 1<<16, WithFileSystem(faulty))
	require.NoError(t, err)
	defer p.Close()

	tx, err := p.Begin()
	require.NoError(t, err)
	err = tx.SnapshotRange(HeaderSize, 8)
	assert.ErrorIs(t, err, fs.ErrInjected)

	_, err = tx.Alloc(8, 8)
	assert.ErrorIs(t, err, ErrTxFailed)

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrTxFailed)
	assert.Nil(t, p.Active())
	assert.Zero(t, p.Used())
}

func TestFailedTruncateDoesNotReplayAbortedPreImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncate.pool")
	p, err := Create(path, 1<<16)
	require.NoError(t, err)
	var off int
	require.NoError(t, p.Update(func(tx *Tx) error {
		off, err = tx.Alloc(8, 8)
		return err
	}))
	require.NoError(t, p.Close())

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule(".undo", fs.Fault{FailAfterBytes: -1, FailOnTruncate: true})
	p, err = Open(path, WithFileSystem(faulty))
	require.NoError(t, err)
	b, err := p.Slice(off, 1)
	require.NoError(t, err)

	tx, err := p.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.SnapshotRange(off, 1))
	b[0] = 1
	assert.ErrorIs(t, tx.Abort(), fs.ErrInjected)
	assert.Equal(t, byte(0), b[0])
	assert.Nil(t, p.Active())

	tx, err = p.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.SnapshotRange(off, 1))
	b[0] = 2
	assert.ErrorIs(t, tx.Commit(), fs.ErrInjected)
	assert.Equal(t, byte(2), b[0])
	require.NoError(t, p.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	got, err := p2.Slice(off, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got)
	assert.Zero(t, p2.Stats().RolledBack)
}

func TestCloseAbortsActiveTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.pool")
	p, err := Create(path, 1<<16)
	require.NoError(t, err)

	_, err = p.Begin()
	require.NoError(t, err)
	_, err = p.Alloc(64, 8)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Begin()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Record(HeaderSize, 1), ErrClosed)
	_, err = p.Slice(HeaderSize, 1)
	assert.ErrorIs(t, err, ErrClosed)

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	assert.Zero(t, p2.Used())
}

func TestViewRefusesDuringTransaction(t *testing.T) {
	p := newPool(t)
	require.NoError(t, p.View(func(image []byte) error {
		assert.Equal(t, "PMEMPOOL", string(image[:8]))
		return nil
	}))

	tx, err := p.Begin()
	require.NoError(t, err)
	assert.ErrorIs(t, p.View(func([]byte) error { return nil }), ErrTxInProgress)
	require.NoError(t, tx.Abort())
}

func TestParseOptions(t *testing.T) {
	d, err := ParseDurability("async")
	require.NoError(t, err)
	assert.Equal(t, DurabilityAsync, d)
	_, err = ParseDurability("eventually")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, strings.Contains(pe.Error(), "eventually"))

	c, err := ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)
}

func TestPtr(t *testing.T) {
	var p Ptr
	assert.True(t, p.IsNil())
	q := Ptr(HeaderSize).Add(16)
	assert.False(t, q.IsNil())
	assert.Equal(t, HeaderSize+16, q.Off())
}
