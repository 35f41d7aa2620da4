package pmem_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pmem"
	"github.com/hupe1980/pmem/pool"
)

var _ pmem.Allocator = (*pool.Pool)(nil)

func createPool(t *testing.T, opts ...pool.Option) *pool.Pool {
	t.Helper()
	p, err := pool.Create(filepath.Join(t.TempDir(), "arrays.pool"), 1<<20, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPoolArrayCommitAndReopen(t *testing.T) {
	p := createPool(t)

	require.NoError(t, p.Update(func(tx *pool.Tx) error {
		arr, err := pmem.Make(p, 6, int64(6), 5, 4, 3, 2, 1)
		if err != nil {
			return err
		}
		return tx.SetRoot(pool.Ptr(arr.Offset()), arr.Len())
	}))
	path := p.Path()
	require.NoError(t, p.Close())

	p2, err := pool.Open(path)
	require.NoError(t, err)
	defer p2.Close()

	root, n := p2.Root()
	arr, err := pmem.Open[int64](p2, root.Off(), n)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 5, 4, 3, 2, 1}, arr.Values())
}

func TestPoolArrayAbortRestores(t *testing.T) {
	p := createPool(t, pool.WithCompression(pool.CompressionLZ4))

	var arr *pmem.Array[uint32]
	require.NoError(t, p.Update(func(*pool.Tx) error {
		var err error
		arr, err = pmem.Make[uint32](p, 1000)
		return err
	}))

	tx, err := p.Begin()
	require.NoError(t, err)
	v, err := arr.RangeStride(0, 1000, 64)
	require.NoError(t, err)
	require.NoError(t, v.Fill(7))
	require.NoError(t, arr.Set(999, 8))
	require.NoError(t, tx.Abort())

	for i, x := range arr.All() {
		require.Zero(t, x, "index %d", i)
	}
}

func TestPoolStrideAmortizesUndoRecords(t *testing.T) {
	p := createPool(t)

	var arr *pmem.Array[int64]
	require.NoError(t, p.Update(func(*pool.Tx) error {
		var err error
		arr, err = pmem.Make[int64](p, 100)
		return err
	}))

	before := p.Stats()
	require.NoError(t, p.Update(func(*pool.Tx) error {
		v, err := arr.RangeStride(0, 100, 32)
		if err != nil {
			return err
		}
		for it := v.Begin(); it.Valid(); it.Next() {
			if err := it.Set(int64(it.Index())); err != nil {
				return err
			}
		}
		return nil
	}))
	after := p.Stats()

	assert.Equal(t, int64(4), after.Snapshots-before.Snapshots)
	assert.Equal(t, int64(800), after.LoggedBytes-before.LoggedBytes)
	for i, x := range arr.All() {
		assert.Equal(t, int64(i), x)
	}
}

func TestPoolArrayNoTransaction(t *testing.T) {
	p := createPool(t)

	var arr *pmem.Array[int32]
	require.NoError(t, p.Update(func(*pool.Tx) error {
		var err error
		arr, err = pmem.Make(p, 3, int32(1), 2, 3)
		return err
	}))

	assert.ErrorIs(t, arr.Set(0, 9), pmem.ErrNoActiveTransaction)
	assert.Equal(t, []int32{1, 2, 3}, arr.Values())
}
