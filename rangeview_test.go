package pmem

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pmem/testutil"
)

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}

func blockCalls(arr *Array[int64], start, length, stride int) []testutil.Call {
	var out []testutil.Call
	for b := 0; b*stride < length; b++ {
		n := min(stride, length-b*stride)
		out = append(out, testutil.Call{Off: arr.Offset() + (start+b*stride)*8, N: n * 8})
	}
	return out
}

// reverseBlockCalls lists the recorder calls of a reverse pass: blocks
// counted down from the high end, the short one last.
func reverseBlockCalls(arr *Array[int64], start, length, stride int) []testutil.Call {
	var out []testutil.Call
	for hi := start + length; hi > start; hi -= stride {
		lo := max(start, hi-stride)
		out = append(out, testutil.Call{Off: arr.Offset() + lo*8, N: (hi - lo) * 8})
	}
	return out
}

func TestReverseBlocksAlignToHighEnd(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(5)...)

	m.Begin()
	v, err := arr.RangeStride(0, 5, 2)
	require.NoError(t, err)
	for it := v.RBegin(); !it.Equal(v.REnd()); it.Next() {
		require.NoError(t, it.Set(-it.Get()))
	}
	m.Commit()

	assert.Equal(t, calls(arr, 3, 2, 1, 2, 0, 1), m.Calls())
	assert.Equal(t, []int64{0, -1, -2, -3, -4}, arr.Values())
}

func TestAmortizationCount(t *testing.T) {
	for _, size := range []int{1, 2, 5, 6, 16, 17, 100} {
		for _, stride := range []int{1, 2, 3, 4, 7, 16, 100, 1000} {
			for _, reverse := range []bool{false, true} {
				t.Run(fmt.Sprintf("S=%d/K=%d/reverse=%v", size, stride, reverse), func(t *testing.T) {
					m := testutil.NewMemory(1 << 12)
					arr := newInts(t, m, seq(size)...)

					m.Begin()
					v, err := arr.RangeStride(0, size, stride)
					require.NoError(t, err)

					it, end := v.Begin(), v.End()
					if reverse {
						it, end = v.RBegin(), v.REnd()
					}
					for ; !it.Equal(end); it.Next() {
						p, err := it.Ref()
						require.NoError(t, err)
						*p *= 2
					}
					m.Commit()

					k := min(stride, size)
					want := blockCalls(arr, 0, size, k)
					if reverse {
						want = reverseBlockCalls(arr, 0, size, k)
					}
					assert.Len(t, m.Calls(), (size+k-1)/k)
					if diff := cmp.Diff(want, m.Calls()); diff != "" {
						t.Errorf("recorder calls mismatch (-want +got):\n%s", diff)
					}
					for i, x := range arr.Values() {
						assert.Equal(t, int64(2*i), x)
					}
				})
			}
		}
	}
}

func TestAmortizationSubRange(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(20)...)

	m.Begin()
	v, err := arr.RangeStride(3, 10, 4)
	require.NoError(t, err)
	require.NoError(t, v.Each(func(i int, p *int64) error {
		*p = int64(-i)
		return nil
	}))
	m.Commit()

	assert.Equal(t, blockCalls(arr, 3, 10, 4), m.Calls())
	got := arr.Values()
	assert.Equal(t, seq(3), got[:3])
	assert.Equal(t, []int64{0, -1, -2, -3, -4, -5, -6, -7, -8, -9}, got[3:13])
	assert.Equal(t, seq(20)[13:], got[13:])
}

func TestRangeViewRandomAccess(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(12)...)
	rng := testutil.NewRNG(4711)

	m.Begin()
	v, err := arr.RangeStride(0, 12, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Blocks())

	for _, i := range append(rng.Perm(12), rng.Perm(12)...) {
		require.NoError(t, v.Set(i, int64(100+i)))
	}
	assert.Equal(t, 3, v.RecordedBlocks())
	assert.Len(t, m.Calls(), 3)
	assert.ElementsMatch(t, blockCalls(arr, 0, 12, 5), m.Calls())
	m.Commit()

	assert.Zero(t, v.RecordedBlocks())
	for i, x := range arr.Values() {
		assert.Equal(t, int64(100+i), x)
	}
}

func TestRangeViewEpochReset(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(6)...)
	v, err := arr.RangeStride(0, 6, 3)
	require.NoError(t, err)

	m.Begin()
	require.NoError(t, v.Set(0, 10))
	require.NoError(t, v.Set(1, 11))
	m.Commit()
	assert.Len(t, m.Calls(), 1)

	m.Begin()
	p, err := v.MutAt(2)
	require.NoError(t, err)
	*p = 12
	m.Abort()

	assert.Len(t, m.Calls(), 2)
	assert.Equal(t, []int64{10, 11, 2, 3, 4, 5}, arr.Values())
}

func TestIteratorEpochReset(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(4)...)
	it := arr.Begin()

	m.Begin()
	require.NoError(t, it.Set(7))
	require.NoError(t, it.Set(8))
	m.Commit()
	assert.Len(t, m.Calls(), 1)

	m.Begin()
	require.NoError(t, it.Set(9))
	m.Abort()

	assert.Len(t, m.Calls(), 2)
	assert.Equal(t, []int64{8, 1, 2, 3}, arr.Values())
}

func TestIteratorJumpStartsNewWindow(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(12)...)
	v, err := arr.RangeStride(0, 12, 3)
	require.NoError(t, err)

	m.Begin()
	it := v.Begin()
	require.NoError(t, it.Set(1))
	it.Advance(7)
	require.NoError(t, it.Set(1))
	it.Advance(-6)
	require.NoError(t, it.Set(1))
	it.Prev()
	require.NoError(t, it.Set(1))
	m.Commit()

	assert.Equal(t, []testutil.Call{
		{Off: arr.Offset(), N: 24},
		{Off: arr.Offset() + 6*8, N: 24},
		{Off: arr.Offset(), N: 24},
	}, m.Calls())
}

func TestRangeViewFillAndClamp(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(8)...)

	m.Begin()
	v, err := arr.RangeStride(2, 4, 99)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Stride())
	assert.Equal(t, 2, v.Start())

	require.NoError(t, v.Set(1, -1))
	require.NoError(t, v.Fill(5))
	m.Commit()

	assert.Equal(t, []testutil.Call{{Off: arr.Offset() + 16, N: 32}}, m.Calls())
	assert.Equal(t, []int64{0, 1, 5, 5, 5, 5, 6, 7}, arr.Values())
	assert.Equal(t, []int64{5, 5, 5, 5}, v.Values())
}

func TestRangeViewBounds(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, seq(8)...)
	v, err := arr.Range(2, 3)
	require.NoError(t, err)

	m.Begin()
	defer m.Commit()

	_, err = v.At(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = v.MutAt(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, v.Set(3, 0), ErrOutOfRange)
	assert.Panics(t, func() { v.Get(3) })
	assert.Panics(t, func() { _, _ = v.Ref(3) })

	x, err := v.At(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), x)
	assert.Equal(t, int64(4), v.Get(2))
	assert.Empty(t, m.Calls())
}

func TestConstPurity(t *testing.T) {
	m := testutil.NewMemory(1 << 14)
	for _, size := range []int{0, 1, 9, 300} {
		arr := newInts(t, m, seq(size)...)

		m.Begin()
		var fwd, bwd int64
		for it := arr.CBegin(); it.Valid(); it.Next() {
			fwd += it.Get()
		}
		for it := arr.CRBegin(); !it.Equal(arr.CREnd()); it.Next() {
			bwd += it.Get()
		}
		for it := arr.Begin(); it.Valid(); it.Next() {
			_ = it.Get()
		}
		for i := range size {
			_, _ = arr.At(i)
			_, _ = arr.ConstAt(i)
			_ = arr.Get(i)
		}
		_ = arr.Values()
		_ = arr.Bytes()
		v, err := arr.RangeStride(0, size, 4)
		require.NoError(t, err)
		for it := v.CBegin(); !it.Equal(v.CEnd()); it.Next() {
			_ = it.Get()
		}
		for it := v.CRBegin(); !it.Equal(v.CREnd()); it.Next() {
			_ = it.Get()
		}
		m.Commit()

		assert.Equal(t, fwd, bwd)
		assert.Empty(t, m.Calls(), "size=%d", size)
	}
}

func TestIteratorNavigation(t *testing.T) {
	m := testutil.NewMemory(1 << 12)
	arr := newInts(t, m, 10, 20, 30, 40)

	it := arr.Begin()
	assert.Equal(t, 4, it.Distance(arr.End()))
	it.Advance(2)
	assert.Equal(t, int64(30), it.Get())
	assert.Equal(t, 2, it.Index())

	c := it.Clone()
	c.Next()
	assert.Equal(t, int64(40), c.Get())
	assert.Equal(t, int64(30), it.Get())
	assert.False(t, it.Equal(c))

	r := arr.RBegin()
	assert.Equal(t, int64(40), r.Get())
	r.Next()
	assert.Equal(t, int64(30), r.Get())
	assert.Equal(t, 3, r.Distance(arr.REnd()))
	r.Prev()
	r.Prev()
	assert.False(t, r.Valid())
	assert.Panics(t, func() { r.Get() })
	_, err := r.Ref()
	assert.ErrorIs(t, err, ErrOutOfRange)

	cr := arr.CRBegin()
	cr.Advance(3)
	assert.Equal(t, int64(10), cr.Get())
	cr.Next()
	assert.True(t, cr.Equal(arr.CREnd()))
	assert.Equal(t, 4, arr.CBegin().Distance(arr.CEnd()))
	assert.Equal(t, 1, arr.Begin().Stride())
}
