package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNGDeterministic(t *testing.T) {
	a := NewRNG(4711)
	b := NewRNG(4711)

	assert.Equal(t, a.Int64s(16), b.Int64s(16))
	assert.Equal(t, a.Perm(10), b.Perm(10))

	a.Reset()
	assert.Equal(t, NewRNG(4711).Intn(1000), a.Intn(1000))
	assert.Equal(t, int64(4711), a.Seed())
}

func TestMemoryRecordCapturesPreImage(t *testing.T) {
	m := NewMemory(4096)
	m.Begin()

	off, err := m.Alloc(16, 8)
	require.NoError(t, err)

	b, err := m.Slice(off, 16)
	require.NoError(t, err)
	b[0] = 7

	require.NoError(t, m.Record(off, 4))
	b[0] = 9

	snaps := m.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, Call{Off: off, N: 4}, snaps[0].Call)
	assert.Equal(t, []byte{7, 0, 0, 0}, snaps[0].PreImage)

	m.Abort()
	assert.Equal(t, byte(7), b[0])
	assert.Zero(t, m.Epoch())
}

func TestMemoryCommitKeepsWrites(t *testing.T) {
	m := NewMemory(4096)
	e1 := m.Begin()
	off, err := m.Alloc(8, 8)
	require.NoError(t, err)
	require.NoError(t, m.Record(off, 8))
	b, _ := m.Slice(off, 8)
	b[3] = 1
	m.Commit()

	assert.Equal(t, byte(1), b[3])
	e2 := m.Begin()
	assert.NotEqual(t, e1, e2)
}

func TestMemoryErrors(t *testing.T) {
	m := NewMemory(256)

	assert.ErrorIs(t, m.Record(0, 1), ErrNoTransaction)
	_, err := m.Alloc(8, 8)
	assert.ErrorIs(t, err, ErrNoTransaction)

	m.Begin()
	assert.ErrorIs(t, m.Record(250, 10), ErrOutOfBounds)
	_, err = m.Slice(-1, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = m.Alloc(1024, 8)
	assert.ErrorIs(t, err, ErrOutOfSpace)

	m.FailAfter(1, nil)
	require.NoError(t, m.Record(64, 1))
	assert.ErrorIs(t, m.Record(64, 1), ErrInjected)
	assert.Len(t, m.Calls(), 1)

	m.ResetCalls()
	assert.Empty(t, m.Calls())
}
