package testutil

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pmem/internal/mem"
)

var (
	// ErrNoTransaction is returned by Record and Alloc outside Begin/Commit.
	ErrNoTransaction = errors.New("testutil: no active transaction")

	// ErrOutOfBounds is returned for ranges outside the address space.
	ErrOutOfBounds = errors.New("testutil: range out of bounds")

	// ErrOutOfSpace is returned when Alloc cannot satisfy a request.
	ErrOutOfSpace = errors.New("testutil: out of space")

	// ErrInjected is the default error of FailAfter.
	ErrInjected = errors.New("testutil: injected failure")
)

// Call is one Record invocation.
type Call struct {
	Off int
	N   int
}

// Snapshot is a recorded range and the bytes it held when Record was called.
type Snapshot struct {
	Call
	Epoch    uint64
	PreImage []byte
}

// Memory is an in-memory address space that logs every Record call. It
// implements pmem.Allocator. Offset 0 is never handed out by Alloc.
type Memory struct {
	buf    []byte
	cursor int

	epoch uint64
	next  uint64

	calls []Snapshot
	undo  []Snapshot

	failAfter int
	failErr   error
}

// NewMemory returns an address space of size bytes aligned to a page.
func NewMemory(size int) *Memory {
	return &Memory{
		buf:       mem.AllocAlignedTo(size, 4096),
		cursor:    mem.Alignment,
		failAfter: -1,
	}
}

// Begin starts a transaction and returns its epoch.
func (m *Memory) Begin() uint64 {
	m.next++
	m.epoch = m.next
	m.undo = m.undo[:0]
	return m.epoch
}

// Commit ends the active transaction and keeps its writes.
func (m *Memory) Commit() {
	m.epoch = 0
	m.undo = m.undo[:0]
}

// Abort ends the active transaction and restores every recorded range in
// reverse order.
func (m *Memory) Abort() {
	for i := len(m.undo) - 1; i >= 0; i-- {
		s := m.undo[i]
		copy(m.buf[s.Off:s.Off+s.N], s.PreImage)
	}
	m.epoch = 0
	m.undo = m.undo[:0]
}

// FailAfter makes Record fail with err once n more calls succeeded. A nil
// err means ErrInjected; a negative n disables injection.
func (m *Memory) FailAfter(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.failAfter = n
	m.failErr = err
}

// Record implements pmem.Recorder.
func (m *Memory) Record(off, n int) error {
	if m.epoch == 0 {
		return ErrNoTransaction
	}
	if err := m.check(off, n); err != nil {
		return err
	}
	if m.failAfter == 0 {
		return m.failErr
	}
	if m.failAfter > 0 {
		m.failAfter--
	}

	pre := make([]byte, n)
	copy(pre, m.buf[off:off+n])
	s := Snapshot{Call: Call{Off: off, N: n}, Epoch: m.epoch, PreImage: pre}
	m.calls = append(m.calls, s)
	m.undo = append(m.undo, s)
	return nil
}

// Epoch implements pmem.Recorder.
func (m *Memory) Epoch() uint64 { return m.epoch }

// Slice implements pmem.Memory.
func (m *Memory) Slice(off, n int) ([]byte, error) {
	if err := m.check(off, n); err != nil {
		return nil, err
	}
	return m.buf[off : off+n : off+n], nil
}

// Alloc implements pmem.Allocator. Fresh ranges are zeroed and never
// reused.
func (m *Memory) Alloc(size, align int) (int, error) {
	if m.epoch == 0 {
		return 0, ErrNoTransaction
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: size %d", ErrOutOfBounds, size)
	}
	off := mem.AlignUp(m.cursor, max(align, 1))
	if off+size > len(m.buf) {
		return 0, fmt.Errorf("%w: %d bytes requested, %d free", ErrOutOfSpace, size, len(m.buf)-off)
	}
	clear(m.buf[off : off+size])
	m.cursor = off + size
	return off, nil
}

func (m *Memory) check(off, n int) error {
	if off < 0 || n < 0 || off > len(m.buf) || n > len(m.buf)-off {
		return fmt.Errorf("%w: [%d,%d) in [0,%d)", ErrOutOfBounds, off, off+n, len(m.buf))
	}
	return nil
}

// Calls returns every Record call since the last ResetCalls.
func (m *Memory) Calls() []Call {
	out := make([]Call, len(m.calls))
	for i, s := range m.calls {
		out[i] = s.Call
	}
	return out
}

// Snapshots returns every recorded range with its pre-image since the last
// ResetCalls.
func (m *Memory) Snapshots() []Snapshot {
	return append([]Snapshot(nil), m.calls...)
}

// ResetCalls clears the call log. The undo state of the active transaction
// is kept.
func (m *Memory) ResetCalls() { m.calls = m.calls[:0] }

// Bytes returns the whole address space.
func (m *Memory) Bytes() []byte { return m.buf }

// Size returns the size of the address space in bytes.
func (m *Memory) Size() int { return len(m.buf) }
