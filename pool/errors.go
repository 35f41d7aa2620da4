package pool

import "errors"

var (
	// ErrClosed is returned by operations on a closed pool.
	ErrClosed = errors.New("pool: closed")

	// ErrTxInProgress is returned by Begin while another transaction is
	// active, and by operations that need a quiescent pool.
	ErrTxInProgress = errors.New("pool: transaction in progress")

	// ErrTxDone is returned by operations on a committed or aborted
	// transaction.
	ErrTxDone = errors.New("pool: transaction already finished")

	// ErrNoTransaction is returned by Record, Alloc and SetRoot outside a
	// transaction.
	ErrNoTransaction = errors.New("pool: no active transaction")

	// ErrOutOfSpace is returned when the heap cannot satisfy an allocation.
	ErrOutOfSpace = errors.New("pool: out of space")

	// ErrBadRange is returned for byte ranges outside the heap.
	ErrBadRange = errors.New("pool: range outside heap")

	// ErrInvalidSize is returned by Create for sizes outside [MinSize, MaxSize].
	ErrInvalidSize = errors.New("pool: invalid size")

	// ErrInvalidHeader is returned by Open for files that are not pools or
	// whose header fails its checksum.
	ErrInvalidHeader = errors.New("pool: invalid header")

	// ErrUndoBudget is returned when a snapshot would push the transaction
	// past its undo budget. The transaction must be aborted.
	ErrUndoBudget = errors.New("pool: undo budget exceeded")

	// ErrTxFailed is returned by Commit when an earlier snapshot of the
	// transaction failed. The transaction has been aborted.
	ErrTxFailed = errors.New("pool: transaction failed")
)
