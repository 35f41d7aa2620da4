package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrUndoBudgetExceeded is returned when a snapshot would push the undo log
// of a transaction past its byte budget.
var ErrUndoBudgetExceeded = errors.New("undo budget exceeded")

// Config holds resource limits.
type Config struct {
	// UndoBudgetBytes caps the pre-image bytes a single transaction may log.
	// If 0, no limit is enforced (only tracking).
	UndoBudgetBytes int64

	// IOLimitBytesPerSec caps background copy throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller tracks undo bytes and throttles background I/O.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	undoSem  *semaphore.Weighted // nil if unlimited
	undoUsed atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.UndoBudgetBytes > 0 {
		c.undoSem = semaphore.NewWeighted(cfg.UndoBudgetBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireUndo reserves bytes of undo budget without blocking: a transaction
// cannot wait for its own commit to free budget.
func (c *Controller) AcquireUndo(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.undoSem != nil && !c.undoSem.TryAcquire(bytes) {
		return ErrUndoBudgetExceeded
	}

	c.undoUsed.Add(bytes)
	return nil
}

// ReleaseUndo returns bytes of undo budget, typically at commit or abort.
func (c *Controller) ReleaseUndo(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.undoSem != nil {
		c.undoSem.Release(bytes)
	}
	c.undoUsed.Add(-bytes)
}

// UndoUsage returns the undo bytes currently reserved.
func (c *Controller) UndoUsage() int64 {
	if c == nil {
		return 0
	}
	return c.undoUsed.Load()
}

// UndoBudget returns the configured budget in bytes (0 if unlimited).
func (c *Controller) UndoBudget() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.UndoBudgetBytes
}

// AcquireIO waits until the I/O limit allows the specified number of bytes.
// Requests larger than the limiter burst are split.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
