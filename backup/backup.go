package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/natefinch/atomic"

	"github.com/hupe1980/pmem/blobstore"
	"github.com/hupe1980/pmem/internal/resource"
	"github.com/hupe1980/pmem/pool"
)

// chunkSize is the unit in which images are fed to the encoder.
const chunkSize = 1 << 20

// ErrCorrupt is returned when a backup does not decode to a valid pool image.
var ErrCorrupt = errors.New("backup: corrupt image")

// Info describes a backup.
type Info struct {
	Name        string
	PoolUUID    uuid.UUID
	RawBytes    int64
	StoredBytes int64
	Duration    time.Duration
}

type options struct {
	ioLimit int64
	level   zstd.EncoderLevel
	logger  *pool.Logger
}

// Option configures Export and Restore.
type Option func(*options)

// WithIOLimit caps the bytes per second written to the store. Zero means
// unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) { o.ioLimit = bytesPerSec }
}

// WithLevel sets the zstd encoder level.
func WithLevel(level zstd.EncoderLevel) Option {
	return func(o *options) { o.level = level }
}

// WithLogger sets the logger.
func WithLogger(l *pool.Logger) Option {
	return func(o *options) { o.logger = l }
}

func applyOptions(optFns []Option) options {
	o := options{level: zstd.SpeedDefault, logger: pool.NoopLogger()}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Export writes the committed image of p to store under name. It fails with
// pool.ErrTxInProgress while a transaction is active. The pool stays locked
// for the duration of the copy.
func Export(ctx context.Context, p *pool.Pool, store blobstore.Store, name string, optFns ...Option) (Info, error) {
	o := applyOptions(optFns)
	start := time.Now()
	info := Info{Name: name}

	err := p.View(func(image []byte) error {
		id, err := pool.Verify(image)
		if err != nil {
			return err
		}
		info.PoolUUID = id
		info.RawBytes = int64(len(image))

		blob, err := store.Create(ctx, name)
		if err != nil {
			return fmt.Errorf("backup: create %q: %w", name, err)
		}

		cw := &countingWriter{w: blob}
		rc := resource.NewController(resource.Config{IOLimitBytesPerSec: o.ioLimit})
		enc, err := zstd.NewWriter(resource.NewRateLimitedWriter(ctx, cw, rc), zstd.WithEncoderLevel(o.level))
		if err != nil {
			_ = blob.Abort()
			return err
		}

		if err := writeChunks(ctx, enc, image); err != nil {
			_ = enc.Close()
			_ = blob.Abort()
			return err
		}
		if err := enc.Close(); err != nil {
			_ = blob.Abort()
			return err
		}
		if err := blob.Close(); err != nil {
			return fmt.Errorf("backup: close %q: %w", name, err)
		}
		info.StoredBytes = cw.n
		return nil
	})
	if err != nil {
		return Info{}, err
	}

	info.Duration = time.Since(start)
	o.logger.InfoContext(ctx, "pool exported",
		"name", name,
		"pool_uuid", info.PoolUUID.String(),
		"raw_bytes", info.RawBytes,
		"stored_bytes", info.StoredBytes,
		"duration_ms", info.Duration.Milliseconds(),
	)
	return info, nil
}

func writeChunks(ctx context.Context, w io.Writer, b []byte) error {
	for len(b) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(b), chunkSize)
		if _, err := w.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Restore reads backup name from store and atomically replaces the pool
// file at path with it. Any undo log next to path belongs to the image being
// replaced: it is moved aside during the write, removed once the new image
// is in place and put back if the write fails. The pool must not be open.
func Restore(ctx context.Context, store blobstore.Store, name, path string, optFns ...Option) (Info, error) {
	o := applyOptions(optFns)
	start := time.Now()

	blob, err := store.Open(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("backup: open %q: %w", name, err)
	}
	defer blob.Close()

	r, err := blobstore.NewReader(ctx, blob)
	if err != nil {
		return Info{}, err
	}
	defer r.Close()

	dec, err := zstd.NewReader(r)
	if err != nil {
		return Info{}, err
	}
	defer dec.Close()

	image, err := io.ReadAll(io.LimitReader(dec, pool.MaxSize+1))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(image) > pool.MaxSize {
		return Info{}, fmt.Errorf("%w: image exceeds %d bytes", ErrCorrupt, pool.MaxSize)
	}
	id, err := pool.Verify(image)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	undo := pool.UndoPath(path)
	aside := undo + ".old"
	moved := true
	if err := os.Rename(undo, aside); errors.Is(err, fs.ErrNotExist) {
		moved = false
	} else if err != nil {
		return Info{}, err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(image)); err != nil {
		if moved {
			err = errors.Join(err, os.Rename(aside, undo))
		}
		return Info{}, fmt.Errorf("backup: replace %s: %w", path, err)
	}
	if moved {
		if err := os.Remove(aside); err != nil {
			return Info{}, err
		}
	}

	info := Info{
		Name:        name,
		PoolUUID:    id,
		RawBytes:    int64(len(image)),
		StoredBytes: blob.Size(),
		Duration:    time.Since(start),
	}
	o.logger.InfoContext(ctx, "pool restored",
		"name", name,
		"path", path,
		"pool_uuid", id.String(),
		"raw_bytes", info.RawBytes,
	)
	return info, nil
}
