package pool

import (
	"fmt"

	"github.com/hupe1980/pmem/internal/fs"
	"github.com/hupe1980/pmem/internal/undolog"
)

// Durability controls when undo records reach stable storage.
type Durability = undolog.Durability

const (
	DurabilitySync  = undolog.DurabilitySync
	DurabilityAsync = undolog.DurabilityAsync
)

// Compression selects how pre-images are compressed in the undo log.
type Compression = undolog.CompressionType

const (
	CompressionNone = undolog.CompressionNone
	CompressionLZ4  = undolog.CompressionLZ4
	CompressionZSTD = undolog.CompressionZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(name string) (Compression, error) {
	return undolog.ParseCompression(name)
}

// ParseDurability parses "sync" or "async".
func ParseDurability(name string) (Durability, error) {
	switch name {
	case "", "sync":
		return DurabilitySync, nil
	case "async":
		return DurabilityAsync, nil
	default:
		return DurabilitySync, &ParseError{Kind: "durability", Value: name}
	}
}

// ParseError reports an unknown option value.
type ParseError struct {
	Kind  string
	Value string
}

func (e *ParseError) Error() string { return fmt.Sprintf("pool: unknown %s %q", e.Kind, e.Value) }

type options struct {
	logger      *Logger
	metrics     MetricsCollector
	durability  Durability
	compression Compression
	undoBudget  int64
	fsys        fs.FileSystem
}

func defaultOptions() options {
	return options{
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
		durability:  DurabilitySync,
		compression: CompressionNone,
		fsys:        fs.Default,
	}
}

// Option configures Create and Open.
type Option func(*options)

// WithLogger sets the logger. nil means NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector. nil disables metrics.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithDurability sets when undo records are fsynced.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithCompression sets the pre-image compression of the undo log.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithUndoBudget caps the pre-image bytes a single transaction may log.
// Zero (default) means unlimited.
func WithUndoBudget(bytes int64) Option {
	return func(o *options) {
		o.undoBudget = bytes
	}
}

// WithFileSystem sets the file system used to create the pool file and to
// read and write its undo log. The pool itself is always mapped from the
// local file system.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fsys = fsys
	}
}
