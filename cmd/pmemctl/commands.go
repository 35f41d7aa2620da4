package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	flag "github.com/spf13/pflag"

	"github.com/hupe1980/pmem"
	"github.com/hupe1980/pmem/backup"
	"github.com/hupe1980/pmem/blobstore"
	pminio "github.com/hupe1980/pmem/blobstore/minio"
	"github.com/hupe1980/pmem/blobstore/s3"
	"github.com/hupe1980/pmem/pool"
)

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

func isUsage(err error) bool {
	var u *usageError
	return errors.As(err, &u)
}

// parseFlags parses args and checks the positional count. A negative nargs
// accepts any count.
func parseFlags(fs *flag.FlagSet, args []string, nargs int) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if nargs >= 0 && fs.NArg() != nargs {
		return usagef("expected %d arguments, got %d", nargs, fs.NArg())
	}
	return nil
}

func (c *cmdContext) openPool(path string) (*pool.Pool, error) {
	return pool.Open(path, c.cfg.PoolOptions(c.logger)...)
}

func cmdCreate(c *cmdContext, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	size := fs.Int("size", c.cfg.PoolSize, "Pool size in bytes")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}

	p, err := pool.Create(fs.Arg(0), *size, c.cfg.PoolOptions(c.logger)...)
	if err != nil {
		return err
	}
	fprintf(c.out, "created %s uuid=%s size=%d\n", p.Path(), p.UUID(), p.Size())
	return p.Close()
}

func cmdInfo(c *cmdContext, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}

	p, err := c.openPool(fs.Arg(0))
	if err != nil {
		return err
	}
	defer p.Close()

	root, rootLen := p.Root()
	st := p.Stats()
	fprintf(c.out, "path:     %s\n", p.Path())
	fprintf(c.out, "uuid:     %s\n", p.UUID())
	fprintf(c.out, "size:     %d\n", p.Size())
	fprintf(c.out, "used:     %d\n", p.Used())
	fprintf(c.out, "heap:     %d/%d\n", st.HeapUsed, st.HeapCapacity)
	fprintf(c.out, "root:     off=%d len=%d\n", root.Off(), rootLen)
	return nil
}

func cmdRecover(c *cmdContext, args []string) error {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}

	p, err := c.openPool(fs.Arg(0))
	if err != nil {
		return err
	}
	if p.Stats().RolledBack > 0 {
		fprintln(c.out, "rolled back interrupted transaction")
	} else {
		fprintln(c.out, "clean")
	}
	return p.Close()
}

func cmdDump(c *cmdContext, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	if err := parseFlags(fs, args, 4); err != nil {
		return err
	}
	off, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return usagef("bad offset %q", fs.Arg(1))
	}
	n, err := strconv.Atoi(fs.Arg(2))
	if err != nil {
		return usagef("bad count %q", fs.Arg(2))
	}

	p, err := c.openPool(fs.Arg(0))
	if err != nil {
		return err
	}
	defer p.Close()

	switch typ := fs.Arg(3); typ {
	case "bytes":
		b, err := p.Slice(off, n)
		if err != nil {
			return err
		}
		_, err = io.WriteString(c.out, hex.Dump(b))
		return err
	case "int8":
		return dump[int8](c.out, p, off, n)
	case "int16":
		return dump[int16](c.out, p, off, n)
	case "int32":
		return dump[int32](c.out, p, off, n)
	case "int64":
		return dump[int64](c.out, p, off, n)
	case "uint8":
		return dump[uint8](c.out, p, off, n)
	case "uint16":
		return dump[uint16](c.out, p, off, n)
	case "uint32":
		return dump[uint32](c.out, p, off, n)
	case "uint64":
		return dump[uint64](c.out, p, off, n)
	case "float32":
		return dump[float32](c.out, p, off, n)
	case "float64":
		return dump[float64](c.out, p, off, n)
	default:
		return usagef("unknown type %q", typ)
	}
}

func dump[T any](w io.Writer, p *pool.Pool, off, n int) error {
	arr, err := pmem.Open[T](p, off, n)
	if err != nil {
		return err
	}
	for i, v := range arr.All() {
		fprintf(w, "%d\t%v\n", off+i*arr.ElemSize(), v)
	}
	return nil
}

func (c *cmdContext) openStore() (blobstore.Store, error) {
	sc := c.cfg.Store
	switch sc.Kind {
	case "local":
		return blobstore.NewLocalStore(sc.Path), nil
	case "s3":
		var opts []s3.Option
		if sc.Prefix != "" {
			opts = append(opts, s3.WithPrefix(sc.Prefix))
		}
		if sc.Region != "" {
			opts = append(opts, s3.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(sc.Endpoint, true))
		}
		return s3.New(c.ctx, sc.Bucket, opts...)
	case "minio":
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(c.env["MINIO_ACCESS_KEY"], c.env["MINIO_SECRET_KEY"], ""),
			Secure: sc.Secure,
		})
		if err != nil {
			return nil, err
		}
		return pminio.NewStore(client, sc.Bucket, sc.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", sc.Kind)
	}
}

func cmdBackup(c *cmdContext, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	ioLimit := fs.Int64("io-limit", c.cfg.Store.IOLimit, "Upload limit in bytes per second (0 = unlimited)")
	if err := parseFlags(fs, args, 2); err != nil {
		return err
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	p, err := c.openPool(fs.Arg(0))
	if err != nil {
		return err
	}
	defer p.Close()

	info, err := backup.Export(c.ctx, p, store, fs.Arg(1),
		backup.WithIOLimit(*ioLimit),
		backup.WithLogger(c.logger),
	)
	if err != nil {
		return err
	}
	fprintf(c.out, "backup %s uuid=%s raw=%d stored=%d\n", info.Name, info.PoolUUID, info.RawBytes, info.StoredBytes)
	return nil
}

func cmdRestore(c *cmdContext, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	if err := parseFlags(fs, args, 2); err != nil {
		return err
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	info, err := backup.Restore(c.ctx, store, fs.Arg(0), fs.Arg(1), backup.WithLogger(c.logger))
	if err != nil {
		return err
	}
	fprintf(c.out, "restored %s uuid=%s size=%d\n", fs.Arg(1), info.PoolUUID, info.RawBytes)
	return nil
}

func cmdList(c *cmdContext, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := parseFlags(fs, args, -1); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return usagef("expected at most 1 argument, got %d", fs.NArg())
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	names, err := store.List(c.ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	for _, name := range names {
		fprintln(c.out, name)
	}
	return nil
}
