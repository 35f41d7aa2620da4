package backup

import (
	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/pmem/blobstore"
)

func writeCompressed(w blobstore.WritableBlob, b []byte) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := enc.Write(b); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return w.Close()
}
