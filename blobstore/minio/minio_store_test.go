package minio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pmem/backup"
	"github.com/hupe1980/pmem/blobstore"
	"github.com/hupe1980/pmem/pool"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newTestStore connects to MINIO_ENDPOINT (default localhost:9000) and skips
// the test when no server answers.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client, err := minio.New(envOr("MINIO_ENDPOINT", "localhost:9000"), &minio.Options{
		Creds: credentials.NewStaticV4(envOr("MINIO_ACCESS_KEY", "minioadmin"), envOr("MINIO_SECRET_KEY", "minioadmin"), ""),
	})
	if err != nil {
		t.Skipf("minio client: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("minio not available: %v", err)
	}

	const bucket = "test-pmem"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}
	return NewStore(client, bucket, filepath.Base(t.Name()))
}

func TestMinioStore_Integration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := []byte("undo log pre-image")
	require.NoError(t, store.Put(ctx, "blob", data))

	blob, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])

	rc, err := blob.ReadRange(ctx, 5, 3)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "log", string(part))
	require.NoError(t, rc.Close())
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "blob")

	require.NoError(t, store.Delete(ctx, "blob"))
	require.NoError(t, store.Delete(ctx, "blob"))
	_, err = store.Open(ctx, "blob")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	wb, err := store.Create(ctx, "aborted")
	require.NoError(t, err)
	_, _ = wb.Write([]byte("partial"))
	require.NoError(t, wb.Abort())
	_, err = store.Open(ctx, "aborted")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestMinioStore_BackupRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	p, err := pool.Create(filepath.Join(dir, "src.pool"), 64<<10)
	require.NoError(t, err)
	defer p.Close()

	info, err := backup.Export(ctx, p, store, "nightly.zst")
	require.NoError(t, err)
	defer func() { _ = store.Delete(ctx, "nightly.zst") }()

	dst := filepath.Join(dir, "dst.pool")
	rinfo, err := backup.Restore(ctx, store, "nightly.zst", dst)
	require.NoError(t, err)
	assert.Equal(t, info.PoolUUID, rinfo.PoolUUID)
	assert.Equal(t, info.StoredBytes, rinfo.StoredBytes)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}
