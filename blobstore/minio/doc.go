// Package minio stores pool backups in MinIO or any other S3-compatible
// server reachable through minio-go.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//		Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	if err != nil {
//		return err
//	}
//	store := pminio.NewStore(client, "backups", "pools/")
//	info, err := backup.Export(ctx, p, store, "nightly.zst")
//
// Uploads stream through PutObject with unknown size, so images of any size
// are written without buffering them whole.
package minio
