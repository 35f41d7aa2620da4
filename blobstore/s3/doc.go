// Package s3 stores pool backups in Amazon S3.
//
//	store, err := s3.New(ctx, "backups", s3.WithPrefix("pools/"), s3.WithRegion("eu-central-1"))
//	if err != nil {
//		return err
//	}
//	info, err := backup.Export(ctx, p, store, "nightly.zst")
//
// Reads use ranged GetObject calls. Create streams through the multipart
// uploader and Abort cancels the upload. NewStore accepts any Client, which is
// how the tests substitute a mock.
package s3
