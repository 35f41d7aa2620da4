// Package backup copies committed pool images to a blobstore.Store and back.
//
// A backup is the whole pool file compressed with zstd. Export takes the
// image while no transaction is active, so the copy is always a committed
// state; Restore verifies the header before it atomically replaces the
// target file.
package backup
