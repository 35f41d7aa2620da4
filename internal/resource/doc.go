// Package resource bounds what a pool may consume: bytes held by the undo log
// of the active transaction, and I/O bandwidth of background copies such as
// backups.
package resource
