// Package undolog implements the on-disk undo log of a pool transaction.
//
// A transaction appends one Begin record, then one Snapshot record per byte
// range it is about to overwrite (the record carries the range's pre-image),
// and finally a Commit record. A log that ends without the Commit of its
// transaction is rolled back on the next open by writing the pre-images back
// in reverse order.
//
// # File format
//
//	header:  [magic "PMEMUNDO" 8][version uint32]
//	record:  [crc32c uint32][type u8][codec u8][txID u64][off u64][len u32][payloadLen u32][payload]
//
// All integers are little endian. The checksum covers everything after the
// crc field. A record that fails its checksum or is cut short ends the scan:
// it was being written when the process died and its write to the pool never
// started.
package undolog
