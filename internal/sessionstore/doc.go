// Package sessionstore keeps the local resume index for resumable uploads.
//
// Records map an upload fingerprint to the server-side upload URL plus the
// bucket, object, and size it was created for, so an interrupted transfer can
// be found again after a restart. The server's reported offset stays
// authoritative; the stored offset is informational. Lock serializes transfers
// of the same fingerprint across processes with a flock file.
package sessionstore
