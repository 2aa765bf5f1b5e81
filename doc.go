// Package kvfs provides an embeddable file system stored in a key-value
// backend. Every file, directory and symlink is one record keyed by a
// random ID; directories link names to IDs, so a rename rewrites two
// directory records and nothing else.
//
// A Storage keeps a complete mirror of the backend in memory. Reads are
// answered from the mirror and never wait on the backend. Writes update the
// mirror first and then reach the backend through a queue that preserves
// issue order per ID. FS returns as soon as the mirror is updated, while
// AsyncFS waits for the backend and adds Rename.
//
// Backends for bbolt, Badger, Redis, S3 and a plain directory live under
// backend/.
package kvfs
