// Package objstorage stores content payloads keyed by their primary digest,
// separately from the archive's relational metadata. Backends: filesystem,
// s3, memory, plus an age-encrypting wrapper for untrusted backends.
package objstorage

import "io"

// ObjStorage is the payload store behind the archive's content table.
// All operations stream through io.Reader/io.Writer to support large
// payloads without loading them entirely into memory.
type ObjStorage interface {
	// Put stores a payload under its digest. The operation is idempotent:
	// storing the same key multiple times is safe. size is the number of
	// bytes that will be read from r.
	Put(key string, r io.Reader, size int64) error

	// Get retrieves a payload by digest and writes it to w.
	Get(key string, w io.Writer) error

	// Contains reports whether a payload is stored under the digest.
	Contains(key string) (bool, error)

	// Check verifies that the storage is accessible and properly
	// configured.
	Check() error
}
