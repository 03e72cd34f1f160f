package loader

import (
	"context"
	"fmt"
)

// DownloadSpec describes one artifact to fetch. Fallback URLs are tried in
// order after the primary URL fails; an artifact only counts as failed once
// every transport has been exhausted.
type DownloadSpec struct {
	URL       string
	Fallback  []string
	Filename  string
	Checksums map[string]string // algo -> expected hex digest; verified when non-empty
}

// Fetcher downloads artifact bytes. Implementations verify pinned checksums
// and distinguish transient transport failures from integrity failures so
// the orchestrator can classify artifact errors.
type Fetcher interface {
	// Download fetches the artifact into destDir and returns the local
	// path plus the checksums computed over the received bytes.
	Download(ctx context.Context, spec DownloadSpec, destDir string) (string, map[string]string, error)
}

// Extractor unpacks a downloaded artifact (tarball, zip) into a directory
// tree. Decompression mechanics live behind this boundary.
type Extractor interface {
	// Extract unpacks archivePath under destDir and returns the root of
	// the extracted tree.
	Extract(archivePath, destDir string) (string, error)
}

// TransientError marks a failure worth retrying through another transport
// (network timeout, 5xx response).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IntegrityError reports that a pinned checksum could not be satisfied:
// either the received bytes hash to something else, or the pinned algorithm
// is one the fetcher cannot compute (Got is empty then). Integrity failures
// are never retried.
type IntegrityError struct {
	URL  string
	Algo string
	Want string
	Got  string
}

func (e *IntegrityError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("cannot verify pinned %s checksum for %s", e.Algo, e.URL)
	}
	return fmt.Sprintf("checksum mismatch for %s: %s = %s, expected %s", e.URL, e.Algo, e.Got, e.Want)
}

// NotFoundError reports that an origin (or its metadata endpoint) is
// confirmed absent upstream, as opposed to temporarily unreachable.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("origin not found: %s", e.URL)
}
