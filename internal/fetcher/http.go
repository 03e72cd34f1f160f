// Package fetcher downloads and unpacks origin artifacts.
package fetcher

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"ingot/internal/loader"
)

// HTTPFetcher downloads artifacts over HTTP(S). Transient failures (network
// errors, 5xx responses) are retried with exponential backoff; when the
// primary URL is exhausted the fallback URLs are tried in order. Pinned
// checksums are verified against the received bytes and a mismatch is
// reported as an IntegrityError without retrying the same URL.
type HTTPFetcher struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

var _ loader.Fetcher = (*HTTPFetcher)(nil)

// Options configures an HTTPFetcher. Zero values take defaults: 3 retries,
// 500ms initial delay, 5 minute request timeout.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &HTTPFetcher{
		client:     &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

func (f *HTTPFetcher) Download(ctx context.Context, spec loader.DownloadSpec, destDir string) (string, map[string]string, error) {
	filename := spec.Filename
	if filename == "" {
		filename = filenameFromURL(spec.URL)
	}
	destPath := filepath.Join(destDir, filename)

	urls := append([]string{spec.URL}, spec.Fallback...)

	var lastErr error
	for _, u := range urls {
		checksums, err := f.downloadOne(ctx, u, destPath, spec.Checksums)
		if err == nil {
			return destPath, checksums, nil
		}
		lastErr = err

		// Integrity and not-found failures are definitive for the
		// whole artifact, not just this transport.
		var integrityErr *loader.IntegrityError
		if errors.As(err, &integrityErr) {
			return "", nil, err
		}
		var notFound *loader.NotFoundError
		if errors.As(err, &notFound) && len(urls) == 1 {
			return "", nil, err
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
	}
	return "", nil, fmt.Errorf("all download URLs exhausted for %s: %w", spec.URL, lastErr)
}

// downloadOne fetches a single URL with retries on transient failures.
func (f *HTTPFetcher) downloadOne(ctx context.Context, u, destPath string, pinned map[string]string) (map[string]string, error) {
	var checksums map[string]string
	err := retry(ctx, f.maxRetries, f.retryDelay, func() error {
		sums, err := f.fetch(ctx, u, destPath, pinned)
		if err != nil {
			return err
		}
		checksums = sums
		return nil
	})
	if err != nil {
		return nil, err
	}
	return checksums, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, u, destPath string, pinned map[string]string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", u, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &loader.TransientError{Err: fmt.Errorf("fetching %s: %w", u, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &loader.NotFoundError{URL: u}
	case resp.StatusCode >= 500:
		return nil, &loader.TransientError{Err: fmt.Errorf("fetching %s: status %s", u, resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: status %s", u, resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer out.Close()

	// Checksums are computed while streaming so large artifacts are never
	// read twice.
	hashers := map[string]hash.Hash{
		"sha1":   sha1.New(),
		"sha256": sha256.New(),
	}
	writers := []io.Writer{out}
	for _, h := range hashers {
		writers = append(writers, h)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), resp.Body); err != nil {
		os.Remove(destPath)
		return nil, &loader.TransientError{Err: fmt.Errorf("reading %s: %w", u, err)}
	}

	computed := make(map[string]string, len(hashers))
	for algo, h := range hashers {
		computed[algo] = hex.EncodeToString(h.Sum(nil))
	}

	for algo, want := range pinned {
		got, ok := computed[algo]
		if !ok {
			// A pin that cannot be checked must not pass as verified.
			os.Remove(destPath)
			return nil, &loader.IntegrityError{URL: u, Algo: algo, Want: want}
		}
		if got != want {
			os.Remove(destPath)
			return nil, &loader.IntegrityError{URL: u, Algo: algo, Want: want, Got: got}
		}
	}

	return computed, nil
}

func filenameFromURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || path.Base(parsed.Path) == "/" || path.Base(parsed.Path) == "." {
		return "artifact"
	}
	return path.Base(parsed.Path)
}

// retry executes fn up to attempts times with exponential backoff. Only
// TransientError triggers a retry; other errors return immediately.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !isTransient(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	return errors.As(err, new(*loader.TransientError))
}
