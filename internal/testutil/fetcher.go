package testutil

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ingot/internal/loader"
)

// FakeFetcher serves artifact payloads from memory. Payloads are registered
// per URL; URLs without a payload report NotFoundError, and errors can be
// injected to simulate transport failures. Download counts are recorded so
// tests can assert that unchanged artifacts are not re-downloaded.
type FakeFetcher struct {
	mu        sync.Mutex
	payloads  map[string][]byte
	errs      map[string]error
	downloads map[string]int
}

var _ loader.Fetcher = (*FakeFetcher)(nil)

func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		payloads:  make(map[string][]byte),
		errs:      make(map[string]error),
		downloads: make(map[string]int),
	}
}

// Add registers the payload served for url.
func (f *FakeFetcher) Add(url string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[url] = payload
}

// Fail injects an error returned for url instead of a payload.
func (f *FakeFetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// DownloadCount returns how many times url was successfully downloaded.
func (f *FakeFetcher) DownloadCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[url]
}

// TotalDownloads returns the number of successful downloads across all URLs.
func (f *FakeFetcher) TotalDownloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.downloads {
		n += c
	}
	return n
}

func (f *FakeFetcher) Download(ctx context.Context, spec loader.DownloadSpec, destDir string) (string, map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	filename := spec.Filename
	if filename == "" {
		filename = "artifact"
	}
	destPath := filepath.Join(destDir, filename)

	urls := append([]string{spec.URL}, spec.Fallback...)
	var lastErr error
	for _, u := range urls {
		if err, ok := f.errs[u]; ok {
			lastErr = err
			continue
		}
		payload, ok := f.payloads[u]
		if !ok {
			lastErr = &loader.NotFoundError{URL: u}
			continue
		}

		sha1Sum := sha1.Sum(payload)
		sha256Sum := sha256.Sum256(payload)
		checksums := map[string]string{
			"sha1":   hex.EncodeToString(sha1Sum[:]),
			"sha256": hex.EncodeToString(sha256Sum[:]),
		}
		for algo, want := range spec.Checksums {
			got, ok := checksums[algo]
			if !ok {
				return "", nil, &loader.IntegrityError{URL: u, Algo: algo, Want: want}
			}
			if got != want {
				return "", nil, &loader.IntegrityError{URL: u, Algo: algo, Want: want, Got: got}
			}
		}

		if err := os.WriteFile(destPath, payload, 0644); err != nil {
			return "", nil, err
		}
		f.downloads[u]++
		return destPath, checksums, nil
	}

	if lastErr == nil {
		lastErr = &loader.NotFoundError{URL: spec.URL}
	}
	var notFound *loader.NotFoundError
	if errors.As(lastErr, &notFound) {
		return "", nil, lastErr
	}
	return "", nil, fmt.Errorf("all download URLs exhausted for %s: %w", spec.URL, lastErr)
}

// FakeExtractor materializes a directory tree from a line-based manifest
// payload instead of unpacking a real archive. Each non-empty line is one
// entry (contents must not contain newlines):
//
//	file <path> <content>
//	exec <path> <content>
//	link <path> <target>
//
// The two-character sequence `\n` in content stands for a newline. Use
// TreePayload to build manifests.
type FakeExtractor struct{}

var _ loader.Extractor = (*FakeExtractor)(nil)

func NewFakeExtractor() *FakeExtractor {
	return &FakeExtractor{}
}

func (e *FakeExtractor) Extract(archivePath, destDir string) (string, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			return "", fmt.Errorf("malformed tree manifest line: %q", line)
		}
		kind, rel := parts[0], parts[1]
		rest := ""
		if len(parts) == 3 {
			rest = strings.ReplaceAll(parts[2], `\n`, "\n")
		}

		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return "", err
		}

		switch kind {
		case "file":
			err = os.WriteFile(target, []byte(rest), 0644)
		case "exec":
			err = os.WriteFile(target, []byte(rest), 0755)
		case "link":
			err = os.Symlink(rest, target)
		default:
			err = fmt.Errorf("unknown tree manifest entry kind: %q", kind)
		}
		if err != nil {
			return "", err
		}
	}
	return destDir, nil
}

// TreePayload renders a FakeExtractor manifest with one "file" entry per
// path. Entry order is irrelevant: the resulting tree hash depends only on
// the materialized files.
func TreePayload(files map[string]string) []byte {
	var sb strings.Builder
	for path, content := range files {
		fmt.Fprintf(&sb, "file %s %s\n", path, content)
	}
	return []byte(sb.String())
}
