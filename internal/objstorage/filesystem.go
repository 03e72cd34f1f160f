package objstorage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStorage stores payloads as files under a sharded directory
// layout, two levels deep on the digest prefix to keep directories small:
//
//	<root>/ab/cd/abcd1234...
type FileSystemStorage struct {
	root string
}

var _ ObjStorage = (*FileSystemStorage)(nil)

// NewFileSystemStorage creates a filesystem storage rooted at the given path.
func NewFileSystemStorage(root string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &FileSystemStorage{root: root}, nil
}

func (s *FileSystemStorage) path(key string) (string, error) {
	if len(key) < 4 {
		return "", fmt.Errorf("digest too short: %q", key)
	}
	return filepath.Join(s.root, key[0:2], key[2:4], key), nil
}

func (s *FileSystemStorage) Put(key string, r io.Reader, size int64) error {
	destPath, err := s.path(key)
	if err != nil {
		return err
	}

	// Already stored: consume the reader and verify the declared size.
	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch for %s: declared %d bytes, read %d", key, size, written)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a partial
	// payload under a valid digest name.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+key+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing payload: %w", err)
	}
	if written != size {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch for %s: declared %d bytes, wrote %d", key, size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publishing payload: %w", err)
	}
	return nil
}

func (s *FileSystemStorage) Get(key string, w io.Writer) error {
	srcPath, err := s.path(key)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("payload not found: %s", key)
		}
		return fmt.Errorf("opening payload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	return nil
}

func (s *FileSystemStorage) Contains(key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FileSystemStorage) Check() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root inaccessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", s.root)
	}
	return nil
}
