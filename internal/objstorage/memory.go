package objstorage

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MemoryStorage keeps all payloads in memory. Useful for tests and for the
// "memory" archive configuration. Safe for concurrent use.
type MemoryStorage struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

var _ ObjStorage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{payloads: map[string][]byte{}}
}

func (m *MemoryStorage) Put(key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch for %s: declared %d bytes, read %d", key, size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[key] = data
	return nil
}

func (m *MemoryStorage) Get(key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.payloads[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("payload not found: %s", key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}

func (m *MemoryStorage) Contains(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.payloads[key]
	return ok, nil
}

func (m *MemoryStorage) Check() error { return nil }
