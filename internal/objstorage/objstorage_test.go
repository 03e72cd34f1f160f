package objstorage

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ingot/internal/config"
)

func digestOf(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func testStorage(t *testing.T, storage ObjStorage) {
	t.Helper()

	data := []byte("hello, payload")
	key := digestOf(data)

	t.Run("contains before put", func(t *testing.T) {
		ok, err := storage.Contains(key)
		if err != nil {
			t.Fatalf("Contains failed: %v", err)
		}
		if ok {
			t.Error("expected key to be absent before Put")
		}
	})

	t.Run("put and get", func(t *testing.T) {
		if err := storage.Put(key, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		ok, err := storage.Contains(key)
		if err != nil {
			t.Fatalf("Contains failed: %v", err)
		}
		if !ok {
			t.Error("expected key to be present after Put")
		}

		var buf bytes.Buffer
		if err := storage.Get(key, &buf); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("Get returned %q, want %q", buf.Bytes(), data)
		}
	})

	t.Run("put is idempotent", func(t *testing.T) {
		if err := storage.Put(key, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("second Put failed: %v", err)
		}

		var buf bytes.Buffer
		if err := storage.Get(key, &buf); err != nil {
			t.Fatalf("Get after second Put failed: %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("Get returned %q, want %q", buf.Bytes(), data)
		}
	})

	t.Run("get missing key", func(t *testing.T) {
		var buf bytes.Buffer
		if err := storage.Get(digestOf([]byte("nothing")), &buf); err == nil {
			t.Error("expected error getting missing key")
		}
	})

	t.Run("check", func(t *testing.T) {
		if err := storage.Check(); err != nil {
			t.Errorf("Check failed: %v", err)
		}
	})
}

func TestMemoryStorage(t *testing.T) {
	testStorage(t, NewMemoryStorage())
}

func TestFileSystemStorage(t *testing.T) {
	root := t.TempDir()
	storage, err := NewFileSystemStorage(root)
	if err != nil {
		t.Fatalf("NewFileSystemStorage failed: %v", err)
	}
	testStorage(t, storage)

	t.Run("shards object paths", func(t *testing.T) {
		data := []byte("sharded")
		key := digestOf(data)
		if err := storage.Put(key, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		want := filepath.Join(root, key[0:2], key[2:4], key)
		if _, err := os.Stat(want); err != nil {
			t.Errorf("expected object at %s: %v", want, err)
		}
	})

	t.Run("put with wrong size fails", func(t *testing.T) {
		data := []byte("short")
		err := storage.Put(digestOf(data), bytes.NewReader(data), int64(len(data))+1)
		if err == nil {
			t.Error("expected size mismatch error")
		}
	})
}

func TestEncryptingStorage(t *testing.T) {
	keyDir := t.TempDir()
	pubPath := filepath.Join(keyDir, "test.pub")
	privPath := filepath.Join(keyDir, "test.key")

	inner := NewMemoryStorage()
	storage := NewEncryptingStorage(inner, pubPath, privPath)

	if storage.IsConfigured() {
		t.Error("expected IsConfigured to be false before Setup")
	}

	if err := storage.Setup("secret-passphrase"); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if !storage.IsConfigured() {
		t.Error("expected IsConfigured to be true after Setup")
	}

	data := []byte("confidential payload")
	key := digestOf(data)

	if err := storage.Put(key, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	t.Run("ciphertext at rest", func(t *testing.T) {
		var raw bytes.Buffer
		if err := inner.Get(key, &raw); err != nil {
			t.Fatalf("inner Get failed: %v", err)
		}
		if bytes.Contains(raw.Bytes(), data) {
			t.Error("stored payload contains plaintext")
		}
	})

	t.Run("get requires unlock", func(t *testing.T) {
		var buf bytes.Buffer
		err := storage.Get(key, &buf)
		if err == nil {
			t.Fatal("expected error getting from locked storage")
		}
		if !strings.Contains(err.Error(), "locked") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		if err := storage.Unlock("wrong"); err == nil {
			t.Error("expected Unlock with wrong passphrase to fail")
		}
	})

	t.Run("roundtrip after unlock", func(t *testing.T) {
		if err := storage.Unlock("secret-passphrase"); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}

		var buf bytes.Buffer
		if err := storage.Get(key, &buf); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("Get returned %q, want %q", buf.Bytes(), data)
		}
	})

	t.Run("put with wrong size fails", func(t *testing.T) {
		err := storage.Put(digestOf([]byte("x")), bytes.NewReader([]byte("x")), 5)
		if err == nil {
			t.Error("expected size mismatch error")
		}
	})
}

func TestNewStorageFromConfig(t *testing.T) {
	ctx := t.Context()

	t.Run("memory", func(t *testing.T) {
		storage, err := NewStorageFromConfig(ctx, config.ObjStorageConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewStorageFromConfig failed: %v", err)
		}
		if _, ok := storage.(*MemoryStorage); !ok {
			t.Errorf("expected *MemoryStorage, got %T", storage)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		storage, err := NewStorageFromConfig(ctx, config.ObjStorageConfig{
			Type: "filesystem",
			Root: t.TempDir(),
		})
		if err != nil {
			t.Fatalf("NewStorageFromConfig failed: %v", err)
		}
		if _, ok := storage.(*FileSystemStorage); !ok {
			t.Errorf("expected *FileSystemStorage, got %T", storage)
		}
	})

	t.Run("filesystem without root", func(t *testing.T) {
		if _, err := NewStorageFromConfig(ctx, config.ObjStorageConfig{Type: "filesystem"}); err == nil {
			t.Error("expected error for filesystem storage without root")
		}
	})

	t.Run("encryption wrap", func(t *testing.T) {
		keyDir := t.TempDir()
		storage, err := NewStorageFromConfig(ctx, config.ObjStorageConfig{
			Type: "memory",
			Encryption: config.EncryptionConfig{
				Enabled:        true,
				PublicKeyPath:  filepath.Join(keyDir, "a.pub"),
				PrivateKeyPath: filepath.Join(keyDir, "a.key"),
			},
		})
		if err != nil {
			t.Fatalf("NewStorageFromConfig failed: %v", err)
		}
		if _, ok := storage.(*EncryptingStorage); !ok {
			t.Errorf("expected *EncryptingStorage, got %T", storage)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewStorageFromConfig(ctx, config.ObjStorageConfig{Type: "carrier-pigeon"}); err == nil {
			t.Error("expected error for unknown storage type")
		}
	})
}
