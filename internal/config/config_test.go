package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/ingot",
		LogDir:  "/home/user/.local/share/ingot/log",
		Archive: ArchiveConfig{Type: "sqlite", DataDir: "/home/user/.local/share/ingot/db"},
		ObjStorage: ObjStorageConfig{
			Type: "s3",
			S3Bucket: "ingot-objects",
			S3Prefix: "prod",
			S3Region: "eu-central-1",
			Encryption: EncryptionConfig{
				Enabled:        true,
				PublicKeyPath:  "/home/user/.local/share/ingot/keys/ingot.pub",
				PrivateKeyPath: "/home/user/.local/share/ingot/keys/ingot.key",
			},
		},
		Scheduler: SchedulerConfig{Type: "redis", RedisAddr: "localhost:6379", RedisQueue: "ingest"},
		Fetcher:   FetcherConfig{MaxRetries: 5, RetryDelayMs: 250},
		Loader:    LoaderConfig{WorkDir: "/tmp/ingot", ContentThreshold: 500},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Archive.Type != "sqlite" || got.Archive.DataDir != original.Archive.DataDir {
		t.Errorf("Archive = %+v, want %+v", got.Archive, original.Archive)
	}
	if got.ObjStorage.Type != "s3" || got.ObjStorage.S3Bucket != "ingot-objects" {
		t.Errorf("ObjStorage = %+v, want %+v", got.ObjStorage, original.ObjStorage)
	}
	if !got.ObjStorage.Encryption.Enabled {
		t.Error("ObjStorage.Encryption.Enabled = false, want true")
	}
	if got.ObjStorage.Encryption.PublicKeyPath != original.ObjStorage.Encryption.PublicKeyPath {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q",
			got.ObjStorage.Encryption.PublicKeyPath, original.ObjStorage.Encryption.PublicKeyPath)
	}
	if got.Scheduler.Type != "redis" || got.Scheduler.RedisAddr != "localhost:6379" {
		t.Errorf("Scheduler = %+v, want %+v", got.Scheduler, original.Scheduler)
	}
	if got.Fetcher.MaxRetries != 5 || got.Fetcher.RetryDelayMs != 250 {
		t.Errorf("Fetcher = %+v, want %+v", got.Fetcher, original.Fetcher)
	}
	if got.Loader.WorkDir != "/tmp/ingot" || got.Loader.ContentThreshold != 500 {
		t.Errorf("Loader = %+v, want %+v", got.Loader, original.Loader)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/ingot")

	if cfg.BaseDir != "/data/ingot" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/ingot")
	}
	if cfg.LogDir != "/data/ingot/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/ingot/log")
	}
	if cfg.Archive.Type != "sqlite" || cfg.Archive.DataDir != "/data/ingot/db" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.ObjStorage.Type != "filesystem" || cfg.ObjStorage.Root != "/data/ingot/objects" {
		t.Errorf("ObjStorage = %+v", cfg.ObjStorage)
	}
	if cfg.ObjStorage.Encryption.PublicKeyPath != "/data/ingot/keys/ingot.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.ObjStorage.Encryption.PublicKeyPath)
	}
	if cfg.ObjStorage.Encryption.PrivateKeyPath != "/data/ingot/keys/ingot.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q", cfg.ObjStorage.Encryption.PrivateKeyPath)
	}
	if cfg.Scheduler.Type != "memory" {
		t.Errorf("Scheduler.Type = %q, want memory", cfg.Scheduler.Type)
	}
	if cfg.Loader.WorkDir != "/data/ingot/work" {
		t.Errorf("Loader.WorkDir = %q", cfg.Loader.WorkDir)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ingot.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ingot.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ingot.toml")
		cfg := NewConfig(dir)
		cfg.Archive = ArchiveConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Archive.Type != "memory" {
			t.Errorf("Archive.Type = %q, want %q", got.Archive.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/ingot.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
