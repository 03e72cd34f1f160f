package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"ingot/internal/config"
	"ingot/internal/loader"
	"ingot/internal/objstorage"
)

// NewArchiveFromConfig creates an Archive implementation based on the archive
// config type. Content payloads go to payloads for the sqlite backend; the
// memory backend keeps them inline.
func NewArchiveFromConfig(cfg config.ArchiveConfig, payloads objstorage.ObjStorage) (loader.Archive, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite archive")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating archive data directory: %w", err)
		}
		return NewSQLiteArchive(filepath.Join(cfg.DataDir, "archive.db"), payloads)
	case "memory":
		return NewMemoryArchive(), nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
