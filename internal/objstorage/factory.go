package objstorage

import (
	"context"
	"fmt"

	"ingot/internal/config"
)

// NewStorageFromConfig creates an ObjStorage implementation based on the
// objstorage config type, wrapping it with age encryption when enabled.
func NewStorageFromConfig(ctx context.Context, cfg config.ObjStorageConfig) (ObjStorage, error) {
	var storage ObjStorage
	switch cfg.Type {
	case "memory":
		storage = NewMemoryStorage()
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem objstorage requires root to be set")
		}
		fs, err := NewFileSystemStorage(cfg.Root)
		if err != nil {
			return nil, err
		}
		storage = fs
	case "s3":
		s3Storage, err := NewS3Storage(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		storage = s3Storage
	default:
		return nil, fmt.Errorf("unknown objstorage type: %s", cfg.Type)
	}

	if cfg.Encryption.Enabled {
		if cfg.Encryption.PublicKeyPath == "" || cfg.Encryption.PrivateKeyPath == "" {
			return nil, fmt.Errorf("encrypted objstorage requires key paths to be set")
		}
		storage = NewEncryptingStorage(storage, cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
	}

	return storage, nil
}
