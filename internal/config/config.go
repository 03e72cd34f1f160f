package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for ingot.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Archive    ArchiveConfig    `toml:"archive"`
	ObjStorage ObjStorageConfig `toml:"objstorage"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Fetcher    FetcherConfig    `toml:"fetcher"`
	Loader     LoaderConfig     `toml:"loader"`
}

// ArchiveConfig represents configuration for the metadata archive.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ObjStorageConfig represents configuration for the content payload store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ObjStorageConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// Encryption at rest; payloads are stored unencrypted when disabled.
	Encryption EncryptionConfig `toml:"encryption"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt payloads
// at rest.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// SchedulerConfig represents configuration for the follow-up task scheduler.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SchedulerConfig struct {
	Type string `toml:"type"` // "memory" or "redis"

	// Redis-specific fields (only used when Type == "redis")
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	RedisQueue    string `toml:"redis_queue,omitempty"`
}

// FetcherConfig holds settings for artifact downloads.
type FetcherConfig struct {
	MaxRetries     int `toml:"max_retries"`     // transient failures; defaults to 3
	RetryDelayMs   int `toml:"retry_delay_ms"`  // initial backoff; defaults to 500
	TimeoutSeconds int `toml:"timeout_seconds"` // per-request; defaults to 300
}

// LoaderConfig holds loader-wide settings.
type LoaderConfig struct {
	WorkDir string `toml:"work_dir"` // scratch space for downloads and extraction

	// Write buffering thresholds; zero values take the defaults.
	ContentThreshold   int   `toml:"content_threshold"`
	DirectoryThreshold int   `toml:"directory_threshold"`
	RevisionThreshold  int   `toml:"revision_threshold"`
	ReleaseThreshold   int   `toml:"release_threshold"`
	ContentBytes       int64 `toml:"content_bytes"`
}

// NewConfig creates a new Config rooted at baseDir with default backends and
// key paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Archive: ArchiveConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		ObjStorage: ObjStorageConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "objects"),
			Encryption: EncryptionConfig{
				PublicKeyPath:  filepath.Join(baseDir, "keys", "ingot.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "ingot.key"),
			},
		},
		Scheduler: SchedulerConfig{
			Type: "memory",
		},
		Loader: LoaderConfig{
			WorkDir: filepath.Join(baseDir, "work"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
