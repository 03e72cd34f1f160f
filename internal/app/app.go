package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"ingot/internal/archive"
	"ingot/internal/config"
	"ingot/internal/fetcher"
	"ingot/internal/loader"
	"ingot/internal/model"
	"ingot/internal/objstorage"
	"ingot/internal/scheduler"
)

// App is the application layer between the CLI and the ingestion pipeline.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw strings, and manages resource lifecycles on Close.
type App struct {
	cfg       *config.Config
	payloads  objstorage.ObjStorage
	encrypted *objstorage.EncryptingStorage // nil when encryption is disabled
	archive   loader.Archive
	scheduler loader.Scheduler
	fetcher   loader.Fetcher
	extractor loader.Extractor
	logger    loader.Logger
	logFile   io.Closer
}

// NewApp creates a fully wired App from the given config. The caller must
// call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	payloads, err := objstorage.NewStorageFromConfig(ctx, cfg.ObjStorage)
	if err != nil {
		return nil, fmt.Errorf("creating payload storage: %w", err)
	}
	// Retain the wrapper handle so Unlock and Setup can reach it.
	encrypted, _ := payloads.(*objstorage.EncryptingStorage)

	arch, err := archive.NewArchiveFromConfig(cfg.Archive, payloads)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	if sa, ok := arch.(*archive.SQLiteArchive); ok {
		if err := sa.CheckMigrations(); err != nil {
			arch.Close()
			return nil, fmt.Errorf("archive schema out of date: %w", err)
		}
	}

	sched, err := scheduler.NewSchedulerFromConfig(ctx, cfg.Scheduler)
	if err != nil {
		arch.Close()
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		arch.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &App{
		cfg:       cfg,
		payloads:  payloads,
		encrypted: encrypted,
		archive:   arch,
		scheduler: sched,
		fetcher:   fetcher.NewFetcherFromConfig(cfg.Fetcher),
		extractor: fetcher.NewArchiveExtractor(),
		logger:    &slogAdapter{l: slogger},
		logFile:   logFile,
	}, nil
}

// LoadOptions tunes a single Load call.
type LoadOptions struct {
	// VisitType tags the origin visit; defaults to "tar".
	VisitType string
	// VisitDate overrides the visit timestamp; zero means now.
	VisitDate time.Time
	// AppendBranches carries branches of the previous snapshot forward
	// instead of replacing them.
	AppendBranches bool
	// CheckSnapshot verifies the published snapshot's closure before the
	// terminal visit status is recorded.
	CheckSnapshot bool
}

// Load performs one visit of the origin, ingesting the declared artifacts.
func (a *App) Load(ctx context.Context, origin string, artifacts []loader.Artifact, opts LoadOptions) (*loader.LoadResult, error) {
	visitType := opts.VisitType
	if visitType == "" {
		visitType = "tar"
	}

	var clock loader.Clock = loader.RealClock{}
	if !opts.VisitDate.IsZero() {
		clock = loader.FixedClock{Time: opts.VisitDate.UTC()}
	}

	workDir := a.cfg.Loader.WorkDir
	store := loader.NewBufferingStore(loader.NewFilteringStore(a.archive), a.thresholds())
	source := loader.NewTarballSource(origin, artifacts)

	l := loader.NewLoader(origin, source, a.archive, store,
		a.fetcher, a.extractor, a.scheduler,
		a.logger, clock, loader.UUIDGenerator{}, loader.Config{
			VisitType:      visitType,
			AppendBranches: opts.AppendBranches,
			CheckSnapshot:  opts.CheckSnapshot,
			WorkDir:        workDir,
		})

	return l.Load(ctx)
}

// thresholds maps the config's buffering knobs over the defaults.
func (a *App) thresholds() loader.Thresholds {
	th := loader.DefaultThresholds()
	lc := a.cfg.Loader
	if lc.ContentThreshold > 0 {
		th.Content = lc.ContentThreshold
	}
	if lc.DirectoryThreshold > 0 {
		th.Directory = lc.DirectoryThreshold
	}
	if lc.RevisionThreshold > 0 {
		th.Revision = lc.RevisionThreshold
	}
	if lc.ReleaseThreshold > 0 {
		th.Release = lc.ReleaseThreshold
	}
	if lc.ContentBytes > 0 {
		th.ContentBytes = lc.ContentBytes
	}
	return th
}

// CheckSnapshot verifies the full closure of a stored snapshot.
func (a *App) CheckSnapshot(id string) error {
	snap, err := a.archive.SnapshotGet(model.ID(id))
	if err != nil {
		return fmt.Errorf("fetching snapshot: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("snapshot %s not found", id)
	}
	return loader.CheckSnapshot(a.archive, snap, nil)
}

// Visits returns the full visit status history of an origin, oldest first.
func (a *App) Visits(origin string) ([]*model.OriginVisitStatus, error) {
	return a.archive.OriginVisitStatuses(origin)
}

// ContentCat writes the payload of a content object to w.
func (a *App) ContentCat(id string, w io.Writer) error {
	c, err := a.archive.ContentGet(model.ID(id))
	if err != nil {
		return fmt.Errorf("fetching content: %w", err)
	}
	if c == nil {
		return fmt.Errorf("content %s not found", id)
	}
	if _, err := w.Write(c.Data); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	return nil
}

// EncryptionEnabled reports whether payloads are encrypted at rest.
func (a *App) EncryptionEnabled() bool {
	return a.encrypted != nil
}

// EncryptionConfigured reports whether the age key pair exists on disk.
func (a *App) EncryptionConfigured() bool {
	return a.encrypted != nil && a.encrypted.IsConfigured()
}

// SetupEncryption generates the age key pair protected by passphrase.
func (a *App) SetupEncryption(passphrase string) error {
	if a.encrypted == nil {
		return fmt.Errorf("payload encryption is not enabled in the config")
	}
	return a.encrypted.Setup(passphrase)
}

// UnlockPayloads decrypts the age identity so encrypted payloads can be
// read. Writes never need unlocking.
func (a *App) UnlockPayloads(passphrase string) error {
	if a.encrypted == nil {
		return fmt.Errorf("payload encryption is not enabled in the config")
	}
	return a.encrypted.Unlock(passphrase)
}

// Close releases the archive, scheduler and log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.archive.Close(); err != nil {
		firstErr = fmt.Errorf("closing archive: %w", err)
	}

	if c, ok := a.scheduler.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing scheduler: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
