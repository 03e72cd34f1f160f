// Package loader implements the per-origin ingestion pipeline: fetch,
// convert, deduplicate, persist, snapshot and classify. It depends on its
// collaborators (archive, fetcher, extractor, scheduler) only through
// interfaces; the write path is stacked as loader → BufferingStore →
// FilteringStore → archive.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ingot/internal/model"
)

// Load statuses of a completed visit, as reported to the caller.
const (
	StatusFailed     = "failed"
	StatusUneventful = "uneventful"
	StatusEventful   = "eventful"
)

// versionBranchPrefix namespaces the branch created for each ingested
// version.
const versionBranchPrefix = "releases/"

// Config tunes one loader instance.
type Config struct {
	// VisitType tags the origin visit (e.g. "tar").
	VisitType string
	// AppendBranches starts the new snapshot from the origin's last known
	// snapshot instead of an empty branch mapping.
	AppendBranches bool
	// CheckSnapshot runs the consistency checker on the published
	// snapshot before the terminal visit status is recorded.
	CheckSnapshot bool
	// WorkDir is the scratch space for downloads and extraction.
	WorkDir string
}

// LoadResult is the visit's outcome record.
type LoadResult struct {
	Status      string // failed, uneventful or eventful
	VisitStatus model.VisitStatus
	SnapshotID  *model.ID
	Written     WriteSummary
}

// Loader drives one origin through the visit state machine. A Loader is used
// by a single worker; per-visit state is reset at the start of each Load.
type Loader struct {
	origin    string
	source    Source
	archive   Archive
	store     ObjectStore
	fetcher   Fetcher
	extractor Extractor
	scheduler Scheduler
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	cfg       Config

	// Per-visit memoization of package metadata; never shared across
	// origins or visits.
	infoCache     map[string][]*PackageInfo
	written       WriteSummary
	pendingExtIDs []model.ExtID
}

// NewLoader creates a Loader with the provided dependencies.
func NewLoader(origin string, source Source, archive Archive, store ObjectStore,
	fetcher Fetcher, extractor Extractor, scheduler Scheduler,
	logger Logger, clock Clock, idgen IDGenerator, cfg Config) *Loader {
	return &Loader{
		origin:    origin,
		source:    source,
		archive:   archive,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		scheduler: scheduler,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		cfg:       cfg,
	}
}

// Load performs exactly one visit of the origin: it records the visit as
// ongoing, ingests each configured version's artifacts (reusing previously
// ingested revisions recognized via extids), flushes the write proxies,
// publishes the snapshot and records the terminal visit status.
//
// Artifact-level failures demote the visit to partial but never abort it.
// Cancellation still flushes already-buffered objects before the visit is
// reported as partial (or failed, when nothing could be published).
func (l *Loader) Load(ctx context.Context) (*LoadResult, error) {
	l.infoCache = map[string][]*PackageInfo{}
	l.written = WriteSummary{}
	l.pendingExtIDs = nil

	visitDate := l.clock.Now()

	if err := l.archive.OriginAdd(l.origin); err != nil {
		return l.fail(nil, fmt.Errorf("registering origin: %w", err))
	}

	visit, err := l.archive.OriginVisitAdd(&model.OriginVisit{
		Origin: l.origin,
		Type:   l.cfg.VisitType,
		Date:   visitDate,
	})
	if err != nil {
		return l.fail(nil, fmt.Errorf("recording visit: %w", err))
	}

	if err := l.recordStatus(visit, model.VisitOngoing, nil); err != nil {
		return l.fail(visit, fmt.Errorf("recording ongoing status: %w", err))
	}

	versions, err := l.source.Versions(ctx)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			if serr := l.recordStatus(visit, model.VisitNotFound, nil); serr != nil {
				return l.fail(visit, fmt.Errorf("recording not_found status: %w", serr))
			}
			l.logger.Info("origin not found", "origin", l.origin)
			return &LoadResult{Status: StatusUneventful, VisitStatus: model.VisitNotFound, Written: l.written}, nil
		}
		return l.fail(visit, fmt.Errorf("enumerating versions: %w", err))
	}

	prevSnapshot, err := l.previousSnapshot()
	if err != nil {
		return l.fail(visit, err)
	}

	resolved := map[string]model.Branch{}
	anyFailure := false

	for _, version := range versions {
		if ctx.Err() != nil {
			break
		}
		infos, err := l.packageInfo(version)
		if err != nil {
			l.logger.Error("resolving version artifacts", "version", version, "err", err)
			anyFailure = true
			continue
		}
		for _, info := range infos {
			if ctx.Err() != nil {
				break
			}
			target, targetType, err := l.loadArtifact(ctx, info, visitDate)
			if err != nil {
				// Artifact-level failure: demote, never abort.
				l.logger.Error("artifact failed", "version", version, "url", info.Download.URL, "err", err)
				anyFailure = true
				continue
			}
			resolved[versionBranchPrefix+version] = model.Branch{
				Type:   targetType,
				Target: string(target),
			}
		}
	}
	cancelled := ctx.Err() != nil

	// Best-effort flush even when cancelled: buffered objects are real,
	// reusable work.
	flushSummary, flushErr := l.store.Flush()
	l.written.Merge(flushSummary)
	if flushErr != nil {
		return l.fail(visit, fmt.Errorf("flushing buffered objects: %w", flushErr))
	}

	// Extids are only recorded once their revisions are flushed, so a
	// later visit never resolves an extid to an unpersisted revision.
	for _, e := range l.pendingExtIDs {
		if err := l.archive.ExtIDAdd(e.Manifest, e.Revision); err != nil {
			return l.fail(visit, fmt.Errorf("recording extid: %w", err))
		}
	}

	branches := MergeBranches(resolved, prevSnapshot, l.cfg.AppendBranches)
	if dv := l.source.DefaultVersion(branchVersions(branches)); dv != "" {
		SetDefaultAlias(branches, versionBranchPrefix+dv)
	}

	snap, err := model.NewSnapshot(branches)
	if err != nil {
		return l.fail(visit, fmt.Errorf("building snapshot: %w", err))
	}
	// Re-adding an identical snapshot is a no-op success in the archive.
	if _, err := l.archive.SnapshotAdd(snap); err != nil {
		return l.fail(visit, fmt.Errorf("storing snapshot: %w", err))
	}

	if l.cfg.CheckSnapshot {
		if err := CheckSnapshot(l.archive, snap, nil); err != nil {
			return l.fail(visit, fmt.Errorf("snapshot consistency check: %w", err))
		}
	}

	visitStatus := model.VisitFull
	if anyFailure || cancelled {
		visitStatus = model.VisitPartial
	}

	loadStatus := StatusEventful
	switch {
	case prevSnapshot != nil && prevSnapshot.ID == snap.ID:
		loadStatus = StatusUneventful
	case prevSnapshot == nil && len(branches) == 0:
		// Zero versions configured: a first visit publishing an empty
		// snapshot records nothing of interest.
		loadStatus = StatusUneventful
	}

	if err := l.recordStatus(visit, visitStatus, &snap.ID); err != nil {
		return l.fail(visit, fmt.Errorf("recording terminal status: %w", err))
	}

	l.logger.Info("visit complete",
		"origin", l.origin,
		"visit", visit.Visit,
		"status", string(visitStatus),
		"load_status", loadStatus,
		"snapshot", string(snap.ID),
		"written", l.written.Total())

	return &LoadResult{
		Status:      loadStatus,
		VisitStatus: visitStatus,
		SnapshotID:  &snap.ID,
		Written:     l.written,
	}, nil
}

// loadArtifact ingests one artifact and returns the object its version
// branch should point at. When the artifact's extid resolves to a revision
// already in the archive, the whole download/convert pipeline is skipped.
func (l *Loader) loadArtifact(ctx context.Context, info *PackageInfo, visitDate time.Time) (model.ID, model.TargetType, error) {
	extid := model.HashManifest(l.source.ExtIDManifest(info))

	revID, err := l.archive.ExtIDGet(extid)
	if err != nil {
		return "", "", fmt.Errorf("extid lookup: %w", err)
	}
	if revID != "" {
		missing, err := l.archive.RevisionMissing([]model.ID{revID})
		if err != nil {
			return "", "", fmt.Errorf("checking known revision: %w", err)
		}
		if len(missing) == 0 {
			l.logger.Debug("artifact unchanged, reusing revision",
				"url", info.Download.URL, "revision", string(revID))
			return l.wrapRelease(info, revID, visitDate)
		}
		// Stale extid: the mapping exists but the revision is gone.
		// Fall through and re-ingest.
	}

	workDir := filepath.Join(l.cfg.WorkDir, l.idgen.New())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", "", fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	archivePath, _, err := l.fetcher.Download(ctx, info.Download, workDir)
	if err != nil {
		return "", "", fmt.Errorf("downloading %s: %w", info.Download.URL, err)
	}

	root, err := l.extractor.Extract(archivePath, filepath.Join(workDir, "extract"))
	if err != nil {
		return "", "", fmt.Errorf("extracting %s: %w", archivePath, err)
	}

	imp := NewTreeImporter(l.store, l.logger)
	rootID, err := imp.ImportTree(root)
	if err != nil {
		return "", "", fmt.Errorf("converting tree: %w", err)
	}
	l.written.Merge(imp.Written())
	l.scheduleSubmodules(ctx, imp.Submodules())

	rev, err := l.source.BuildRevision(info, rootID, visitDate)
	if err != nil {
		return "", "", fmt.Errorf("building revision: %w", err)
	}
	rev.ID = model.ComputeRevisionID(rev)

	summary, err := l.store.RevisionAdd([]*model.Revision{rev})
	if err != nil {
		return "", "", fmt.Errorf("storing revision: %w", err)
	}
	l.written.Merge(summary)

	l.pendingExtIDs = append(l.pendingExtIDs, model.ExtID{Manifest: extid, Revision: rev.ID})

	return l.wrapRelease(info, rev.ID, visitDate)
}

// wrapRelease builds the Release object declared for an artifact, if any,
// and returns the branch target. Release ids are deterministic, so wrapping
// a reused revision re-creates the identical release.
func (l *Loader) wrapRelease(info *PackageInfo, revID model.ID, visitDate time.Time) (model.ID, model.TargetType, error) {
	if info.Release == nil {
		return revID, model.TargetRevision, nil
	}

	date := info.Release.Date
	if date.IsZero() {
		date = visitDate
	}
	rel := &model.Release{
		Name:       info.Release.Name,
		Target:     revID,
		TargetType: model.TypeRevision,
		Author:     info.Release.Author,
		Date:       date.UTC(),
		Message:    info.Release.Message,
	}
	rel.ID = model.ComputeReleaseID(rel)

	summary, err := l.store.ReleaseAdd([]*model.Release{rel})
	if err != nil {
		return "", "", fmt.Errorf("storing release: %w", err)
	}
	l.written.Merge(summary)

	return rel.ID, model.TargetRelease, nil
}

func (l *Loader) scheduleSubmodules(ctx context.Context, subs []Submodule) {
	if l.scheduler == nil {
		return
	}
	for _, sub := range subs {
		// Task creation is idempotent in the scheduler, which is what
		// terminates submodule cycles across visits. A scheduling
		// failure never fails the visit.
		if err := l.scheduler.CreateTask(ctx, "load-git", sub.URL, nil); err != nil {
			l.logger.Warn("scheduling submodule origin", "url", sub.URL, "err", err)
			continue
		}
		l.logger.Debug("scheduled submodule origin", "url", sub.URL, "path", sub.Path)
	}
}

func (l *Loader) packageInfo(version string) ([]*PackageInfo, error) {
	if infos, ok := l.infoCache[version]; ok {
		return infos, nil
	}
	infos, err := l.source.PackageInfo(version)
	if err != nil {
		return nil, err
	}
	l.infoCache[version] = infos
	return infos, nil
}

// previousSnapshot loads the snapshot of the origin's last visit that
// published one, if any.
func (l *Loader) previousSnapshot() (*model.Snapshot, error) {
	prev, err := l.archive.OriginVisitGetLatest(l.origin, true)
	if err != nil {
		return nil, fmt.Errorf("looking up previous visit: %w", err)
	}
	if prev == nil || prev.Snapshot == nil {
		return nil, nil
	}
	snap, err := l.archive.SnapshotGet(*prev.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("fetching previous snapshot: %w", err)
	}
	return snap, nil
}

func (l *Loader) recordStatus(visit *model.OriginVisit, status model.VisitStatus, snapshotID *model.ID) error {
	return l.archive.OriginVisitStatusAdd(&model.OriginVisitStatus{
		Origin:   l.origin,
		Visit:    visit.Visit,
		Date:     l.clock.Now(),
		Status:   status,
		Snapshot: snapshotID,
	})
}

// fail records the failed terminal status (best-effort) and surfaces err.
func (l *Loader) fail(visit *model.OriginVisit, err error) (*LoadResult, error) {
	l.logger.Error("visit failed", "origin", l.origin, "err", err)
	if visit != nil {
		if serr := l.recordStatus(visit, model.VisitFailed, nil); serr != nil {
			l.logger.Error("recording failed status", "err", serr)
		}
	}
	return &LoadResult{Status: StatusFailed, VisitStatus: model.VisitFailed, Written: l.written}, err
}

// branchVersions extracts the version labels present in a branch mapping,
// sorted so default-version selection sees a deterministic input order.
func branchVersions(branches map[string]model.Branch) []string {
	var versions []string
	for name, b := range branches {
		if b.Type == model.TargetAlias {
			continue
		}
		if v, ok := strings.CutPrefix(name, versionBranchPrefix); ok {
			versions = append(versions, v)
		}
	}
	sort.Strings(versions)
	return versions
}
