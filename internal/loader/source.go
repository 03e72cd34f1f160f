package loader

import (
	"context"
	"time"

	"ingot/internal/model"
)

// PackageInfo describes one concrete artifact to ingest under a version.
type PackageInfo struct {
	Version  string
	Download DownloadSpec
	Length   int64     // declared payload length, 0 when unknown
	Time     time.Time // declared release timestamp, zero when unknown
	Release  *ReleaseInfo
}

// ReleaseInfo carries optional release metadata declared alongside an
// artifact. When present, the version's branch targets a Release object
// instead of the bare revision.
type ReleaseInfo struct {
	Name    string
	Message string
	Author  model.Person
	Date    time.Time
}

// Source is the per-ecosystem adapter the orchestrator drives. Each variant
// (tarball import, registry flavors) knows how to enumerate the versions of
// an origin, describe their artifacts, derive a stable extrinsic identity
// for each artifact and synthesize a revision from an ingested tree.
//
// Versions returns a *NotFoundError when the origin is confirmed absent
// upstream; any other error is a visit-level failure.
type Source interface {
	// Versions enumerates the version labels to ingest, in declaration
	// order.
	Versions(ctx context.Context) ([]string, error)

	// PackageInfo returns the artifacts declared under a version.
	PackageInfo(version string) ([]*PackageInfo, error)

	// ExtIDManifest renders the canonical extrinsic-identity manifest for
	// an artifact. Two descriptors yielding the same manifest are assumed
	// to name byte-identical artifacts.
	ExtIDManifest(info *PackageInfo) []byte

	// BuildRevision synthesizes the revision recording the ingested root
	// directory. The returned revision's ID field is left empty; the
	// orchestrator computes it.
	BuildRevision(info *PackageInfo, root model.ID, visitDate time.Time) (*model.Revision, error)

	// DefaultVersion picks which of the given versions the HEAD alias
	// should point at. The rule must be total and stable: repeated visits
	// with unchanged inputs must pick the same version.
	DefaultVersion(versions []string) string
}
