package loader

import "ingot/internal/model"

// Archive is the storage boundary the loader writes the object graph through.
// Implementations must provide their own concurrency control: the loader
// treats the archive as a serializing, thread-safe collaborator.
//
// All Get methods return (nil, nil) when the object is not present; errors
// are reserved for the archive itself misbehaving.
type Archive interface {
	// Graph object writes. Each returns the number of objects actually
	// written, which may be lower than len(objs) when some were already
	// present. Re-adding an identical object is a no-op success.
	ContentAdd(contents []*model.Content) (int, error)
	DirectoryAdd(dirs []*model.Directory) (int, error)
	RevisionAdd(revs []*model.Revision) (int, error)
	ReleaseAdd(rels []*model.Release) (int, error)
	SnapshotAdd(snap *model.Snapshot) (int, error)

	// Missing filters the given ids down to those not present in the
	// archive, preserving input order.
	ContentMissing(ids []model.ID) ([]model.ID, error)
	DirectoryMissing(ids []model.ID) ([]model.ID, error)
	RevisionMissing(ids []model.ID) ([]model.ID, error)

	// Graph object reads, used by the consistency checker and the CLI.
	ContentGet(id model.ID) (*model.Content, error)
	DirectoryGet(id model.ID) (*model.Directory, error)
	RevisionGet(id model.ID) (*model.Revision, error)
	ReleaseGet(id model.ID) (*model.Release, error)
	SnapshotGet(id model.ID) (*model.Snapshot, error)

	// ExtIDGet resolves an extrinsic-identity manifest digest to the
	// revision it was recorded against. Returns ("", nil) when unknown.
	ExtIDGet(manifest model.ID) (model.ID, error)
	ExtIDAdd(manifest, revision model.ID) error

	// Origin and visit bookkeeping. OriginVisitAdd assigns the visit's
	// per-origin sequence number. Visit statuses are append-only.
	OriginAdd(url string) error
	OriginVisitAdd(visit *model.OriginVisit) (*model.OriginVisit, error)
	OriginVisitStatusAdd(status *model.OriginVisitStatus) error

	// OriginVisitGetLatest returns the most recent visit status for the
	// origin by (date, visit) ordering, or (nil, nil) if the origin was
	// never visited. When requireSnapshot is true, only statuses carrying
	// a snapshot reference are considered.
	OriginVisitGetLatest(origin string, requireSnapshot bool) (*model.OriginVisitStatus, error)

	// OriginVisitStatuses returns the full status history for an origin
	// in recording order.
	OriginVisitStatuses(origin string) ([]*model.OriginVisitStatus, error)

	Close() error
}
